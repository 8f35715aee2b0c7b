package recompute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"calltrack/internal/metrics"
)

// TokenSource mints identity tokens for a service account, scoped to an audience.
type TokenSource interface {
	IdentityToken(ctx context.Context, serviceAccount, audience string) (string, error)
}

// Deliverer performs the HTTP callback of a due dispatch.
type Deliverer struct {
	client  *http.Client
	tokens  TokenSource
	metrics *metrics.Pipeline
	log     *slog.Logger
}

func NewDeliverer(client *http.Client, tokens TokenSource, m *metrics.Pipeline, log *slog.Logger) *Deliverer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Deliverer{client: client, tokens: tokens, metrics: m, log: log}
}

// Deliver sends d. Errors wrapping asynq.SkipRetry are permanent.
func (dl *Deliverer) Deliver(ctx context.Context, d Dispatch) (err error) {
	defer func() { dl.metrics.IncDelivery(err) }()

	body, err := d.DecodedBody()
	if err != nil {
		return fmt.Errorf("recompute: decode body: %v: %w", err, asynq.SkipRetry)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("recompute: build request: %v: %w", err, asynq.SkipRetry)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if d.Auth == AuthOIDC {
		if dl.tokens == nil {
			return fmt.Errorf("recompute: no token source for %s: %w", d.ServiceAccount, asynq.SkipRetry)
		}
		tok, err := dl.tokens.IdentityToken(ctx, d.ServiceAccount, d.URL)
		if err != nil {
			return fmt.Errorf("recompute: mint identity token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := dl.client.Do(req)
	if err != nil {
		return fmt.Errorf("recompute: deliver: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		dl.log.Info("recompute dispatch delivered", "tenant_id", d.TenantID, "call_id", d.CallID, "status", resp.StatusCode)
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("recompute: worker returned %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("recompute: worker rejected dispatch with %d: %w", resp.StatusCode, asynq.SkipRetry)
	default:
		return fmt.Errorf("recompute: worker returned %d", resp.StatusCode)
	}
}

// ProcessTask is the asynq handler for TaskHTTPDispatch.
func (dl *Deliverer) ProcessTask(ctx context.Context, task *asynq.Task) error {
	d, err := ParseHTTPDispatchPayload(task)
	if err != nil {
		return fmt.Errorf("recompute: parse dispatch: %v: %w", err, asynq.SkipRetry)
	}
	if err := dl.Deliver(ctx, d); err != nil {
		dl.log.Warn("recompute dispatch failed", "tenant_id", d.TenantID, "call_id", d.CallID, "err", err)
		return err
	}
	return nil
}

// Server runs the asynq side: it pulls due dispatches from the queue and delivers them.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

func NewServer(opt asynq.RedisClientOpt, queue string, concurrency int, dl *Deliverer, log *slog.Logger) *Server {
	if concurrency < 1 {
		concurrency = 10
	}
	if log == nil {
		log = slog.Default()
	}
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskHTTPDispatch, dl.ProcessTask)
	return &Server{server: server, mux: mux, log: log}
}

// Run blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	if err := s.server.Start(s.mux); err != nil {
		s.log.Error("recompute dispatch server failed to start", "err", err)
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}
