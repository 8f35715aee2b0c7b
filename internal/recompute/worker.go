package recompute

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"calltrack/internal/audit"
	"calltrack/internal/metrics"
	"calltrack/internal/tenants"
)

// Recomputer is the aggregator entry point used by the worker.
type Recomputer interface {
	Recompute(ctx context.Context, tenantID string) (tenants.Stats, error)
}

// Request is the transport-neutral recompute request.
type Request struct {
	Method         string
	QueryTenantIDs []string
	Body           []byte

	Authorization string
	Secret        string
}

type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

type Result struct {
	TenantID string         `json:"tenant_id"`
	State    State          `json:"state"`
	Stats    *tenants.Stats `json:"stats,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type Response struct {
	Status  int      `json:"status"`
	Body    string   `json:"body"`
	Results []Result `json:"results,omitempty"`
}

var errMissingTenantIDs = errors.New("missing tenantIds")

// Worker recomputes the requested tenants one after another. A failing tenant
// never stops the rest of the batch, and the worker itself never retries.
type Worker struct {
	svc Recomputer

	secret string
	// verify, when set, must accept a bearer token; otherwise bearer tokens are only format-checked.
	verify func(token string) error

	journal *audit.Service
	metrics *metrics.Pipeline
	log     *slog.Logger
	source  string
}

func NewWorker(svc Recomputer, secret string, journal *audit.Service, m *metrics.Pipeline, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{svc: svc, secret: secret, journal: journal, metrics: m, log: log, source: "worker"}
}

// WithBearerVerifier makes bearer tokens subject to verify.
func (w *Worker) WithBearerVerifier(verify func(token string) error) *Worker {
	w.verify = verify
	return w
}

// WithSource names the adapter in journal entries (worker, cli).
func (w *Worker) WithSource(source string) *Worker {
	if source != "" {
		w.source = source
	}
	return w
}

func (w *Worker) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			w.log.Error("recompute worker panic", "panic", p)
			resp = Response{Status: http.StatusInternalServerError, Body: fmt.Sprint(p)}
		}
	}()

	if !w.authorize(req.Authorization, req.Secret) {
		w.log.Warn("recompute worker: authentication failed")
		return Response{Status: http.StatusForbidden, Body: "forbidden"}
	}

	ids, err := TenantIDs(req)
	if err != nil || len(ids) == 0 {
		return Response{Status: http.StatusBadRequest, Body: errMissingTenantIDs.Error()}
	}

	return Response{Status: http.StatusOK, Body: "ok", Results: w.Run(ctx, ids)}
}

// Run recomputes each tenant in order. It is the part of Handle after authentication.
func (w *Worker) Run(ctx context.Context, tenantIDs []string) []Result {
	results := make([]Result, len(tenantIDs))
	for i, tid := range tenantIDs {
		results[i] = Result{TenantID: tid, State: StatePending}
	}

	for i, tid := range tenantIDs {
		start := time.Now()
		stats, err := w.svc.Recompute(ctx, tid)
		took := time.Since(start)
		w.metrics.ObserveRecompute(took, err)

		if err != nil {
			results[i].State = StateFailed
			results[i].Error = err.Error()
			w.log.Error("recompute failed", "tenant_id", tid, "err", err)
			if jerr := w.journal.RecomputeFailed(ctx, tid, w.source, err, took); jerr != nil && w.journal != nil {
				w.log.Warn("journal write failed", "tenant_id", tid, "err", jerr)
			}
			continue
		}

		s := stats
		results[i].State = StateDone
		results[i].Stats = &s
		w.log.Info("recompute done", "tenant_id", tid, "calls", stats.CallsCount, "leads", stats.LeadsCount, "took_ms", took.Milliseconds())
		if jerr := w.journal.RecomputeDone(ctx, tid, w.source, stats, took); jerr != nil && w.journal != nil {
			w.log.Warn("journal write failed", "tenant_id", tid, "err", jerr)
		}
	}
	return results
}

func (w *Worker) authorize(authorization, provided string) bool {
	if !Authorize(w.secret, authorization, provided) {
		return false
	}
	if w.verify == nil {
		return true
	}
	if w.secret != "" && secretMatches(w.secret, provided) {
		return true
	}
	return w.verify(bearerToken(authorization)) == nil
}

// Authorize accepts the shared secret (when one is configured) or a well-formed bearer token.
// Without a configured secret a bearer token is required.
func Authorize(secret, authorization, provided string) bool {
	if secret != "" && secretMatches(secret, provided) {
		return true
	}
	return wellFormedJWT(bearerToken(authorization))
}

func secretMatches(secret, provided string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) == 1
}

func bearerToken(authorization string) string {
	const prefix = "bearer "
	v := strings.TrimSpace(authorization)
	if len(v) <= len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}

func wellFormedJWT(token string) bool {
	if token == "" {
		return false
	}
	_, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	return err == nil
}

// TenantIDs extracts tenant ids from the query (GET) or the JSON body (POST).
// The body's tenantIds may be a string or an array; a base64 wrapped body is accepted too.
// Blank ids are dropped and duplicates collapse.
func TenantIDs(req Request) ([]string, error) {
	var raw []string
	switch strings.ToUpper(req.Method) {
	case http.MethodGet:
		raw = req.QueryTenantIDs
	case http.MethodPost:
		body := req.Body
		if len(strings.TrimSpace(string(body))) == 0 {
			return nil, errMissingTenantIDs
		}
		if !json.Valid(body) {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
			if err != nil || !json.Valid(decoded) {
				return nil, errMissingTenantIDs
			}
			body = decoded
		}
		var p struct {
			TenantIDs json.RawMessage `json:"tenantIds"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, errMissingTenantIDs
		}
		ids, err := stringOrList(p.TenantIDs)
		if err != nil {
			return nil, err
		}
		raw = ids
	default:
		return nil, errMissingTenantIDs
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []any
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errMissingTenantIDs
	}
	out := make([]string, 0, len(many))
	for _, v := range many {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
