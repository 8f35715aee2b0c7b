package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"calltrack/internal/tenants"
)

// Repository is the persistence contract for journal events.
//
// It MUST be append-only.
type Repository interface {
	AppendEvent(ctx context.Context, e Event) error
}

// Reader is implemented by repositories that can list the journal.
type Reader interface {
	ListEvents(ctx context.Context, tenantID string, limit int) ([]Event, error)
}

// Service journals recompute pipeline outcomes.
//
// IMPORTANT:
// - Internal-only. Do not expose these records to tenant users by default.
// - Callers should treat journal writes as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || !e.Type.Valid() {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.AppendEvent(ctx, e)
}

// List returns the newest events of a tenant, if the repository can read.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if tenantID == "" {
		return nil, ErrInvalidEvent
	}
	r, ok := s.repo.(Reader)
	if !ok {
		return nil, errors.New("audit: repository is write-only")
	}
	return r.ListEvents(ctx, tenantID, limit)
}

func (s *Service) RecomputeDone(ctx context.Context, tenantID, source string, stats tenants.Stats, took time.Duration) error {
	meta, _ := json.Marshal(stats)
	return s.Append(ctx, Event{
		TenantID:       tenantID,
		Type:           EventRecomputeDone,
		Source:         source,
		Message:        "stats recomputed",
		Metadata:       string(meta),
		DurationMillis: took.Milliseconds(),
	})
}

func (s *Service) RecomputeFailed(ctx context.Context, tenantID, source string, cause error, took time.Duration) error {
	return s.Append(ctx, Event{
		TenantID:       tenantID,
		Type:           EventRecomputeFailed,
		Source:         source,
		Message:        errText(cause),
		DurationMillis: took.Milliseconds(),
	})
}

func (s *Service) IncrementFailed(ctx context.Context, tenantID, leadID, callID string, cause error) error {
	return s.Append(ctx, Event{
		TenantID: tenantID,
		Type:     EventIncrementFailed,
		LeadID:   leadID,
		CallID:   callID,
		Source:   "scheduler",
		Message:  errText(cause),
	})
}

func (s *Service) ScheduleFailed(ctx context.Context, tenantID, leadID, callID string, cause error) error {
	return s.Append(ctx, Event{
		TenantID: tenantID,
		Type:     EventScheduleFailed,
		LeadID:   leadID,
		CallID:   callID,
		Source:   "scheduler",
		Message:  errText(cause),
	})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
