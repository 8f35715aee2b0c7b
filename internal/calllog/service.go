package calllog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"calltrack/internal/calls"
	"calltrack/internal/leads"
)

var ErrInvalidInput = errors.New("calllog: invalid input")

// Store is the subset of the document store the call log writes to.
type Store interface {
	UpsertLead(ctx context.Context, l leads.Lead) (leads.Lead, error)
	AppendCall(ctx context.Context, c calls.Call) error
	NotifyCallCreated(ctx context.Context, ev calls.Created) error
}

// EventConsumer receives call-created events, e.g. the recompute scheduler.
type EventConsumer interface {
	OnCallCreated(ctx context.Context, ev calls.Created)
}

// Input is one call to log. Either LeadID or PhoneNumber must identify the lead.
type Input struct {
	TenantID string
	LeadID   string
	CallID   string

	LeadName    string
	PhoneNumber string

	Direction       string
	DurationSeconds float64
	FinalOutcome    string
	CreatedAt       time.Time
}

// Service appends calls and fires the call-created event exactly once per new call.
type Service struct {
	store    Store
	consumer EventConsumer
	region   string

	log *slog.Logger
	now func() time.Time
}

func NewService(store Store, consumer EventConsumer, region string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, consumer: consumer, region: region, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Record stores the call. A replayed call id returns an error wrapping the store's
// already-exists error and fires nothing.
func (s *Service) Record(ctx context.Context, in Input) (calls.Call, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.TenantID == "" {
		return calls.Call{}, fmt.Errorf("%w: tenant id required", ErrInvalidInput)
	}

	leadID := strings.TrimSpace(in.LeadID)
	if leadID == "" {
		id, err := leads.IDFromPhone(in.PhoneNumber, s.region)
		if err != nil {
			return calls.Call{}, fmt.Errorf("%w: lead id or valid phone number required", ErrInvalidInput)
		}
		leadID = id
	}

	c := calls.Call{
		ID:              strings.TrimSpace(in.CallID),
		TenantID:        in.TenantID,
		LeadID:          leadID,
		Direction:       in.Direction,
		DurationSeconds: calls.CoerceDuration(in.DurationSeconds),
		FinalOutcome:    in.FinalOutcome,
		PhoneNumber:     in.PhoneNumber,
		CreatedAt:       in.CreatedAt.UTC(),
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.Path = calls.Path(c.TenantID, c.LeadID, c.ID)
	if err := c.Validate(); err != nil {
		return calls.Call{}, err
	}

	if _, err := s.store.UpsertLead(ctx, leads.Lead{
		ID:                c.LeadID,
		TenantID:          c.TenantID,
		Name:              in.LeadName,
		PhoneNumber:       in.PhoneNumber,
		LastSeenAt:        c.CreatedAt,
		LastInteractionAt: c.CreatedAt,
	}); err != nil {
		return calls.Call{}, fmt.Errorf("calllog: upsert lead: %w", err)
	}
	if err := s.store.AppendCall(ctx, c); err != nil {
		return calls.Call{}, fmt.Errorf("calllog: append call: %w", err)
	}

	ev := calls.Created{TenantID: c.TenantID, LeadID: c.LeadID, CallID: c.ID}
	if s.consumer != nil {
		s.consumer.OnCallCreated(ctx, ev)
	}
	if err := s.store.NotifyCallCreated(ctx, ev); err != nil {
		s.log.Warn("call feed notify failed", "tenant_id", c.TenantID, "call_id", c.ID, "err", err)
	}
	return c, nil
}
