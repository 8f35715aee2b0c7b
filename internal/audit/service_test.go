package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"calltrack/internal/tenants"
)

func TestService_AppendRequiresTenantAndKnownType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventRecomputeDone}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{TenantID: "t", Type: "admin_action"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for unknown type, got %v", err)
	}
}

func TestService_RecordsPipelineEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.RecomputeDone(ctx, "t1", "worker", tenants.Stats{CallsCount: 2}, 40*time.Millisecond); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.IncrementFailed(ctx, "t1", "L1", "c1", errors.New("store down")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.ScheduleFailed(ctx, "t2", "L1", "c2", errors.New("queue down")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and time stamped")
	}
	if !strings.Contains(evs[0].Metadata, `"callsCount":2`) || evs[0].DurationMillis != 40 {
		t.Fatalf("unexpected done event: %+v", evs[0])
	}
	if evs[1].Type != EventIncrementFailed || evs[1].Message != "store down" || evs[1].CallID != "c1" {
		t.Fatalf("unexpected increment event: %+v", evs[1])
	}

	got, err := svc.List(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0].Type != EventIncrementFailed {
		t.Fatalf("expected newest t1 event first, got %+v", got)
	}
}

func TestService_NilIsNotConfigured(t *testing.T) {
	var svc *Service
	if err := svc.RecomputeFailed(context.Background(), "t", "worker", errors.New("x"), 0); err == nil {
		t.Fatalf("expected error from nil service")
	}
}
