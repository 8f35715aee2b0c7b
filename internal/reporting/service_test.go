package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"calltrack/internal/calls"
	"calltrack/internal/tenants"
)

type fakeRepo struct {
	mu sync.Mutex

	leads map[string][]string
	calls []calls.Call
	stats map[string]tenants.Stats

	listErr  error
	mergeErr error
	merges   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: map[string][]string{}, stats: map[string]tenants.Stats{}}
}

func (r *fakeRepo) ListLeadIDs(ctx context.Context, tenantID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]string(nil), r.leads[tenantID]...), nil
}

func (r *fakeRepo) ListCalls(ctx context.Context, tenantID string) ([]calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.calls {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) MergeStats(ctx context.Context, tenantID string, stats tenants.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mergeErr != nil {
		return r.mergeErr
	}
	r.merges++
	r.stats[tenantID] = stats
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	return NewService(repo).WithClock(func() time.Time { return fixedNow })
}

func TestRecompute_ExampleTenant(t *testing.T) {
	repo := newFakeRepo()
	repo.leads["t1"] = []string{"L1"}
	repo.calls = []calls.Call{
		{ID: "c1", TenantID: "t1", LeadID: "L1", Direction: "inbound", DurationSeconds: 0},
		{ID: "c2", TenantID: "t1", LeadID: "L1", Direction: "outbound", DurationSeconds: 42},
	}

	got, err := newTestService(repo).Recompute(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := tenants.Stats{LeadsCount: 1, CallsCount: 2, InboundCount: 1, OutboundCount: 1, MissedCount: 1, RejectedCount: 0, TotalDurationSeconds: 42, LastRecalcAt: fixedNow}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if repo.stats["t1"] != want {
		t.Fatalf("expected stored snapshot %+v, got %+v", want, repo.stats["t1"])
	}
}

func TestRecompute_IsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.leads["t"] = []string{"a", "b"}
	repo.calls = []calls.Call{
		{ID: "1", TenantID: "t", LeadID: "a", Direction: "inbound", DurationSeconds: 10.4},
		{ID: "2", TenantID: "t", LeadID: "b", Direction: "out", FinalOutcome: "rejected", DurationSeconds: 3.3},
	}
	svc := newTestService(repo)

	first, err := svc.Recompute(context.Background(), "t")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	second, err := svc.Recompute(context.Background(), "t")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical snapshots, got %+v then %+v", first, second)
	}
	if first.TotalDurationSeconds != 14 {
		t.Fatalf("expected duration rounded once to 14, got %d", first.TotalDurationSeconds)
	}
}

func TestCompute_CountsAreComplete(t *testing.T) {
	repo := newFakeRepo()
	repo.leads["t"] = []string{"l"}
	repo.calls = []calls.Call{
		{ID: "1", TenantID: "t", LeadID: "l", Direction: "inbound", DurationSeconds: 5},
		{ID: "2", TenantID: "t", LeadID: "l", Direction: "inbound"},
		{ID: "3", TenantID: "t", LeadID: "l", Direction: "outbound"},
		{ID: "4", TenantID: "t", LeadID: "l", Direction: "sideways", DurationSeconds: 7},
		{ID: "5", TenantID: "t", LeadID: "l"},
	}

	s, err := newTestService(repo).Compute(context.Background(), "t")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.CallsCount != s.InboundCount+s.OutboundCount+s.Unclassified() || s.Unclassified() != 2 {
		t.Fatalf("counts do not add up: %+v", s)
	}
	if s.MissedCount > s.InboundCount || s.RejectedCount > s.OutboundCount {
		t.Fatalf("missed/rejected exceed their direction: %+v", s)
	}
	if repo.merges != 0 {
		t.Fatalf("compute must not write")
	}
}

func TestCompute_TenantIsolation(t *testing.T) {
	repo := newFakeRepo()
	repo.leads["t1"] = []string{"L1"}
	repo.leads["t2"] = []string{"L1", "L2"}
	repo.calls = []calls.Call{
		{ID: "c", TenantID: "t1", LeadID: "L1", Direction: "inbound", DurationSeconds: 1},
		{ID: "c", TenantID: "t2", LeadID: "L1", Direction: "outbound", DurationSeconds: 1},
		{ID: "d", TenantID: "t2", LeadID: "L2", Direction: "outbound", DurationSeconds: 1},
	}

	s, err := newTestService(repo).Compute(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.LeadsCount != 1 || s.CallsCount != 1 || s.OutboundCount != 0 {
		t.Fatalf("tenant t2 leaked into t1: %+v", s)
	}
}

func TestRecompute_ReadFailureWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("boom")

	_, err := newTestService(repo).Recompute(context.Background(), "t")
	if err == nil {
		t.Fatalf("expected error")
	}
	if repo.merges != 0 {
		t.Fatalf("expected no write after a failed read")
	}
}

func TestRecompute_RejectsEmptyTenant(t *testing.T) {
	_, err := newTestService(newFakeRepo()).Recompute(context.Background(), "  ")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSummarize_Labels(t *testing.T) {
	c := Summarize([]calls.Call{
		{Direction: "inbound", DurationSeconds: 3},
		{Direction: "outbound", DurationSeconds: 2},
		{Direction: "inbound"},
	})
	if c.Answered != 2 || c.Missed != 1 || c.Calls != 3 || c.TotalDurationSeconds() != 5 {
		t.Fatalf("unexpected summary: %+v", c)
	}
}

func TestCompute_SkipsCallsOfUnlistedLeads(t *testing.T) {
	repo := newFakeRepo()
	repo.calls = []calls.Call{
		{ID: "c1", TenantID: "t1", LeadID: "ghost", Direction: "inbound", DurationSeconds: 30},
	}

	s, err := newTestService(repo).Compute(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.LeadsCount != 0 || s.CallsCount != 0 || s.InboundCount != 0 || s.TotalDurationSeconds != 0 {
		t.Fatalf("expected calls of an unlisted lead to be ignored, got %+v", s)
	}

	repo.leads["t1"] = []string{"L1"}
	repo.calls = append(repo.calls, calls.Call{ID: "c2", TenantID: "t1", LeadID: "L1", Direction: "outbound", DurationSeconds: 12})
	s, err = newTestService(repo).Compute(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.LeadsCount != 1 || s.CallsCount != 1 || s.OutboundCount != 1 || s.TotalDurationSeconds != 12 {
		t.Fatalf("expected only L1's call, got %+v", s)
	}
}

func TestSummarize_HintWithoutDirectionIsUnclassified(t *testing.T) {
	c := Summarize([]calls.Call{{FinalOutcome: "missed"}, {Direction: "sideways", FinalOutcome: "rejected"}})
	if c.Calls != 2 || c.Unclassified != 2 || c.Inbound != 0 || c.Outbound != 0 || c.Missed != 0 || c.Rejected != 0 {
		t.Fatalf("expected both calls unclassified, got %+v", c)
	}
}
