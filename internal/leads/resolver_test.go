package leads

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"calltrack/internal/calls"
)

func ms(v int64) time.Time { return time.UnixMilli(v).UTC() }

func TestResolve_KeepsNewestPerTenantAndLead(t *testing.T) {
	got := Resolve([]calls.Call{
		{ID: "old", TenantID: "t1", LeadID: "L1", CreatedAt: ms(1000)},
		{ID: "new", TenantID: "t1", LeadID: "L1", CreatedAt: ms(2000)},
		{ID: "other-tenant", TenantID: "t2", LeadID: "L1", CreatedAt: ms(500)},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(got))
	}
	if got[Key{"t1", "L1"}].ID != "new" {
		t.Fatalf("expected newest call, got %+v", got[Key{"t1", "L1"}])
	}
	if got[Key{"t2", "L1"}].ID != "other-tenant" {
		t.Fatalf("same lead id in another tenant must not collide")
	}
}

func TestResolve_TieKeepsFirstSeen(t *testing.T) {
	got := Resolve([]calls.Call{
		{ID: "a", TenantID: "t", LeadID: "l", CreatedAt: ms(1000)},
		{ID: "b", TenantID: "t", LeadID: "l", CreatedAt: ms(1000)},
		{ID: "c", TenantID: "t", LeadID: "m"},
		{ID: "d", TenantID: "t", LeadID: "m"},
	})
	if got[Key{"t", "l"}].ID != "a" || got[Key{"t", "m"}].ID != "c" {
		t.Fatalf("expected first seen to win ties, got %+v", got)
	}
}

func TestResolve_PathFallbackAndSkip(t *testing.T) {
	got := Resolve([]calls.Call{
		{ID: "p", Path: "tenants/t9/leads/L9/calls/p", CreatedAt: ms(5)},
		{ID: "orphan", Path: "calls/orphan"},
		{ID: "half", TenantID: "t9", Path: "tenants/t9/leads/L8/calls/half"},
	})
	if _, ok := got[Key{"t9", "L9"}]; !ok {
		t.Fatalf("expected key derived from path")
	}
	if _, ok := got[Key{"t9", "L8"}]; !ok {
		t.Fatalf("expected lead derived from path when only tenant is explicit")
	}
	if len(got) != 2 {
		t.Fatalf("expected orphan call to be skipped, got %d keys", len(got))
	}
}

func TestResolve_SkipsCallWithoutTenant(t *testing.T) {
	c := calls.Call{ID: "x", LeadID: "L1", Path: "calls/x", CreatedAt: ms(10)}
	if _, ok := KeyOf(c); ok {
		t.Fatalf("expected no key for a call without tenant")
	}
	got := Resolve([]calls.Call{c})
	if len(got) != 0 {
		t.Fatalf("expected call without tenant to be skipped, got %+v", got)
	}
}

func TestResolver_AttachAndSort(t *testing.T) {
	r := NewResolver(nil)
	r.Rebuild([]calls.Call{{ID: "c", TenantID: "t", LeadID: "b", Direction: "inbound", CreatedAt: ms(10)}})

	ls := []Lead{
		{ID: "a", TenantID: "t", CreatedAt: ms(100)},
		{ID: "b", TenantID: "t", CreatedAt: ms(50), LastInteractionAt: ms(900)},
		{ID: "b", TenantID: "other"},
	}
	out := r.Attach(ls)
	SortByLastSeen(out)

	if out[0].ID != "b" || out[0].LatestCall == nil || out[0].LatestCall.ID != "c" {
		t.Fatalf("expected lead b first with its call, got %+v", out[0])
	}
	if out[0].LatestCall.Status != "Missed" {
		t.Fatalf("expected missed status, got %q", out[0].LatestCall.Status)
	}
	if out[2].TenantID != "other" || out[2].LatestCall != nil {
		t.Fatalf("lead in another tenant must not get the call: %+v", out[2])
	}
	if ls[1].LatestCall != nil {
		t.Fatalf("attach must not mutate the input")
	}
}

type chanFeed chan struct{}

func (f chanFeed) Subscribe(ctx context.Context) (<-chan struct{}, error) { return f, nil }

func TestResolver_WatchRebuildsOnSignal(t *testing.T) {
	var loads atomic.Int32
	load := func(ctx context.Context) ([]calls.Call, error) {
		n := loads.Add(1)
		if n == 2 {
			return nil, errors.New("transient")
		}
		return []calls.Call{{ID: "c", TenantID: "t", LeadID: "l", CreatedAt: ms(int64(n))}}, nil
	}

	feed := make(chanFeed)
	r := NewResolver(nil)
	done := make(chan error, 1)
	go func() { done <- r.Watch(context.Background(), feed, load) }()

	feed <- struct{}{}
	feed <- struct{}{}
	close(feed)

	if err := <-done; err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if loads.Load() != 3 {
		t.Fatalf("expected 3 loads, got %d", loads.Load())
	}
	c, ok := r.Latest("t", "l")
	if !ok || c.CreatedMs != 3 {
		t.Fatalf("expected view from third load, got %+v %v", c, ok)
	}
}

func TestIDFromPhone(t *testing.T) {
	id, err := IDFromPhone(" +1 (650) 253-0000 ", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != "16502530000" {
		t.Fatalf("unexpected id %q", id)
	}
	again, _ := IDFromPhone("650-253-0000", "us")
	if again != id {
		t.Fatalf("expected national format to map to the same id, got %q", again)
	}
	if _, err := IDFromPhone("not a number", ""); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}
