package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/tenants"
)

// runContract exercises the behaviour every Store backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("increment is additive and creates the tenant", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.IncrementCallsCount(ctx, "t1", 1))
		require.NoError(t, s.IncrementCallsCount(ctx, "t1", 1))

		got, err := s.GetTenant(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Stats.CallsCount)
		assert.True(t, got.HasCounters)
		assert.Zero(t, got.Stats.InboundCount)
	})

	t.Run("merge overwrites the optimistic count", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.IncrementCallsCount(ctx, "t1", 3))

		at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		want := tenants.Stats{LeadsCount: 1, CallsCount: 2, InboundCount: 1, OutboundCount: 1, MissedCount: 1, TotalDurationSeconds: 42, LastRecalcAt: at}
		require.NoError(t, s.MergeStats(ctx, "t1", want))

		got, err := s.GetTenant(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, got.Stats.SameCounters(want), "got %+v", got.Stats)
		assert.True(t, got.Stats.LastRecalcAt.Equal(at))
	})

	t.Run("unknown tenant is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTenant(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("calls are append-only and tenant scoped", func(t *testing.T) {
		s := newStore(t)
		c := calls.Call{ID: "c1", TenantID: "t1", LeadID: "L1", Direction: "inbound", DurationSeconds: 12.5, CreatedAt: time.UnixMilli(1700000000000).UTC()}
		require.NoError(t, s.AppendCall(ctx, c))
		assert.ErrorIs(t, s.AppendCall(ctx, c), ErrAlreadyExists)
		require.NoError(t, s.AppendCall(ctx, calls.Call{ID: "c1", TenantID: "t2", LeadID: "L1", Direction: "outbound"}))
		assert.ErrorIs(t, s.AppendCall(ctx, calls.Call{ID: "x", TenantID: "t1"}), ErrInvalid)

		got, err := s.ListCalls(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c1", got[0].ID)
		assert.Equal(t, 12.5, got[0].DurationSeconds)
		assert.Equal(t, int64(1700000000000), got[0].CreatedMillis())
		assert.Equal(t, "tenants/t1/leads/L1/calls/c1", got[0].Path)

		all, err := s.ListAllCalls(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		ts, err := s.ListTenants(ctx)
		require.NoError(t, err)
		assert.Len(t, ts, 2)
	})

	t.Run("lead upsert merges non-empty fields", func(t *testing.T) {
		s := newStore(t)
		first, err := s.UpsertLead(ctx, leads.Lead{ID: "L1", TenantID: "t1", Name: "Ada", PhoneNumber: "+15550001111"})
		require.NoError(t, err)
		assert.False(t, first.CreatedAt.IsZero())

		seen := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		second, err := s.UpsertLead(ctx, leads.Lead{ID: "L1", TenantID: "t1", LastSeenAt: seen})
		require.NoError(t, err)
		assert.Equal(t, "Ada", second.Name)
		assert.True(t, second.LastSeenAt.Equal(seen))
		assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

		_, err = s.UpsertLead(ctx, leads.Lead{ID: "L1", TenantID: "t2"})
		require.NoError(t, err)

		ids, err := s.ListLeadIDs(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, []string{"L1"}, ids)

		all, err := s.ListLeads(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		_, err = s.GetLead(ctx, "t3", "L1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("journal lists newest first", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.AppendEvent(ctx, audit.Event{ID: "e1", TenantID: "t1", Type: audit.EventRecomputeDone, CreatedAt: base}))
		require.NoError(t, s.AppendEvent(ctx, audit.Event{ID: "e2", TenantID: "t1", Type: audit.EventRecomputeFailed, Message: "boom", CreatedAt: base.Add(time.Minute)}))
		require.NoError(t, s.AppendEvent(ctx, audit.Event{ID: "e3", TenantID: "t2", Type: audit.EventRecomputeDone, CreatedAt: base}))

		evs, err := s.ListEvents(ctx, "t1", 10)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, "e2", evs[0].ID)
		assert.Equal(t, "boom", evs[0].Message)
	})

	t.Run("feed signals on call created", func(t *testing.T) {
		s := newStore(t)
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := s.Subscribe(subCtx)
		require.NoError(t, err)
		require.NoError(t, s.AppendCall(ctx, calls.Call{ID: "c1", TenantID: "t1", LeadID: "L1"}))
		require.NoError(t, s.NotifyCallCreated(ctx, calls.Created{TenantID: "t1", LeadID: "L1", CallID: "c1"}))

		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected a feed signal")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}
