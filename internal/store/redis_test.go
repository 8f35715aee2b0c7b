package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltrack/internal/calls"
)

func newMiniRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb), mr
}

func TestRedisStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		s, _ := newMiniRedisStore(t)
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.IncrementCallsCount(ctx, "t1", 1))
	require.NoError(t, s.AppendCall(ctx, calls.Call{ID: "c1", TenantID: "t1", LeadID: "L1", Direction: "inbound"}))

	assert.Equal(t, "1", mr.HGet("ct:tenant:t1", "callsCount"))
	assert.True(t, mr.Exists("ct:tenant:t1:lead:L1:calls"))
	members, err := mr.SMembers("ct:tenants")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, members)
}

func TestRedisStore_SkipsUndecodableCalls(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendCall(ctx, calls.Call{ID: "c1", TenantID: "t1", LeadID: "L1", Direction: "outbound", DurationSeconds: 5}))
	mr.HSet("ct:tenant:t1:lead:L1:calls", "broken", "{not json")

	got, err := s.ListCalls(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestRedisStore_AppendCallIndexesAtomically(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()
	c := calls.Call{ID: "c1", TenantID: "t9", LeadID: "L7", Direction: "inbound"}

	require.NoError(t, s.AppendCall(ctx, c))
	leadsWithCalls, err := mr.SMembers("ct:tenant:t9:call-leads")
	require.NoError(t, err)
	assert.Equal(t, []string{"L7"}, leadsWithCalls)
	tenantIDs, err := mr.SMembers("ct:tenants")
	require.NoError(t, err)
	assert.Contains(t, tenantIDs, "t9")
	assert.NotEmpty(t, mr.HGet("ct:tenant:t9", "createdAt"))

	assert.ErrorIs(t, s.AppendCall(ctx, c), ErrAlreadyExists)
	got, err := s.ListCalls(ctx, "t9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}
