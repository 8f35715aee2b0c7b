package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/tenants"
)

const (
	redisPrefix        = "ct:"
	redisCallsChannel  = redisPrefix + "calls:created"
	redisEventsCap     = 500
	redisTimeLayout    = time.RFC3339Nano
	fieldHasCounters   = "hasCounters"
	fieldCallsCount    = "callsCount"
	fieldLastRecalcAt  = "lastRecalcAt"
	fieldTenantName    = "name"
	fieldTenantCreated = "createdAt"
)

func keyTenants() string { return redisPrefix + "tenants" }
func keyTenant(tid string) string { return redisPrefix + "tenant:" + tid }
func keyLeads(tid string) string { return keyTenant(tid) + ":leads" }
func keyLead(tid, lid string) string { return keyTenant(tid) + ":lead:" + lid }
func keyLeadCalls(tid, lid string) string { return keyLead(tid, lid) + ":calls" }
func keyEvents(tid string) string { return keyTenant(tid) + ":events" }

// Redis is a Store on top of Redis hashes and sets. Calls are kept as their wire
// record JSON and decoded through calls.Decode on read.
type Redis struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Redis) touchTenant(ctx context.Context, pipe redis.Pipeliner, tenantID string) {
	pipe.SAdd(ctx, keyTenants(), tenantID)
	pipe.HSetNX(ctx, keyTenant(tenantID), fieldTenantCreated, r.now().Format(redisTimeLayout))
}

// PutTenant creates or renames a tenant.
func (r *Redis) PutTenant(ctx context.Context, tenantID, name string) error {
	if tenantID == "" {
		return ErrInvalid
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.touchTenant(ctx, pipe, tenantID)
		pipe.HSet(ctx, keyTenant(tenantID), fieldTenantName, name)
		return nil
	})
	return err
}

func (r *Redis) IncrementCallsCount(ctx context.Context, tenantID string, delta int64) error {
	if tenantID == "" {
		return ErrInvalid
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.touchTenant(ctx, pipe, tenantID)
		pipe.HIncrBy(ctx, keyTenant(tenantID), fieldCallsCount, delta)
		pipe.HSet(ctx, keyTenant(tenantID), fieldHasCounters, "1")
		return nil
	})
	return err
}

func (r *Redis) MergeStats(ctx context.Context, tenantID string, s tenants.Stats) error {
	if tenantID == "" {
		return ErrInvalid
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.touchTenant(ctx, pipe, tenantID)
		pipe.HSet(ctx, keyTenant(tenantID),
			"leadsCount", s.LeadsCount,
			fieldCallsCount, s.CallsCount,
			"inboundCount", s.InboundCount,
			"outboundCount", s.OutboundCount,
			"missedCount", s.MissedCount,
			"rejectedCount", s.RejectedCount,
			"totalDurationSeconds", s.TotalDurationSeconds,
			fieldLastRecalcAt, formatTime(s.LastRecalcAt),
			fieldHasCounters, "1",
		)
		return nil
	})
	return err
}

func (r *Redis) GetTenant(ctx context.Context, tenantID string) (tenants.Tenant, error) {
	h, err := r.rdb.HGetAll(ctx, keyTenant(tenantID)).Result()
	if err != nil {
		return tenants.Tenant{}, err
	}
	if len(h) == 0 {
		return tenants.Tenant{}, ErrNotFound
	}
	return tenantFromHash(tenantID, h), nil
}

func (r *Redis) ListTenants(ctx context.Context) ([]tenants.Tenant, error) {
	ids, err := r.rdb.SMembers(ctx, keyTenants()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, keyTenant(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]tenants.Tenant, 0, len(ids))
	for i, id := range ids {
		out = append(out, tenantFromHash(id, cmds[i].Val()))
	}
	return out, nil
}

func tenantFromHash(id string, h map[string]string) tenants.Tenant {
	n := func(k string) int64 {
		v, _ := strconv.ParseInt(h[k], 10, 64)
		return v
	}
	return tenants.Tenant{
		ID:          id,
		Name:        h[fieldTenantName],
		HasCounters: h[fieldHasCounters] == "1",
		CreatedAt:   parseTime(h[fieldTenantCreated]),
		Stats: tenants.Stats{
			LeadsCount:           n("leadsCount"),
			CallsCount:           n(fieldCallsCount),
			InboundCount:         n("inboundCount"),
			OutboundCount:        n("outboundCount"),
			MissedCount:          n("missedCount"),
			RejectedCount:        n("rejectedCount"),
			TotalDurationSeconds: n("totalDurationSeconds"),
			LastRecalcAt:         parseTime(h[fieldLastRecalcAt]),
		},
	}
}

func (r *Redis) UpsertLead(ctx context.Context, l leads.Lead) (leads.Lead, error) {
	if err := checkLead(l); err != nil {
		return leads.Lead{}, err
	}
	cur, err := r.GetLead(ctx, l.TenantID, l.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return leads.Lead{}, err
	}
	if errors.Is(err, ErrNotFound) && l.CreatedAt.IsZero() {
		l.CreatedAt = r.now()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = r.now()
	}
	out := mergeLead(cur, l)

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.touchTenant(ctx, pipe, l.TenantID)
		pipe.SAdd(ctx, keyLeads(l.TenantID), l.ID)
		pipe.HSet(ctx, keyLead(l.TenantID, l.ID),
			"id", out.ID,
			"tenantId", out.TenantID,
			"name", out.Name,
			"phoneNumber", out.PhoneNumber,
			"lastSeen", formatTime(out.LastSeenAt),
			"lastInteraction", formatTime(out.LastInteractionAt),
			"createdAt", formatTime(out.CreatedAt),
			"updatedAt", formatTime(out.UpdatedAt),
		)
		return nil
	})
	if err != nil {
		return leads.Lead{}, err
	}
	return out, nil
}

func (r *Redis) GetLead(ctx context.Context, tenantID, leadID string) (leads.Lead, error) {
	h, err := r.rdb.HGetAll(ctx, keyLead(tenantID, leadID)).Result()
	if err != nil {
		return leads.Lead{}, err
	}
	if len(h) == 0 {
		return leads.Lead{}, ErrNotFound
	}
	return leadFromHash(tenantID, leadID, h), nil
}

func leadFromHash(tenantID, leadID string, h map[string]string) leads.Lead {
	return leads.Lead{
		ID:                leadID,
		TenantID:          tenantID,
		Name:              h["name"],
		PhoneNumber:       h["phoneNumber"],
		LastSeenAt:        parseTime(h["lastSeen"]),
		LastInteractionAt: parseTime(h["lastInteraction"]),
		CreatedAt:         parseTime(h["createdAt"]),
		UpdatedAt:         parseTime(h["updatedAt"]),
	}
}

func (r *Redis) tenantIDs(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID != "" {
		return []string{tenantID}, nil
	}
	ids, err := r.rdb.SMembers(ctx, keyTenants()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) ListLeadIDs(ctx context.Context, tenantID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, keyLeads(tenantID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) ListLeads(ctx context.Context, tenantID string) ([]leads.Lead, error) {
	tids, err := r.tenantIDs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]leads.Lead, 0)
	for _, tid := range tids {
		lids, err := r.ListLeadIDs(ctx, tid)
		if err != nil {
			return nil, err
		}
		for _, lid := range lids {
			h, err := r.rdb.HGetAll(ctx, keyLead(tid, lid)).Result()
			if err != nil {
				return nil, err
			}
			out = append(out, leadFromHash(tid, lid, h))
		}
	}
	return out, nil
}

// keyCallLeads tracks which leads of a tenant have calls, independent of lead documents.
func keyCallLeads(tid string) string { return keyTenant(tid) + ":call-leads" }

func (r *Redis) AppendCall(ctx context.Context, c calls.Call) error {
	if err := checkCall(c); err != nil {
		return err
	}
	b, err := json.Marshal(calls.RecordOf(c))
	if err != nil {
		return fmt.Errorf("store: encode call: %w", err)
	}

	added, err := appendCallScript.Run(ctx, r.rdb,
		[]string{keyLeadCalls(c.TenantID, c.LeadID), keyCallLeads(c.TenantID), keyTenants(), keyTenant(c.TenantID)},
		c.ID, b, c.LeadID, c.TenantID, fieldTenantCreated, r.now().Format(redisTimeLayout),
	).Int()
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// appendCallScript stores a call and indexes its lead and tenant in one step, so a
// stored call is always visible to ListCalls.
var appendCallScript = redis.NewScript(`
-- KEYS[1] = lead calls hash, KEYS[2] = tenant call-leads set
-- KEYS[3] = tenants set,     KEYS[4] = tenant hash
-- ARGV: call id, payload, lead id, tenant id, created field, created value
-- Returns 1 if stored, 0 if the call id already exists.
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('SADD', KEYS[2], ARGV[3])
redis.call('SADD', KEYS[3], ARGV[4])
redis.call('HSETNX', KEYS[4], ARGV[5], ARGV[6])
return 1
`)

func (r *Redis) ListCalls(ctx context.Context, tenantID string) ([]calls.Call, error) {
	lids, err := r.rdb.SMembers(ctx, keyCallLeads(tenantID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(lids)

	out := make([]calls.Call, 0)
	for _, lid := range lids {
		h, err := r.rdb.HGetAll(ctx, keyLeadCalls(tenantID, lid)).Result()
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(h))
		for id := range h {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			c, err := calls.Decode(calls.Path(tenantID, lid, id), id, []byte(h[id]))
			if err != nil {
				// Stored by AppendCall, so this only happens on foreign writes.
				continue
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Redis) ListAllCalls(ctx context.Context) ([]calls.Call, error) {
	tids, err := r.tenantIDs(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]calls.Call, 0)
	for _, tid := range tids {
		cs, err := r.ListCalls(ctx, tid)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

func (r *Redis) AppendEvent(ctx context.Context, e audit.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, keyEvents(e.TenantID), b)
		pipe.LTrim(ctx, keyEvents(e.TenantID), 0, redisEventsCap-1)
		return nil
	})
	return err
}

func (r *Redis) ListEvents(ctx context.Context, tenantID string, limit int) ([]audit.Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := r.rdb.LRange(ctx, keyEvents(tenantID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]audit.Event, 0, len(raw))
	for _, s := range raw {
		var e audit.Event
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribe listens on the call-created channel. The returned channel closes with ctx.
func (r *Redis) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	ps := r.rdb.Subscribe(ctx, redisCallsChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("store: subscribe: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()
	return out, nil
}

func (r *Redis) NotifyCallCreated(ctx context.Context, ev calls.Created) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, redisCallsChannel, b).Err()
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }
func (r *Redis) Close() error { return r.rdb.Close() }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(redisTimeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(redisTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
