package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/tenants"
)

type callKey struct {
	tenantID, leadID, callID string
}

// Memory is an in-process Store for tests and local development.
type Memory struct {
	mu sync.RWMutex

	tenants     map[string]tenants.Tenant
	tenantOrder []string

	leads     map[leads.Key]leads.Lead
	leadOrder []leads.Key

	calls     []calls.Call
	callIndex map[callKey]struct{}

	events []audit.Event

	feed *broadcaster
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tenants:   map[string]tenants.Tenant{},
		leads:     map[leads.Key]leads.Lead{},
		callIndex: map[callKey]struct{}{},
		feed:      newBroadcaster(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ensureTenant must be called with mu held.
func (m *Memory) ensureTenant(tenantID string) tenants.Tenant {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = tenants.Tenant{ID: tenantID, CreatedAt: m.now()}
		m.tenants[tenantID] = t
		m.tenantOrder = append(m.tenantOrder, tenantID)
	}
	return t
}

// PutTenant creates or renames a tenant.
func (m *Memory) PutTenant(tenantID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.ensureTenant(tenantID)
	t.Name = name
	m.tenants[tenantID] = t
}

func (m *Memory) IncrementCallsCount(ctx context.Context, tenantID string, delta int64) error {
	if tenantID == "" {
		return ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.ensureTenant(tenantID)
	t.Stats.CallsCount += delta
	t.HasCounters = true
	m.tenants[tenantID] = t
	return nil
}

func (m *Memory) MergeStats(ctx context.Context, tenantID string, stats tenants.Stats) error {
	if tenantID == "" {
		return ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.ensureTenant(tenantID)
	t.Stats = stats
	t.HasCounters = true
	m.tenants[tenantID] = t
	return nil
}

func (m *Memory) GetTenant(ctx context.Context, tenantID string) (tenants.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return tenants.Tenant{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTenants(ctx context.Context) ([]tenants.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tenants.Tenant, 0, len(m.tenantOrder))
	for _, id := range m.tenantOrder {
		out = append(out, m.tenants[id])
	}
	return out, nil
}

func (m *Memory) UpsertLead(ctx context.Context, l leads.Lead) (leads.Lead, error) {
	if err := checkLead(l); err != nil {
		return leads.Lead{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTenant(l.TenantID)

	k := l.Key()
	cur, ok := m.leads[k]
	if !ok {
		m.leadOrder = append(m.leadOrder, k)
		if l.CreatedAt.IsZero() {
			l.CreatedAt = m.now()
		}
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = m.now()
	}
	out := mergeLead(cur, l)
	m.leads[k] = out
	return out, nil
}

func (m *Memory) GetLead(ctx context.Context, tenantID, leadID string) (leads.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[leads.Key{TenantID: tenantID, LeadID: leadID}]
	if !ok {
		return leads.Lead{}, ErrNotFound
	}
	return l, nil
}

func (m *Memory) ListLeads(ctx context.Context, tenantID string) ([]leads.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]leads.Lead, 0)
	for _, k := range m.leadOrder {
		if tenantID != "" && k.TenantID != tenantID {
			continue
		}
		out = append(out, m.leads[k])
	}
	return out, nil
}

func (m *Memory) ListLeadIDs(ctx context.Context, tenantID string) ([]string, error) {
	ls, err := m.ListLeads(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out, nil
}

func (m *Memory) AppendCall(ctx context.Context, c calls.Call) error {
	if err := checkCall(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := callKey{c.TenantID, c.LeadID, c.ID}
	if _, dup := m.callIndex[k]; dup {
		return ErrAlreadyExists
	}
	m.ensureTenant(c.TenantID)
	c.Path = calls.Path(c.TenantID, c.LeadID, c.ID)
	m.callIndex[k] = struct{}{}
	m.calls = append(m.calls, c)
	return nil
}

func (m *Memory) ListCalls(ctx context.Context, tenantID string) ([]calls.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]calls.Call, 0)
	for _, c := range m.calls {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ListAllCalls(ctx context.Context) ([]calls.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]calls.Call, len(m.calls))
	copy(out, m.calls)
	return out, nil
}

func (m *Memory) AppendEvent(ctx context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, tenantID string, limit int) ([]audit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]audit.Event, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].TenantID == tenantID {
			out = append(out, m.events[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	return m.feed.Subscribe(ctx)
}

func (m *Memory) NotifyCallCreated(ctx context.Context, ev calls.Created) error {
	m.feed.Notify()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error { return nil }
