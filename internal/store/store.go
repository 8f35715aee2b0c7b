package store

import (
	"context"
	"errors"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/reporting"
	"calltrack/internal/tenants"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalid       = errors.New("store: invalid document")
)

// Store is the tenant document store.
//
// Layout (logical): tenants/{tenantId} holds the stats snapshot,
// tenants/{tenantId}/leads/{leadId} the lead and
// tenants/{tenantId}/leads/{leadId}/calls/{callId} the immutable call.
//
// Implementations must:
// - scope every tenant read to that tenant
// - increment callsCount atomically
// - never update or delete calls
type Store interface {
	reporting.Repository
	audit.Repository
	audit.Reader
	leads.Feed

	IncrementCallsCount(ctx context.Context, tenantID string, delta int64) error
	GetTenant(ctx context.Context, tenantID string) (tenants.Tenant, error)
	ListTenants(ctx context.Context) ([]tenants.Tenant, error)

	// UpsertLead merges non-empty fields onto the stored lead and returns the result.
	UpsertLead(ctx context.Context, l leads.Lead) (leads.Lead, error)
	GetLead(ctx context.Context, tenantID, leadID string) (leads.Lead, error)
	// ListLeads lists the leads of a tenant, or of every tenant when tenantID is empty.
	ListLeads(ctx context.Context, tenantID string) ([]leads.Lead, error)

	// AppendCall stores a new call; a replayed id returns ErrAlreadyExists.
	AppendCall(ctx context.Context, c calls.Call) error
	ListAllCalls(ctx context.Context) ([]calls.Call, error)

	// NotifyCallCreated wakes feed subscribers.
	NotifyCallCreated(ctx context.Context, ev calls.Created) error

	Ping(ctx context.Context) error
	Close() error
}

func checkCall(c calls.Call) error {
	if c.ID == "" || c.TenantID == "" || c.LeadID == "" {
		return ErrInvalid
	}
	return nil
}

func checkLead(l leads.Lead) error {
	if l.ID == "" || l.TenantID == "" {
		return ErrInvalid
	}
	return nil
}

// mergeLead applies the non-empty fields of in onto cur.
func mergeLead(cur, in leads.Lead) leads.Lead {
	out := cur
	out.ID, out.TenantID = in.ID, in.TenantID
	if in.Name != "" {
		out.Name = in.Name
	}
	if in.PhoneNumber != "" {
		out.PhoneNumber = in.PhoneNumber
	}
	if in.LastSeenAt.After(out.LastSeenAt) {
		out.LastSeenAt = in.LastSeenAt
	}
	if in.LastInteractionAt.After(out.LastInteractionAt) {
		out.LastInteractionAt = in.LastInteractionAt
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = in.CreatedAt
	}
	if !in.UpdatedAt.IsZero() {
		out.UpdatedAt = in.UpdatedAt
	}
	out.LatestCall = nil
	return out
}
