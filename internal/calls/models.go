package calls

import "time"

// Call is the validated, tenant-scoped call record.
//
// Multi-tenant invariant: every call belongs to exactly one lead which belongs to exactly one tenant.
// Lead ids are only unique within a tenant, so (TenantID, LeadID) is the identity of the owner.
//
// Calls are append-only. Nothing in the aggregation path updates or deletes them.
//
// NOTE: Call is produced by Decode (or by a typed store scan). Loose wire values never
// reach business logic; DurationSeconds is already coerced and CreatedAt already normalized.
type Call struct {
	ID       string `json:"id" validate:"required"`
	TenantID string `json:"tenant_id" validate:"required"`
	LeadID   string `json:"lead_id" validate:"required"`

	// Direction is kept raw ("Inbound", "INBOUND_CALL", ...). Use DirectionOf / Classify.
	Direction string `json:"direction"`

	// DurationSeconds is never negative and never NaN.
	DurationSeconds float64 `json:"duration_in_seconds" validate:"gte=0"`

	// FinalOutcome is an optional hint from the call-logging integration ("missed", "rejected").
	FinalOutcome string `json:"final_outcome,omitempty"`

	PhoneNumber string `json:"phone_number,omitempty"`

	// CreatedAt is zero when the record carried no usable timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Path is the storage path tenants/{tenant}/leads/{lead}/calls/{call} when known.
	Path string `json:"path,omitempty"`
}

// CreatedMillis returns CreatedAt as ms since epoch, or 0 when unknown.
func (c Call) CreatedMillis() int64 {
	if c.CreatedAt.IsZero() {
		return 0
	}
	return c.CreatedAt.UnixMilli()
}

// Created is the event emitted once per newly stored call.
type Created struct {
	TenantID string `json:"tenant_id"`
	LeadID   string `json:"lead_id"`
	CallID   string `json:"call_id"`
}

type Direction string

const (
	DirectionUnknown  Direction = ""
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Outcome hints recognised on Call.FinalOutcome.
const (
	OutcomeMissed   = "missed"
	OutcomeRejected = "rejected"
)
