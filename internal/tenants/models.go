package tenants

import "time"

// Tenant is the aggregate root: it owns leads, calls and one statistics snapshot.
type Tenant struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name,omitempty" db:"name"`

	Stats Stats `json:"stats"`

	// HasCounters is false until either the optimistic increment or a recompute touched the tenant.
	HasCounters bool `json:"has_counters"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Stats is the derived statistics snapshot of a tenant.
//
// Only two writers exist:
//   - the optimistic increment, which touches CallsCount alone
//   - the recompute, which overwrites every field below
//
// Invariants after a recompute:
//   - CallsCount == InboundCount + OutboundCount + Unclassified()
//   - MissedCount <= InboundCount
//   - RejectedCount <= OutboundCount
type Stats struct {
	LeadsCount           int64 `json:"leadsCount" db:"leads_count"`
	CallsCount           int64 `json:"callsCount" db:"calls_count"`
	InboundCount         int64 `json:"inboundCount" db:"inbound_count"`
	OutboundCount        int64 `json:"outboundCount" db:"outbound_count"`
	MissedCount          int64 `json:"missedCount" db:"missed_count"`
	RejectedCount        int64 `json:"rejectedCount" db:"rejected_count"`
	TotalDurationSeconds int64 `json:"totalDurationSeconds" db:"total_duration_seconds"`

	// LastRecalcAt is zero until the first recompute.
	LastRecalcAt time.Time `json:"lastRecalcAt" db:"last_recalc_at"`
}

// Unclassified is the number of calls without a usable direction.
func (s Stats) Unclassified() int64 {
	n := s.CallsCount - s.InboundCount - s.OutboundCount
	if n < 0 {
		return 0
	}
	return n
}

func (s Stats) InboundAnswered() int64  { return nonNegative(s.InboundCount - s.MissedCount) }
func (s Stats) OutboundAnswered() int64 { return nonNegative(s.OutboundCount - s.RejectedCount) }

// SameCounters compares the six counters and the duration, ignoring LastRecalcAt.
func (s Stats) SameCounters(o Stats) bool {
	s.LastRecalcAt = time.Time{}
	o.LastRecalcAt = time.Time{}
	return s == o
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
