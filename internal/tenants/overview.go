package tenants

import (
	"sort"
	"time"
)

// Overview is the cross-tenant dashboard rollup.
type Overview struct {
	TenantCount int   `json:"tenant_count"`
	Totals      Stats `json:"totals"`

	InboundAnswered  int64 `json:"inbound_answered"`
	OutboundAnswered int64 `json:"outbound_answered"`

	// FastPath is true when at least one tenant carries stored counters.
	FastPath bool `json:"fast_path"`

	// LastRecalcAt is the most recent recompute across tenants (freshness hint).
	LastRecalcAt *time.Time `json:"last_recalc_at,omitempty"`

	TopByCalls []TenantCalls `json:"top_by_calls"`
}

type TenantCalls struct {
	TenantID string `json:"tenant_id"`
	Calls    int64  `json:"calls"`
}

const topByCallsLimit = 8

// Summarize sums the stored snapshots of the given tenants.
func Summarize(ts []Tenant) Overview {
	out := Overview{TenantCount: len(ts), TopByCalls: make([]TenantCalls, 0, len(ts))}
	for _, t := range ts {
		s := t.Stats
		out.Totals.LeadsCount += s.LeadsCount
		out.Totals.CallsCount += s.CallsCount
		out.Totals.InboundCount += s.InboundCount
		out.Totals.OutboundCount += s.OutboundCount
		out.Totals.MissedCount += s.MissedCount
		out.Totals.RejectedCount += s.RejectedCount
		out.Totals.TotalDurationSeconds += s.TotalDurationSeconds

		if t.HasCounters {
			out.FastPath = true
		}
		if !s.LastRecalcAt.IsZero() && (out.LastRecalcAt == nil || s.LastRecalcAt.After(*out.LastRecalcAt)) {
			ts := s.LastRecalcAt
			out.LastRecalcAt = &ts
		}
		out.TopByCalls = append(out.TopByCalls, TenantCalls{TenantID: t.ID, Calls: s.CallsCount})
	}
	out.Totals.LastRecalcAt = time.Time{}
	if out.LastRecalcAt != nil {
		out.Totals.LastRecalcAt = *out.LastRecalcAt
	}
	out.InboundAnswered = out.Totals.InboundAnswered()
	out.OutboundAnswered = out.Totals.OutboundAnswered()

	sort.SliceStable(out.TopByCalls, func(i, j int) bool { return out.TopByCalls[i].Calls > out.TopByCalls[j].Calls })
	if len(out.TopByCalls) > topByCallsLimit {
		out.TopByCalls = out.TopByCalls[:topByCallsLimit]
	}
	return out
}
