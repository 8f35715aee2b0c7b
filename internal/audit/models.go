package audit

import "time"

// Event is an immutable, append-only record of the recompute pipeline.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required.
// - journal writes are best-effort; the pipeline outcome never depends on them.
type Event struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Type     EventType `json:"type" db:"type"`

	// Trigger identifiers, set for increment/schedule failures.
	LeadID string `json:"lead_id,omitempty" db:"lead_id"`
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Source names the adapter that produced the event (worker, scheduler, cli).
	Source string `json:"source,omitempty" db:"source"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON, e.g. the written snapshot.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	DurationMillis int64 `json:"duration_ms,omitempty" db:"duration_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventRecomputeDone   EventType = "recompute_done"
	EventRecomputeFailed EventType = "recompute_failed"
	EventIncrementFailed EventType = "increment_failed"
	EventScheduleFailed  EventType = "schedule_failed"
)

func (t EventType) Valid() bool {
	switch t {
	case EventRecomputeDone, EventRecomputeFailed, EventIncrementFailed, EventScheduleFailed:
		return true
	}
	return false
}
