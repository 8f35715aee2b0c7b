package leads

import (
	"time"

	"calltrack/internal/calls"
)

type Lead struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Name        string `json:"name,omitempty" db:"name"`
	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`

	LastSeenAt        time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
	LastInteractionAt time.Time `json:"last_interaction_at,omitempty" db:"last_interaction_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LatestCall is attached at read time and never stored.
	LatestCall *LatestCall `json:"latest_call"`
}

// Key identifies a lead. Lead ids are only unique within a tenant.
type Key struct {
	TenantID string
	LeadID   string
}

func (l Lead) Key() Key { return Key{TenantID: l.TenantID, LeadID: l.ID} }

// LastSeenMillis is the most recent of the lead's activity timestamps, 0 if none is set.
func (l Lead) LastSeenMillis() int64 {
	var best int64
	for _, ts := range []time.Time{l.LastSeenAt, l.LastInteractionAt, l.UpdatedAt, l.CreatedAt} {
		if ts.IsZero() {
			continue
		}
		if ms := ts.UnixMilli(); ms > best {
			best = ms
		}
	}
	return best
}

// LatestCall is the display projection of a lead's most recent call.
type LatestCall struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	LeadID          string    `json:"lead_id"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedMs       int64     `json:"created_ms"`
	Direction       string    `json:"direction,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	PhoneNumber     string    `json:"phone_number,omitempty"`
	Status          string    `json:"status,omitempty"`
	Path            string    `json:"path,omitempty"`
}

func latestOf(c calls.Call, key Key) LatestCall {
	return LatestCall{
		ID:              c.ID,
		TenantID:        key.TenantID,
		LeadID:          key.LeadID,
		CreatedAt:       c.CreatedAt,
		CreatedMs:       c.CreatedMillis(),
		Direction:       c.Direction,
		DurationSeconds: c.DurationSeconds,
		PhoneNumber:     c.PhoneNumber,
		Status:          calls.Classify(c).Label(),
		Path:            c.Path,
	}
}
