package reporting

import (
	"math"

	"calltrack/internal/calls"
	"calltrack/internal/tenants"
)

// Counts is the class breakdown of a set of calls.
type Counts struct {
	Calls        int64 `json:"calls"`
	Inbound      int64 `json:"inbound"`
	Outbound     int64 `json:"outbound"`
	Missed       int64 `json:"missed"`
	Rejected     int64 `json:"rejected"`
	Answered     int64 `json:"answered"`
	Unclassified int64 `json:"unclassified"`

	// DurationSeconds is the unrounded sum of coerced durations.
	DurationSeconds float64 `json:"duration_seconds"`
}

func (c *Counts) Add(call calls.Call) {
	c.Calls++
	c.DurationSeconds += call.DurationSeconds

	class := calls.Classify(call)
	switch {
	case class.Inbound():
		c.Inbound++
	case class.Outbound():
		c.Outbound++
	default:
		c.Unclassified++
	}
	if class.Missed() {
		c.Missed++
	}
	if class.Rejected() {
		c.Rejected++
	}
	if class.Answered() {
		c.Answered++
	}
}

// TotalDurationSeconds rounds the summed duration to whole seconds.
func (c Counts) TotalDurationSeconds() int64 {
	return int64(math.Round(c.DurationSeconds))
}

// Stats turns the breakdown into a tenant snapshot (LastRecalcAt left zero).
func (c Counts) Stats(leads int64) tenants.Stats {
	return tenants.Stats{
		LeadsCount:           leads,
		CallsCount:           c.Calls,
		InboundCount:         c.Inbound,
		OutboundCount:        c.Outbound,
		MissedCount:          c.Missed,
		RejectedCount:        c.Rejected,
		TotalDurationSeconds: c.TotalDurationSeconds(),
	}
}

// Summarize folds calls through the shared classifier.
func Summarize(cs []calls.Call) Counts {
	var out Counts
	for _, c := range cs {
		out.Add(c)
	}
	return out
}
