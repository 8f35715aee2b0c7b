package calls

import (
	"math"
	"strconv"
	"strings"
)

// Class is the derived category of a call. Every call maps to exactly one Class.
//
// This is the only classifier in the codebase. The aggregator, the read API and the
// latest-call resolver all go through Classify so their counts cannot drift apart.
type Class int

const (
	Unclassified Class = iota
	InboundAnswered
	InboundMissed
	OutboundAnswered
	OutboundRejected
)

func (c Class) Inbound() bool  { return c == InboundAnswered || c == InboundMissed }
func (c Class) Outbound() bool { return c == OutboundAnswered || c == OutboundRejected }
func (c Class) Missed() bool   { return c == InboundMissed }
func (c Class) Rejected() bool { return c == OutboundRejected }
func (c Class) Answered() bool { return c == InboundAnswered || c == OutboundAnswered }

// Label is the status shown next to a call row.
func (c Class) Label() string {
	switch {
	case c.Missed():
		return "Missed"
	case c.Rejected():
		return "Rejected"
	case c.Answered():
		return "Answered"
	default:
		return ""
	}
}

func (c Class) String() string {
	switch c {
	case InboundAnswered:
		return "inbound_answered"
	case InboundMissed:
		return "inbound_missed"
	case OutboundAnswered:
		return "outbound_answered"
	case OutboundRejected:
		return "outbound_rejected"
	default:
		return "unclassified"
	}
}

// DirectionOf maps a raw direction by case-insensitive substring.
// A value containing both "in" and "out" is inbound.
func DirectionOf(raw string) Direction {
	d := strings.ToLower(raw)
	if strings.Contains(d, "in") {
		return DirectionInbound
	}
	if strings.Contains(d, "out") {
		return DirectionOutbound
	}
	return DirectionUnknown
}

// CompactDirection renders "IN"/"OUT", or the raw value when it is not classifiable.
func CompactDirection(raw string) string {
	switch DirectionOf(raw) {
	case DirectionInbound:
		return "IN"
	case DirectionOutbound:
		return "OUT"
	default:
		return raw
	}
}

// CoerceDuration turns any decoded JSON value into a duration in seconds.
// nil, non-numeric, non-finite and negative values all become 0.
func CoerceDuration(v any) float64 {
	var n float64
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case int32:
		n = float64(t)
	case uint:
		n = float64(t)
	case uint64:
		n = float64(t)
	case bool:
		if t {
			n = 1
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		n = f
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}
	return n
}

func normalizeOutcome(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Classify derives the Class of a call.
//
// Direction decides first. A zero duration or a matching outcome hint marks the
// call missed (inbound) or rejected (outbound). A call without a usable direction
// is unclassified whatever its hint; Filter.Match still honors the hint for listings.
func Classify(c Call) Class {
	outcome := normalizeOutcome(c.FinalOutcome)
	zero := c.DurationSeconds == 0

	switch DirectionOf(c.Direction) {
	case DirectionInbound:
		if zero || outcome == OutcomeMissed {
			return InboundMissed
		}
		return InboundAnswered
	case DirectionOutbound:
		if zero || outcome == OutcomeRejected {
			return OutboundRejected
		}
		return OutboundAnswered
	}

	return Unclassified
}
