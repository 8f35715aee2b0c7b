package calls

import (
	"fmt"
	"strings"
)

// Filter selects calls for listings and exports.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterInbound  Filter = "inbound"
	FilterOutbound Filter = "outbound"
	FilterMissed   Filter = "missed"
	FilterRejected Filter = "rejected"
	FilterAnswered Filter = "answered"
)

// ParseFilter accepts any casing; empty means all.
func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterInbound, FilterOutbound, FilterMissed, FilterRejected, FilterAnswered:
		return f, nil
	default:
		return "", fmt.Errorf("unknown call filter %q", s)
	}
}

func (f Filter) Match(c Call) bool {
	cls := Classify(c)
	switch f {
	case FilterInbound:
		return cls.Inbound()
	case FilterOutbound:
		return cls.Outbound()
	case FilterMissed:
		return hinted(c, "in", OutcomeMissed)
	case FilterRejected:
		return hinted(c, "out", OutcomeRejected)
	case FilterAnswered:
		return cls.Answered()
	default:
		return true
	}
}

// hinted is the listing rule for missed/rejected: a zero-duration call whose direction
// contains dir, or any call carrying the outcome hint regardless of direction.
func hinted(c Call, dir, outcome string) bool {
	if normalizeOutcome(c.FinalOutcome) == outcome {
		return true
	}
	return c.DurationSeconds == 0 && strings.Contains(strings.ToLower(c.Direction), dir)
}
