package calls

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClassify_EmptyCallIsUnclassified(t *testing.T) {
	if got := Classify(Call{}); got != Unclassified {
		t.Fatalf("expected unclassified, got %s", got)
	}
}

func TestClassify_InboundZeroDurationIsMissedRegardlessOfOutcome(t *testing.T) {
	for _, dir := range []string{"inbound", "Inbound", "INBOUND_CALL", "in"} {
		for _, outcome := range []string{"", "rejected", "answered", "MISSED"} {
			got := Classify(Call{Direction: dir, DurationSeconds: 0, FinalOutcome: outcome})
			if got != InboundMissed {
				t.Fatalf("dir=%q outcome=%q: expected inbound_missed, got %s", dir, outcome, got)
			}
		}
	}
}

func TestClassify_OutboundZeroDurationIsRejected(t *testing.T) {
	for _, dir := range []string{"outbound", "OUTBOUND", "out", "Outbound-Dial"} {
		got := Classify(Call{Direction: dir, DurationSeconds: 0})
		if got != OutboundRejected {
			t.Fatalf("dir=%q: expected outbound_rejected, got %s", dir, got)
		}
	}
}

func TestClassify_OutcomeHint(t *testing.T) {
	cases := []struct {
		name string
		call Call
		want Class
	}{
		{"inbound answered with missed hint", Call{Direction: "inbound", DurationSeconds: 12, FinalOutcome: " Missed "}, InboundMissed},
		{"outbound answered with rejected hint", Call{Direction: "outbound", DurationSeconds: 3, FinalOutcome: "rejected"}, OutboundRejected},
		{"inbound answered with rejected hint stays inbound", Call{Direction: "inbound", DurationSeconds: 3, FinalOutcome: "rejected"}, InboundAnswered},
		{"unknown direction missed hint stays unclassified", Call{FinalOutcome: "missed"}, Unclassified},
		{"unknown direction rejected hint stays unclassified", Call{Direction: "sideways", FinalOutcome: "REJECTED"}, Unclassified},
		{"unknown direction no hint", Call{Direction: "sideways", DurationSeconds: 9}, Unclassified},
		{"outbound answered", Call{Direction: "outbound", DurationSeconds: 42}, OutboundAnswered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.call); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDirectionOf_InWinsOverOut(t *testing.T) {
	if got := DirectionOf("in-out"); got != DirectionInbound {
		t.Fatalf("expected inbound, got %q", got)
	}
	if got := DirectionOf(""); got != DirectionUnknown {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestCoerceDuration(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{"", 0},
		{"abc", 0},
		{"12.5", 12.5},
		{float64(7), 7},
		{42, 42},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{-5.0, 0},
		{json.Number("30"), 30},
		{map[string]any{"x": 1}, 0},
	}
	for _, tc := range cases {
		if got := CoerceDuration(tc.in); got != tc.want {
			t.Fatalf("CoerceDuration(%#v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClass_Helpers(t *testing.T) {
	if !InboundMissed.Inbound() || !InboundMissed.Missed() || InboundMissed.Answered() {
		t.Fatalf("inbound_missed helpers wrong")
	}
	if !OutboundRejected.Outbound() || !OutboundRejected.Rejected() {
		t.Fatalf("outbound_rejected helpers wrong")
	}
	if Unclassified.Inbound() || Unclassified.Outbound() || Unclassified.Label() != "" {
		t.Fatalf("unclassified helpers wrong")
	}
	if OutboundAnswered.Label() != "Answered" || InboundMissed.Label() != "Missed" {
		t.Fatalf("unexpected labels")
	}
	if CompactDirection("Inbound") != "IN" || CompactDirection("outbound") != "OUT" || CompactDirection("x") != "x" {
		t.Fatalf("unexpected compact direction")
	}
}

func TestFilter_Match(t *testing.T) {
	missed := Call{Direction: "inbound"}
	answered := Call{Direction: "outbound", DurationSeconds: 10}

	if !FilterMissed.Match(missed) || FilterMissed.Match(answered) {
		t.Fatalf("missed filter wrong")
	}
	if !FilterAnswered.Match(answered) || FilterAnswered.Match(missed) {
		t.Fatalf("answered filter wrong")
	}
	if !FilterAll.Match(missed) || !FilterAll.Match(answered) {
		t.Fatalf("all filter must match everything")
	}

	f, err := ParseFilter(" Rejected ")
	if err != nil || f != FilterRejected {
		t.Fatalf("expected rejected filter, got %q %v", f, err)
	}
	if f, _ := ParseFilter(""); f != FilterAll {
		t.Fatalf("expected empty to mean all")
	}
	if _, err := ParseFilter("bogus"); err == nil {
		t.Fatalf("expected error for unknown filter")
	}
}

func TestFilter_HintAloneMatches(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		call   Call
		want   bool
	}{
		{"outbound answered with missed hint", FilterMissed, Call{Direction: "outbound", DurationSeconds: 12, FinalOutcome: "missed"}, true},
		{"inbound answered with rejected hint", FilterRejected, Call{Direction: "inbound", DurationSeconds: 4, FinalOutcome: " Rejected "}, true},
		{"no direction with missed hint", FilterMissed, Call{FinalOutcome: "missed"}, true},
		{"outbound zero duration is not missed", FilterMissed, Call{Direction: "outbound"}, false},
		{"inbound zero duration is not rejected", FilterRejected, Call{Direction: "inbound"}, false},
		{"answered inbound without hint", FilterMissed, Call{Direction: "inbound", DurationSeconds: 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(tc.call); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
