package calls

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Timestamp decodes the creation-time encodings seen on call records:
//
//   - structured {"seconds": s, "nanoseconds": n} (also "_seconds"/"_nanoseconds")
//   - a raw epoch-millisecond number
//   - a date string (RFC3339, or a plain YYYY-MM-DD date)
//   - null / missing
//
// Undecodable values leave the timestamp zero rather than failing the record.
type Timestamp struct {
	time.Time
}

type structuredTimestamp struct {
	Seconds      *float64 `json:"seconds"`
	Nanoseconds  float64  `json:"nanoseconds"`
	USeconds     *float64 `json:"_seconds"`
	UNanoseconds float64  `json:"_nanoseconds"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '{':
		var s structuredTimestamp
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		switch {
		case s.Seconds != nil:
			t.Time = fromSeconds(*s.Seconds, s.Nanoseconds)
		case s.USeconds != nil:
			t.Time = fromSeconds(*s.USeconds, s.UNanoseconds)
		}
		return nil
	case '"':
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil
		}
		t.Time = parseDateString(raw)
		return nil
	default:
		var ms float64
		if err := json.Unmarshal(b, &ms); err != nil {
			return nil
		}
		t.Time = fromMillis(ms)
		return nil
	}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Millis returns ms since epoch, or 0 when the timestamp is unknown.
func (t Timestamp) Millis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromSeconds(sec, nanos float64) time.Time {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}
	}
	n := int64(0)
	if !math.IsNaN(nanos) && !math.IsInf(nanos, 0) {
		n = int64(nanos)
	}
	return time.Unix(int64(sec), n).UTC()
}

func fromMillis(ms float64) time.Time {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func parseDateString(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
