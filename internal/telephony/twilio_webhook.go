package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calltrack/internal/calllog"
)

// TwilioStatusForm captures the subset of voice status-callback fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioStatusForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	CallDuration string
	Timestamp    string
	CallerName   string
}

var ErrMissingCallSid = errors.New("twilio: CallSid required")

func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		Direction:    strings.ToLower(strings.TrimSpace(r.PostFormValue("Direction"))),
		CallStatus:   strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		CallDuration: strings.TrimSpace(r.PostFormValue("CallDuration")),
		Timestamp:    strings.TrimSpace(r.PostFormValue("Timestamp")),
		CallerName:   strings.TrimSpace(r.PostFormValue("CallerName")),
	}
	if f.CallSid == "" {
		return f, ErrMissingCallSid
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// Final reports whether the status ends the call. Progress callbacks are not logged.
func (f TwilioStatusForm) Final() bool {
	switch f.CallStatus {
	case "completed", "busy", "no-answer", "canceled", "failed":
		return true
	}
	return false
}

// Inbound is true for "inbound"; "outbound-api" and "outbound-dial" are outbound.
func (f TwilioStatusForm) Inbound() bool {
	return !strings.HasPrefix(f.Direction, "outbound")
}

// LeadPhone is the remote party: the caller on inbound calls, the callee otherwise.
func (f TwilioStatusForm) LeadPhone() string {
	if f.Inbound() {
		return f.From
	}
	return f.To
}

// OutcomeHint maps an unanswered final status onto the classifier's outcome hint.
func (f TwilioStatusForm) OutcomeHint() string {
	switch f.CallStatus {
	case "no-answer", "busy", "canceled", "failed":
		if f.Inbound() {
			return "missed"
		}
		return "rejected"
	}
	return ""
}

// OccurredAt parses the RFC 1123 Timestamp field, falling back to now.
func (f TwilioStatusForm) OccurredAt(now time.Time) time.Time {
	if f.Timestamp != "" {
		if t, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(time.RFC1123, f.Timestamp); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}

func (f TwilioStatusForm) ToInput(tenantID string, now time.Time) calllog.Input {
	direction := "outbound"
	if f.Inbound() {
		direction = "inbound"
	}
	var duration float64
	if f.CallStatus == "completed" {
		duration, _ = strconv.ParseFloat(f.CallDuration, 64)
	}
	return calllog.Input{
		TenantID:        tenantID,
		CallID:          f.CallSid,
		LeadName:        f.CallerName,
		PhoneNumber:     f.LeadPhone(),
		Direction:       direction,
		DurationSeconds: duration,
		FinalOutcome:    f.OutcomeHint(),
		CreatedAt:       f.OccurredAt(now),
	}
}
