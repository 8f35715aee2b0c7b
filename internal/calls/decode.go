package calls

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidRecord = errors.New("calls: invalid record")

var validate = validator.New()

// Record is the loose wire shape written by call-logging integrations.
// Only Decode should look at it.
type Record struct {
	Direction    Text      `json:"direction,omitempty"`
	Dir          Text      `json:"dir,omitempty"`
	Duration     any       `json:"durationInSeconds,omitempty"`
	DurationAlt  any       `json:"duration,omitempty"`
	CreatedAt    Timestamp `json:"createdAt"`
	CreatedAtAlt Timestamp `json:"created_at"`
	TS           Timestamp `json:"ts"`
	FinalOutcome Text      `json:"finalOutcome,omitempty"`
	TenantID     Text      `json:"tenantId,omitempty"`
	LeadID       Text      `json:"leadId,omitempty"`
	PhoneNumber  Text      `json:"phoneNumber,omitempty"`
	From         Text      `json:"from,omitempty"`
}

// Text decodes any JSON scalar as a string. Objects and arrays decode as "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = ""
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		*t = Text(x)
	case float64:
		*t = Text(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*t = Text(strconv.FormatBool(x))
	}
	return nil
}

// RecordOf is the inverse of Decode for stores that keep the wire shape.
func RecordOf(c Call) Record {
	return Record{
		Direction:    Text(c.Direction),
		Duration:     c.DurationSeconds,
		CreatedAt:    Timestamp{Time: c.CreatedAt},
		FinalOutcome: Text(c.FinalOutcome),
		TenantID:     Text(c.TenantID),
		LeadID:       Text(c.LeadID),
		PhoneNumber:  Text(c.PhoneNumber),
	}
}

// Decode turns a stored record into a validated Call.
//
// Explicit tenantId/leadId fields win; otherwise they are taken from the storage path.
// Field coercion never fails; only a record that still has no id, tenant or lead is rejected.
func Decode(path, id string, data []byte) (Call, error) {
	var r Record
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&r); err != nil {
			return Call{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
	}
	return FromRecord(path, id, r)
}

// FromRecord applies the same rules as Decode to an already unmarshalled Record.
func FromRecord(path, id string, r Record) (Call, error) {
	c := Call{
		ID:           strings.TrimSpace(id),
		TenantID:     strings.TrimSpace(string(r.TenantID)),
		LeadID:       strings.TrimSpace(string(r.LeadID)),
		Direction:    firstNonEmpty(string(r.Direction), string(r.Dir)),
		FinalOutcome: strings.TrimSpace(string(r.FinalOutcome)),
		PhoneNumber:  firstNonEmpty(string(r.PhoneNumber), string(r.From)),
		Path:         path,
	}

	if r.Duration != nil {
		c.DurationSeconds = CoerceDuration(r.Duration)
	} else {
		c.DurationSeconds = CoerceDuration(r.DurationAlt)
	}

	switch {
	case !r.CreatedAt.IsZero():
		c.CreatedAt = r.CreatedAt.Time
	case !r.CreatedAtAlt.IsZero():
		c.CreatedAt = r.CreatedAtAlt.Time
	case !r.TS.IsZero():
		c.CreatedAt = r.TS.Time
	}

	if pt, pl, pc, ok := ParsePath(path); ok {
		if c.TenantID == "" {
			c.TenantID = pt
		}
		if c.LeadID == "" {
			c.LeadID = pl
		}
		if c.ID == "" {
			c.ID = pc
		}
	}

	if err := c.Validate(); err != nil {
		return Call{}, err
	}
	return c, nil
}

// Validate checks the invariants of the validated shape.
func (c Call) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// ParsePath splits tenants/{tenant}/leads/{lead}/calls/{call}.
// A leading slash and a missing call segment are tolerated.
func ParsePath(path string) (tenantID, leadID, callID string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "tenants":
			if tenantID == "" {
				tenantID = parts[i+1]
			}
		case "leads":
			if leadID == "" {
				leadID = parts[i+1]
			}
		case "calls":
			if callID == "" {
				callID = parts[i+1]
			}
		}
	}
	return tenantID, leadID, callID, leadID != ""
}

// Path builds the storage path of a call.
func Path(tenantID, leadID, callID string) string {
	return "tenants/" + tenantID + "/leads/" + leadID + "/calls/" + callID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
