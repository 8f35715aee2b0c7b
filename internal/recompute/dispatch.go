package recompute

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SecretHeader carries the shared worker secret when no service account is configured.
const SecretHeader = "X-RECALC-SECRET"

type AuthMode string

const (
	AuthNone   AuthMode = ""
	AuthOIDC   AuthMode = "oidc"
	AuthSecret AuthMode = "secret"
)

var ErrSchedulingDisabled = errors.New("recompute: scheduling disabled")

// Settings configures delayed dispatch of recompute requests.
type Settings struct {
	Project  string
	Location string
	Queue    string

	WorkerURL      string
	ServiceAccount string
	Secret         string

	Delay    time.Duration
	MaxRetry int
}

// QueuePath returns projects/{p}/locations/{l}/queues/{q}.
func QueuePath(project, location, queue string) string {
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", project, location, queue)
}

func (s Settings) QueuePath() string { return QueuePath(s.Project, s.Location, s.Queue) }

// AuthMode prefers a service-account identity token over the shared secret.
func (s Settings) AuthMode() AuthMode {
	switch {
	case strings.TrimSpace(s.ServiceAccount) != "":
		return AuthOIDC
	case s.Secret != "":
		return AuthSecret
	default:
		return AuthNone
	}
}

// DisabledReason explains why scheduling is off, or returns "" when it is on.
func (s Settings) DisabledReason() string {
	var missing []string
	if s.Project == "" {
		missing = append(missing, "project")
	}
	if s.Location == "" {
		missing = append(missing, "location")
	}
	if s.Queue == "" {
		missing = append(missing, "queue")
	}
	if len(missing) > 0 {
		return "queue config missing: " + strings.Join(missing, ", ")
	}
	if s.WorkerURL == "" {
		return "worker url not set"
	}
	if s.AuthMode() == AuthNone {
		return "neither service account nor worker secret configured"
	}
	return ""
}

// Payload is the worker request body.
type Payload struct {
	TenantIDs []string `json:"tenantIds"`
}

// EncodeBody returns the base64 encoded JSON payload for the given tenants.
func EncodeBody(tenantIDs ...string) (string, error) {
	b, err := json.Marshal(Payload{TenantIDs: tenantIDs})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Dispatch is one scheduled, at-least-once HTTP callback to the worker.
type Dispatch struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body is base64 encoded.
	Body string `json:"body"`

	Auth           AuthMode `json:"auth"`
	ServiceAccount string   `json:"service_account,omitempty"`

	Queue     string    `json:"queue"`
	NotBefore time.Time `json:"not_before"`

	// Trigger identifiers, for logs only.
	TenantID string `json:"tenant_id,omitempty"`
	CallID   string `json:"call_id,omitempty"`
}

// DecodedBody returns the raw request body.
func (d Dispatch) DecodedBody() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Body)
}

// NewDispatch builds the dispatch for a tenant, due at now + Delay.
func (s Settings) NewDispatch(tenantID, callID string, now time.Time) (Dispatch, error) {
	if reason := s.DisabledReason(); reason != "" {
		return Dispatch{}, fmt.Errorf("%w: %s", ErrSchedulingDisabled, reason)
	}
	body, err := EncodeBody(tenantID)
	if err != nil {
		return Dispatch{}, err
	}
	delay := s.Delay
	if delay < 0 {
		delay = 0
	}

	d := Dispatch{
		Method:    http.MethodPost,
		URL:       s.WorkerURL,
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      body,
		Auth:      s.AuthMode(),
		Queue:     s.QueuePath(),
		NotBefore: now.Add(delay).UTC(),
		TenantID:  tenantID,
		CallID:    callID,
	}
	switch d.Auth {
	case AuthOIDC:
		d.ServiceAccount = s.ServiceAccount
	case AuthSecret:
		d.Headers[SecretHeader] = s.Secret
	}
	return d, nil
}

// Dispatcher schedules a Dispatch for later delivery.
type Dispatcher interface {
	Schedule(ctx context.Context, d Dispatch) error
}
