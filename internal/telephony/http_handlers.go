package telephony

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"calltrack/internal/calllog"
	"calltrack/internal/calls"
	"calltrack/internal/store"
	"calltrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recorder is satisfied by calllog.Service.
type Recorder interface {
	Record(ctx context.Context, in calllog.Input) (calls.Call, error)
}

// TwilioStatusHandler turns final call status callbacks into logged calls.
//
// Tenant scoping:
//   - the callback URL carries ?tenant_id=..., set when the number was provisioned.
type TwilioStatusHandler struct {
	Calls Recorder

	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string

	// PublicBaseURL is the externally visible scheme+host Twilio signed against.
	// Empty means the request's own host.
	PublicBaseURL string

	Now func() time.Time
}

func (h TwilioStatusHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log not configured"})
		return
	}

	form, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.AuthToken != "" {
		if !ValidSignature(h.AuthToken, h.signedURL(c.Request), c.Request.PostForm, c.GetHeader(SignatureHeader)) {
			log.Warn("twilio signature rejected", "call_sid", form.CallSid)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	tenantID := strings.TrimSpace(c.Query("tenant_id"))
	if tenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	if !form.Final() {
		c.Status(http.StatusNoContent)
		return
	}

	call, err := h.Calls.Record(c.Request.Context(), form.ToInput(tenantID, h.Now()))
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		// Twilio retries callbacks; the first delivery already logged the call.
		c.Status(http.StatusNoContent)
		return
	case errors.Is(err, calllog.ErrInvalidInput), errors.Is(err, calls.ErrInvalidRecord):
		log.Warn("twilio call rejected", "tenant_id", tenantID, "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error("twilio call log failed", "tenant_id", tenantID, "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log failed"})
		return
	}

	log.Info("twilio call logged", "tenant_id", call.TenantID, "lead_id", call.LeadID, "call_id", call.ID, "status", form.CallStatus)
	c.Status(http.StatusNoContent)
}

func (h TwilioStatusHandler) signedURL(r *http.Request) string {
	base := strings.TrimRight(h.PublicBaseURL, "/")
	if base == "" {
		scheme := "https"
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
			scheme = "http"
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}
