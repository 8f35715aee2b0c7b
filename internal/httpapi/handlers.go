package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"calltrack/internal/audit"
	"calltrack/internal/auth"
	"calltrack/internal/calllog"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/rbac"
	"calltrack/internal/store"
	"calltrack/internal/tenants"
	"calltrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Reader is the read side of the document store the API needs.
type Reader interface {
	GetTenant(ctx context.Context, tenantID string) (tenants.Tenant, error)
	ListTenants(ctx context.Context) ([]tenants.Tenant, error)
	ListLeads(ctx context.Context, tenantID string) ([]leads.Lead, error)
	ListCalls(ctx context.Context, tenantID string) ([]calls.Call, error)
	ListAllCalls(ctx context.Context) ([]calls.Call, error)
}

// Recorder is satisfied by calllog.Service.
type Recorder interface {
	Record(ctx context.Context, in calllog.Input) (calls.Call, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Store   Reader
	Calls   Recorder
	Leads   *leads.Resolver
	Journal *audit.Service

	// IssueTokens enables POST /v1/auth/token. Never set in production.
	IssueTokens bool
}

// --- Auth ---

type tokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role" binding:"required"`
}

// IssueToken issues a JWT token pair.
//
// NOTE: dev-only. Real deployments get tokens from the identity provider.
func (h Handlers) IssueToken(c *gin.Context) {
	if !h.IssueTokens {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	if req.TenantID == "" && !rbac.IsSuperAdmin(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type ingestCallRequest struct {
	CallID      string `json:"call_id" binding:"max=128"`
	LeadID      string `json:"lead_id" binding:"required_without=PhoneNumber,max=128"`
	LeadName    string `json:"lead_name"`
	PhoneNumber string `json:"phone_number" binding:"required_without=LeadID"`

	Direction       string     `json:"direction"`
	DurationSeconds float64    `json:"duration_seconds"`
	FinalOutcome    string     `json:"final_outcome"`
	CreatedAt       *time.Time `json:"created_at"`
}

// IngestCall logs one call for the path tenant.
// RBAC: integration, owner, manager, agent (tenant-scoped).
func (h Handlers) IngestCall(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log not configured"})
		return
	}
	tenantID := c.Param("tenant_id")
	c.Set("tenant_id", tenantID)

	var req ingestCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := calllog.Input{
		TenantID:        tenantID,
		LeadID:          req.LeadID,
		CallID:          req.CallID,
		LeadName:        req.LeadName,
		PhoneNumber:     req.PhoneNumber,
		Direction:       req.Direction,
		DurationSeconds: req.DurationSeconds,
		FinalOutcome:    req.FinalOutcome,
	}
	if req.CreatedAt != nil {
		in.CreatedAt = *req.CreatedAt
	}

	call, err := h.Calls.Record(c.Request.Context(), in)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already exists"})
		return
	case errors.Is(err, calllog.ErrInvalidInput), errors.Is(err, calls.ErrInvalidRecord):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error("call ingest failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call ingest failed"})
		return
	}
	c.JSON(http.StatusCreated, newCallView(call))
}

// --- Stats ---

type tenantStatsResponse struct {
	TenantID    string        `json:"tenant_id"`
	Stats       tenants.Stats `json:"stats"`
	HasCounters bool          `json:"has_counters"`

	InboundAnswered  int64 `json:"inbound_answered"`
	OutboundAnswered int64 `json:"outbound_answered"`
	Unclassified     int64 `json:"unclassified"`
}

func (h Handlers) GetTenantStats(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	tenantID := c.Param("tenant_id")
	c.Set("tenant_id", tenantID)

	t, err := h.Store.GetTenant(c.Request.Context(), tenantID)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("tenant lookup failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant lookup failed"})
		return
	}
	c.JSON(http.StatusOK, tenantStatsResponse{
		TenantID:         t.ID,
		Stats:            t.Stats,
		HasCounters:      t.HasCounters,
		InboundAnswered:  t.Stats.InboundAnswered(),
		OutboundAnswered: t.Stats.OutboundAnswered(),
		Unclassified:     t.Stats.Unclassified(),
	})
}

// Overview sums every tenant's stored snapshot.
// RBAC: super_admin only.
func (h Handlers) Overview(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	ts, err := h.Store.ListTenants(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("tenant listing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant listing failed"})
		return
	}
	c.JSON(http.StatusOK, tenants.Summarize(ts))
}

// --- Journal ---

func (h Handlers) ListEvents(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	limit, err := parseLimit(c.Query("limit"), 50, 500)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	events, err := h.Journal.List(c.Request.Context(), tenantID, limit)
	if err != nil {
		logger.FromGin(c).Error("journal read failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "journal read failed"})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
