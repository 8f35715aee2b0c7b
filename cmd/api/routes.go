package main

import (
	"context"
	"net/http"
	"time"

	"calltrack/internal/audit"
	"calltrack/internal/auth"
	"calltrack/internal/calllog"
	"calltrack/internal/config"
	"calltrack/internal/httpapi"
	"calltrack/internal/leads"
	"calltrack/internal/recompute"
	"calltrack/internal/store"
	"calltrack/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerPath is where scheduled recompute dispatches are delivered (TASK_WORKER_URL).
const WorkerPath = "/internal/recompute"

type routeDeps struct {
	cfg     config.Config
	auth    *auth.Manager
	store   store.Store
	calls   *calllog.Service
	leads   *leads.Resolver
	journal *audit.Service
	worker  *recompute.Worker
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "leads_indexed": d.leads.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public, signature-checked when TWILIO_AUTH_TOKEN is set).
	twilio := telephony.TwilioStatusHandler{
		Calls:         d.calls,
		AuthToken:     d.cfg.Twilio.AuthToken,
		PublicBaseURL: d.cfg.Twilio.PublicBaseURL,
	}
	r.POST("/webhooks/twilio/status", twilio.HandleStatusCallback)

	// Recompute worker: authenticated by worker secret or service identity token.
	d.worker.Mount(r, WorkerPath)

	httpapi.Handlers{
		Auth:        d.auth,
		Store:       d.store,
		Calls:       d.calls,
		Leads:       d.leads,
		Journal:     d.journal,
		IssueTokens: !d.cfg.IsProduction(),
	}.Register(r)
}
