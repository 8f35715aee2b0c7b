package httpapi

import (
	"calltrack/internal/auth"
	"calltrack/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the public /v1 API. Every route except token issuance requires an access token.
func (h Handlers) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/auth/token", h.IssueToken)

	authed := v1.Group("")
	authed.Use(auth.RequireAccessToken(h.Auth), rbac.RequireTenant())

	tenant := authed.Group("/tenants/:tenant_id", rbac.RequireTenantParam("tenant_id"))
	tenant.POST("/calls", rbac.RequireAnyRole(rbac.RoleIntegration, rbac.RoleOwner, rbac.RoleManager, rbac.RoleAgent), h.IngestCall)
	tenant.GET("/stats", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAgent), h.GetTenantStats)
	tenant.GET("/events", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager), h.ListEvents)

	readers := rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAgent)
	authed.GET("/leads", readers, h.ListLeads)
	authed.GET("/calls", readers, h.ListCalls)

	// No roles listed: only super_admin passes.
	authed.GET("/stats/overview", rbac.RequireAnyRole(), h.Overview)
}
