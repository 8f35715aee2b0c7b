package rbac

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"calltrack/internal/auth"

	"github.com/gin-gonic/gin"
)

var ErrForbidden = errors.New("rbac: forbidden")

// RequireTenant enforces the multi-tenant invariant: tenant_id must exist in context.
// super_admin tokens are cross-tenant and pass without one.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if role, _ := auth.Role(ctx); IsSuperAdmin(role) {
			c.Next()
			return
		}
		tid, err := auth.TenantID(ctx)
		if err != nil || tid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}
		c.Next()
	}
}

// RequireTenantParam rejects requests whose path tenant differs from the caller's.
func RequireTenantParam(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := ScopeTenant(c.Request.Context(), c.Param(param)); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ScopeTenant resolves which tenant a read may touch.
// Tenant-bound callers always get their own tenant; asking for another is ErrForbidden.
// super_admin gets the requested tenant, where "" means all tenants.
func ScopeTenant(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if role, _ := auth.Role(ctx); IsSuperAdmin(role) {
		return requested, nil
	}
	own, err := auth.TenantID(ctx)
	if err != nil {
		return "", ErrForbidden
	}
	if requested != "" && requested != own {
		return "", ErrForbidden
	}
	return own, nil
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - super_admin bypasses all checks
// - integration is a hidden role, and will be denied unless explicitly allowed
// - tenant isolation is enforced via RequireTenant (use it in the chain)
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		// super_admin bypasses all
		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
