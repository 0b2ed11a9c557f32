package rbac

import (
	"context"
	"errors"
	"net/http"

	"agentsdr/internal/auth"

	"github.com/gin-gonic/gin"
)

// ctxOrgRole carries the resolved org role through the request.
const ctxOrgRole = "org_role"

// ErrNotFound is the sentinel resolvers return when the user is not a member.
// orgs.ErrNotFound aliases this value so errors.Is matches across packages
// without an import cycle between orgs and rbac.
var ErrNotFound = errors.New("orgs: not found")

// RoleResolver looks up the caller's role within an org.
// It must return ErrNotFound (aka orgs.ErrNotFound) when the user is not a member.
type RoleResolver interface {
	MemberRole(ctx context.Context, orgID, userID string) (string, error)
}

// RequireOrgRole enforces the multi-tenant invariant: the org_id path segment
// must name an org the caller belongs to, with one of the allowed roles.
// Rules:
// - platform super_admin (JWT claim) bypasses membership checks
// - non-members get 404 rather than 403 to avoid leaking org existence
func RequireOrgRole(resolver RoleResolver, allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		orgID := c.Param("org_id")
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "org_id required"})
			return
		}

		userID, err := auth.UserID(c.Request.Context())
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
			return
		}

		if auth.IsSuperAdmin(c.Request.Context()) {
			c.Set(ctxOrgRole, RoleOwner)
			c.Next()
			return
		}

		role, err := resolver.MemberRole(c.Request.Context(), orgID, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "membership lookup failed"})
			return
		}

		if len(allowedSet) > 0 {
			if _, ok := allowedSet[role]; !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
				return
			}
		}

		c.Set(ctxOrgRole, role)
		c.Next()
	}
}

// OrgRole returns the role resolved by RequireOrgRole for this request.
func OrgRole(c *gin.Context) string {
	if v, ok := c.Get(ctxOrgRole); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
