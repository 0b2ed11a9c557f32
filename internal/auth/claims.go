package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
//
// Tokens are minted by the managed auth provider; this service only verifies
// them. Org membership and roles are NOT token claims here; they are resolved
// from the org_members table per request, so a role change takes effect
// without waiting for token expiry. SuperAdmin is the single platform-level
// claim the provider asserts.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	SuperAdmin bool   `json:"super_admin,omitempty"`
}
