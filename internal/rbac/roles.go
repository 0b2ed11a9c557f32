package rbac

// Org role names. Keep these stable; they are part of API contracts and the
// org_members.role column.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IsAssignableRole reports whether a role may be granted through membership
// management or invitations.
func IsAssignableRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// CanManageOrg reports whether a role may change members, invitations and
// schedules for its org.
func CanManageOrg(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}
