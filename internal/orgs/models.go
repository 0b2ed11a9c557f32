package orgs

import (
	"errors"
	"time"

	"agentsdr/internal/rbac"
)

// Organization is the tenancy root. Every business row in the system carries
// an org_id referencing one of these.
type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Member links a user to an organization with a role.
//
// Invariant: (org_id, user_id) is unique; an org always has at least one owner.
type Member struct {
	OrgID     string    `json:"org_id" db:"org_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Invitation is a pending offer of membership. Accepting it creates a Member
// row. No invitation email is sent by this system; the token is handed to the
// frontend for delivery.
type Invitation struct {
	ID         string     `json:"id" db:"id"`
	OrgID      string     `json:"org_id" db:"org_id"`
	Email      string     `json:"email" db:"email"`
	Role       string     `json:"role" db:"role"`
	Token      string     `json:"token" db:"token"`
	InvitedBy  string     `json:"invited_by" db:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

var (
	// ErrNotFound aliases rbac.ErrNotFound so the rbac middleware can match
	// it with errors.Is without importing this package.
	ErrNotFound        = rbac.ErrNotFound
	ErrInvalidArgument = errors.New("orgs: invalid argument")
	ErrAlreadyMember   = errors.New("orgs: user is already a member")
	ErrLastOwner       = errors.New("orgs: cannot remove the last owner")
	ErrInviteExpired   = errors.New("orgs: invitation expired or already used")
)
