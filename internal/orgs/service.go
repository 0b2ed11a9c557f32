package orgs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"agentsdr/internal/rbac"
	"agentsdr/pkg/logger"
	"agentsdr/pkg/utils"

	"github.com/google/uuid"
)

// Service provides organization, membership and invitation operations.
//
// Tenancy invariants:
// - org_id is required and enforced in all queries.
// - The creator of an org becomes its first owner in the same transaction.
// - An org must keep at least one owner at all times.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

type CreateOrgRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// invitationTTL is how long an invitation token stays redeemable.
const invitationTTL = 7 * 24 * time.Hour

func (s *Service) Create(ctx context.Context, userID string, req CreateOrgRequest) (Organization, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(strings.ToLower(req.Slug))
	if userID == "" || req.Name == "" {
		return Organization{}, ErrInvalidArgument
	}
	if req.Slug == "" || !slugRe.MatchString(req.Slug) {
		return Organization{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	org := Organization{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Slug:      req.Slug,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertOrganization(ctx, tx, org); err != nil {
			return err
		}
		return insertMember(ctx, tx, Member{
			OrgID:     org.ID,
			UserID:    userID,
			Role:      rbac.RoleOwner,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, orgID string) (Organization, error) {
	if orgID == "" {
		return Organization{}, ErrInvalidArgument
	}
	return getOrganization(ctx, s.db, orgID)
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Organization, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return listOrganizationsForUser(ctx, s.db, userID)
}

// ListAllOrgIDs is used by the scheduler to iterate every tenant.
func (s *Service) ListAllOrgIDs(ctx context.Context) ([]string, error) {
	return listAllOrgIDs(ctx, s.db)
}

// MemberRole resolves the caller's role within an org; ErrNotFound means the
// user is not a member.
func (s *Service) MemberRole(ctx context.Context, orgID, userID string) (string, error) {
	if orgID == "" || userID == "" {
		return "", ErrInvalidArgument
	}
	m, err := getMember(ctx, s.db, orgID, userID)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (s *Service) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	if orgID == "" {
		return nil, ErrInvalidArgument
	}
	return listMembers(ctx, s.db, orgID)
}

func (s *Service) ChangeMemberRole(ctx context.Context, orgID, userID, role string) error {
	if orgID == "" || userID == "" || !rbac.IsAssignableRole(role) {
		return ErrInvalidArgument
	}
	// Demoting the last owner would leave the org unmanageable.
	if role != rbac.RoleOwner {
		m, err := getMember(ctx, s.db, orgID, userID)
		if err != nil {
			return err
		}
		if m.Role == rbac.RoleOwner {
			n, err := countOwners(ctx, s.db, orgID)
			if err != nil {
				return err
			}
			if n <= 1 {
				return ErrLastOwner
			}
		}
	}
	return updateMemberRole(ctx, s.db, orgID, userID, role, s.clock().UTC())
}

func (s *Service) RemoveMember(ctx context.Context, orgID, userID string) error {
	if orgID == "" || userID == "" {
		return ErrInvalidArgument
	}
	m, err := getMember(ctx, s.db, orgID, userID)
	if err != nil {
		return err
	}
	if m.Role == rbac.RoleOwner {
		n, err := countOwners(ctx, s.db, orgID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastOwner
		}
	}
	return deleteMember(ctx, s.db, orgID, userID)
}

func (s *Service) Invite(ctx context.Context, orgID, invitedBy string, req InviteRequest) (Invitation, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if orgID == "" || invitedBy == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		return Invitation{}, ErrInvalidArgument
	}
	if !rbac.IsAssignableRole(req.Role) {
		return Invitation{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	inv := Invitation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Email:     req.Email,
		Role:      req.Role,
		Token:     uuid.NewString(),
		InvitedBy: invitedBy,
		ExpiresAt: now.Add(invitationTTL),
		CreatedAt: now,
	}
	if err := insertInvitation(ctx, s.db, inv); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

func (s *Service) ListInvitations(ctx context.Context, orgID string) ([]Invitation, error) {
	if orgID == "" {
		return nil, ErrInvalidArgument
	}
	return listInvitations(ctx, s.db, orgID)
}

func (s *Service) RevokeInvitation(ctx context.Context, orgID, invID string) error {
	if orgID == "" || invID == "" {
		return ErrInvalidArgument
	}
	return deleteInvitation(ctx, s.db, orgID, invID)
}

// AcceptInvitation redeems a token for the authenticated user. The claim is a
// conditional update, so a token can be redeemed exactly once.
func (s *Service) AcceptInvitation(ctx context.Context, userID, token string) (Member, error) {
	if userID == "" || token == "" {
		return Member{}, ErrInvalidArgument
	}

	inv, err := getInvitationByToken(ctx, s.db, token)
	if err != nil {
		return Member{}, err
	}

	now := s.clock().UTC()
	member := Member{
		OrgID:     inv.OrgID,
		UserID:    userID,
		Role:      inv.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := getMember(ctx, s.db, inv.OrgID, userID); err == nil {
		return Member{}, ErrAlreadyMember
	} else if !errors.Is(err, ErrNotFound) {
		return Member{}, err
	}

	err = utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		claimed, err := markInvitationAccepted(ctx, tx, inv.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrInviteExpired
		}
		return insertMember(ctx, tx, member)
	})
	if err != nil {
		return Member{}, err
	}
	logger.From(ctx).Debug("invitation accepted", "org_id", inv.OrgID, "user_id", userID)
	return member, nil
}
