package orgs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - organizations
// - org_members (UNIQUE (org_id, user_id))
// - invitations (UNIQUE token)

func insertOrganization(ctx context.Context, tx *sql.Tx, o Organization) error {
	const q = `
INSERT INTO organizations (id, name, slug, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := tx.ExecContext(ctx, q, o.ID, o.Name, o.Slug, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	return err
}

func getOrganization(ctx context.Context, db *sql.DB, orgID string) (Organization, error) {
	const q = `
SELECT id, name, slug, created_by, created_at, updated_at
FROM organizations
WHERE id = $1
`
	var o Organization
	if err := db.QueryRowContext(ctx, q, orgID).Scan(
		&o.ID,
		&o.Name,
		&o.Slug,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

func listOrganizationsForUser(ctx context.Context, db *sql.DB, userID string) ([]Organization, error) {
	const q = `
SELECT o.id, o.name, o.slug, o.created_by, o.created_at, o.updated_at
FROM organizations o
JOIN org_members m ON m.org_id = o.id
WHERE m.user_id = $1
ORDER BY o.created_at
`
	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func listAllOrgIDs(ctx context.Context, db *sql.DB) ([]string, error) {
	const q = `SELECT id FROM organizations ORDER BY created_at`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func insertMember(ctx context.Context, tx *sql.Tx, m Member) error {
	const q = `
INSERT INTO org_members (org_id, user_id, role, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := tx.ExecContext(ctx, q, m.OrgID, m.UserID, m.Role, m.CreatedAt, m.UpdatedAt)
	return err
}

func getMember(ctx context.Context, db *sql.DB, orgID, userID string) (Member, error) {
	const q = `
SELECT org_id, user_id, role, created_at, updated_at
FROM org_members
WHERE org_id = $1 AND user_id = $2
`
	var m Member
	if err := db.QueryRowContext(ctx, q, orgID, userID).Scan(
		&m.OrgID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

func listMembers(ctx context.Context, db *sql.DB, orgID string) ([]Member, error) {
	const q = `
SELECT org_id, user_id, role, created_at, updated_at
FROM org_members
WHERE org_id = $1
ORDER BY created_at
`
	rows, err := db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func updateMemberRole(ctx context.Context, db *sql.DB, orgID, userID, role string, now time.Time) error {
	const q = `
UPDATE org_members SET role = $3, updated_at = $4
WHERE org_id = $1 AND user_id = $2
`
	res, err := db.ExecContext(ctx, q, orgID, userID, role, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteMember(ctx context.Context, db *sql.DB, orgID, userID string) error {
	const q = `DELETE FROM org_members WHERE org_id = $1 AND user_id = $2`
	res, err := db.ExecContext(ctx, q, orgID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func countOwners(ctx context.Context, db *sql.DB, orgID string) (int, error) {
	const q = `SELECT COUNT(*) FROM org_members WHERE org_id = $1 AND role = 'owner'`
	var n int
	if err := db.QueryRowContext(ctx, q, orgID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func insertInvitation(ctx context.Context, db *sql.DB, inv Invitation) error {
	const q = `
INSERT INTO invitations (id, org_id, email, role, token, invited_by, expires_at, accepted_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := db.ExecContext(ctx, q,
		inv.ID,
		inv.OrgID,
		inv.Email,
		inv.Role,
		inv.Token,
		inv.InvitedBy,
		inv.ExpiresAt,
		inv.AcceptedAt,
		inv.CreatedAt,
	)
	return err
}

func listInvitations(ctx context.Context, db *sql.DB, orgID string) ([]Invitation, error) {
	const q = `
SELECT id, org_id, email, role, token, invited_by, expires_at, accepted_at, created_at
FROM invitations
WHERE org_id = $1
ORDER BY created_at DESC
`
	rows, err := db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(
			&inv.ID,
			&inv.OrgID,
			&inv.Email,
			&inv.Role,
			&inv.Token,
			&inv.InvitedBy,
			&inv.ExpiresAt,
			&inv.AcceptedAt,
			&inv.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func getInvitationByToken(ctx context.Context, db *sql.DB, token string) (Invitation, error) {
	const q = `
SELECT id, org_id, email, role, token, invited_by, expires_at, accepted_at, created_at
FROM invitations
WHERE token = $1
`
	var inv Invitation
	if err := db.QueryRowContext(ctx, q, token).Scan(
		&inv.ID,
		&inv.OrgID,
		&inv.Email,
		&inv.Role,
		&inv.Token,
		&inv.InvitedBy,
		&inv.ExpiresAt,
		&inv.AcceptedAt,
		&inv.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, err
	}
	return inv, nil
}

// markInvitationAccepted claims the invitation only if it is still open.
// The conditional WHERE makes concurrent accepts settle on one winner.
func markInvitationAccepted(ctx context.Context, tx *sql.Tx, invID string, now time.Time) (bool, error) {
	const q = `
UPDATE invitations SET accepted_at = $2
WHERE id = $1 AND accepted_at IS NULL AND expires_at > $2
`
	res, err := tx.ExecContext(ctx, q, invID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func deleteInvitation(ctx context.Context, db *sql.DB, orgID, invID string) error {
	const q = `DELETE FROM invitations WHERE org_id = $1 AND id = $2 AND accepted_at IS NULL`
	res, err := db.ExecContext(ctx, q, orgID, invID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
