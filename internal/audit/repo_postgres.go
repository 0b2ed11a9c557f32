package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events. Inserts only; the table should carry
// an INSERT-only policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, org_id, type, actor_user_id, actor_role,
  schedule_id, call_id, member_id, message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.OrgID, e.Type, e.ActorUserID, e.ActorRole,
		e.ScheduleID, e.CallID, e.MemberID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByOrg(ctx context.Context, orgID string, limit int) ([]Event, error) {
	const q = `
SELECT id, org_id, type, COALESCE(actor_user_id, ''), COALESCE(actor_role, ''),
       COALESCE(schedule_id, ''), COALESCE(call_id, ''), COALESCE(member_id, ''),
       COALESCE(message, ''), COALESCE(metadata, ''), created_at
FROM audit_events
WHERE org_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.OrgID, &e.Type, &e.ActorUserID, &e.ActorRole,
			&e.ScheduleID, &e.CallID, &e.MemberID, &e.Message, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
