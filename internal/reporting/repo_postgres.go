package reporting

import (
	"context"
	"database/sql"
	"time"

	"agentsdr/internal/calls"
	"agentsdr/internal/callsched"
	"agentsdr/internal/digest"
)

// PostgresRepo reads the domain tables directly. Reporting queries are
// bounded by org and time range and never lock anything.
type PostgresRepo struct {
	db        *sql.DB
	schedules *callsched.PostgresRepo
	digests   *digest.PostgresRepo
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{
		db:        db,
		schedules: callsched.NewPostgresRepo(db),
		digests:   digest.NewPostgresRepo(db),
	}
}

func (r *PostgresRepo) ListCallRecords(ctx context.Context, orgID string, from, to time.Time) ([]calls.CallRecord, error) {
	const q = `
SELECT r.id, r.org_id, r.call_id, r.agent_id, r.contact_phone, COALESCE(r.contact_name, ''),
       r.call_duration, r.call_status,
       COALESCE(r.transcript_id, ''), COALESCE(r.summary_id, ''),
       r.crm_synced, COALESCE(r.crm_contact_id, ''), r.created_at, r.updated_at
FROM call_records r
WHERE r.org_id = $1 AND r.created_at >= $2 AND r.created_at < $3
ORDER BY r.created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.CallRecord
	for rows.Next() {
		var c calls.CallRecord
		if err := rows.Scan(
			&c.ID, &c.OrgID, &c.CallID, &c.AgentID, &c.ContactPhone, &c.ContactName,
			&c.Duration, &c.Status, &c.TranscriptID, &c.SummaryID,
			&c.CRMSynced, &c.CRMContactID, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListCallSchedules(ctx context.Context, orgID string) ([]callsched.Schedule, error) {
	return r.schedules.List(ctx, orgID, 500, 0)
}

func (r *PostgresRepo) ListEmailSchedules(ctx context.Context, orgID string) ([]digest.EmailSchedule, error) {
	return r.digests.List(ctx, orgID)
}
