package callsched

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const scheduleColumns = `
  id, org_id, agent_id, COALESCE(contact_id, ''), contact_phone,
  COALESCE(contact_name, ''), COALESCE(topic, ''), COALESCE(language, ''),
  scheduled_at, auto_trigger, COALESCE(checkup_days, 0), last_checkup_at,
  is_active, call_status, COALESCE(call_id, ''), COALESCE(last_error, ''),
  created_by, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (Schedule, error) {
	var s Schedule
	err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.AgentID,
		&s.ContactID,
		&s.ContactPhone,
		&s.ContactName,
		&s.Topic,
		&s.Language,
		&s.ScheduledAt,
		&s.AutoTrigger,
		&s.CheckupDays,
		&s.LastCheckupAt,
		&s.Active,
		&s.Status,
		&s.CallID,
		&s.LastError,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func insertSchedule(ctx context.Context, db *sql.DB, s Schedule) error {
	const q = `
INSERT INTO call_schedules (
  id, org_id, agent_id, contact_id, contact_phone, contact_name, topic,
  language, scheduled_at, auto_trigger, checkup_days, last_checkup_at,
  is_active, call_status, created_by, created_at, updated_at
) VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err := db.ExecContext(ctx, q,
		s.ID, s.OrgID, s.AgentID, s.ContactID, s.ContactPhone, s.ContactName, s.Topic,
		s.Language, s.ScheduledAt, s.AutoTrigger, s.CheckupDays, s.LastCheckupAt,
		s.Active, s.Status, s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func getSchedule(ctx context.Context, db *sql.DB, orgID, id string) (Schedule, error) {
	const q = `SELECT` + scheduleColumns + ` FROM call_schedules WHERE org_id = $1 AND id = $2`
	s, err := scanSchedule(db.QueryRowContext(ctx, q, orgID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, ErrNotFound
		}
		return Schedule{}, err
	}
	return s, nil
}

func findScheduleByCallID(ctx context.Context, db *sql.DB, orgID, callID string) (Schedule, error) {
	const q = `SELECT` + scheduleColumns + ` FROM call_schedules WHERE org_id = $1 AND call_id = $2`
	s, err := scanSchedule(db.QueryRowContext(ctx, q, orgID, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, ErrNotFound
		}
		return Schedule{}, err
	}
	return s, nil
}

func listSchedules(ctx context.Context, db *sql.DB, orgID string, limit, offset int) ([]Schedule, error) {
	const q = `
SELECT` + scheduleColumns + `
FROM call_schedules
WHERE org_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	return querySchedules(ctx, db, q, orgID, limit, offset)
}

// listCandidates returns active schedules in the scheduled state for an
// org. The coarse filter is the status; the precise due decision is
// Schedule.IsDue.
func listCandidates(ctx context.Context, db *sql.DB, orgID string) ([]Schedule, error) {
	const q = `
SELECT` + scheduleColumns + `
FROM call_schedules
WHERE org_id = $1 AND is_active AND call_status = 'scheduled'
ORDER BY created_at ASC
`
	return querySchedules(ctx, db, q, orgID)
}

func querySchedules(ctx context.Context, db *sql.DB, q string, args ...any) ([]Schedule, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// claimSchedule atomically moves a schedule from scheduled to in_progress.
// The conditional update is the claim: at most one caller sees a row.
func claimSchedule(ctx context.Context, db *sql.DB, orgID, id string, now time.Time) (Schedule, error) {
	const q = `
UPDATE call_schedules SET call_status = 'in_progress', updated_at = $3
WHERE org_id = $1 AND id = $2 AND is_active AND call_status = 'scheduled'
RETURNING` + scheduleColumns

	s, err := scanSchedule(db.QueryRowContext(ctx, q, orgID, id, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, ErrNotClaimable
		}
		return Schedule{}, err
	}
	return s, nil
}

// setScheduleOutcome records a status transition. Terminal statuses
// deactivate the schedule; scheduled and in_progress keep it live.
func setScheduleOutcome(ctx context.Context, db *sql.DB, orgID, id, status, callID, lastError string, now time.Time) error {
	const q = `
UPDATE call_schedules
SET call_status = $3, is_active = ($3 IN ('scheduled', 'in_progress')),
    call_id = NULLIF($4, ''), last_error = NULLIF($5, ''), updated_at = $6
WHERE org_id = $1 AND id = $2
`
	res, err := db.ExecContext(ctx, q, orgID, id, status, callID, lastError, now)
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

// cancelSchedule cancels only schedules that have not started yet.
func cancelSchedule(ctx context.Context, db *sql.DB, orgID, id string, now time.Time) error {
	const q = `
UPDATE call_schedules SET call_status = 'cancelled', is_active = FALSE, updated_at = $3
WHERE org_id = $1 AND id = $2 AND call_status = 'scheduled'
`
	res, err := db.ExecContext(ctx, q, orgID, id, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotClaimable
	}
	return nil
}

func setLastCheckup(ctx context.Context, db *sql.DB, orgID, id string, at time.Time, now time.Time) error {
	const q = `
UPDATE call_schedules SET last_checkup_at = $3, updated_at = $4
WHERE org_id = $1 AND id = $2
`
	_, err := db.ExecContext(ctx, q, orgID, id, at, now)
	return err
}
