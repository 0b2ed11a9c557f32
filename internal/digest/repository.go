package digest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository is the persistence contract for email schedules. ClaimRun is
// the claim: it advances last_run_at and next_run_at in one conditional
// update, so a schedule fires at most once per window even with several
// scheduler processes running.
type Repository interface {
	Insert(ctx context.Context, s EmailSchedule) error
	Get(ctx context.Context, orgID, id string) (EmailSchedule, error)
	List(ctx context.Context, orgID string) ([]EmailSchedule, error)
	Delete(ctx context.Context, orgID, id string) error
	SetActive(ctx context.Context, orgID, id string, active bool, now time.Time) error
	Due(ctx context.Context, orgID string, now time.Time) ([]EmailSchedule, error)
	ClaimRun(ctx context.Context, orgID, id string, now, next time.Time, window time.Duration, deactivate bool) error
	ReleaseRun(ctx context.Context, orgID, id string, lastRunAt *time.Time, nextRunAt, now time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const emailScheduleColumns = `
  id, org_id, name, recipients, frequency, hour, minute, weekday, day_of_month,
  criteria, COALESCE(criteria_n, 0), COALESCE(criteria_hours, 0),
  active, last_run_at, next_run_at, created_by, created_at, updated_at`

func scanEmailSchedule(row interface{ Scan(...any) error }) (EmailSchedule, error) {
	var s EmailSchedule
	var recipients []byte
	err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.Name,
		&recipients,
		&s.Frequency,
		&s.Hour,
		&s.Minute,
		&s.Weekday,
		&s.DayOfMonth,
		&s.Criteria,
		&s.CriteriaN,
		&s.CriteriaHours,
		&s.Active,
		&s.LastRunAt,
		&s.NextRunAt,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return EmailSchedule{}, err
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &s.Recipients); err != nil {
			return EmailSchedule{}, fmt.Errorf("decode recipients: %w", err)
		}
	}
	return s, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, s EmailSchedule) error {
	recipients, err := json.Marshal(s.Recipients)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO email_schedules (
  id, org_id, name, recipients, frequency, hour, minute, weekday, day_of_month,
  criteria, criteria_n, criteria_hours, active, next_run_at,
  created_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.OrgID, s.Name, recipients, s.Frequency, s.Hour, s.Minute, s.Weekday, s.DayOfMonth,
		s.Criteria, s.CriteriaN, s.CriteriaHours, s.Active, s.NextRunAt,
		s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, orgID, id string) (EmailSchedule, error) {
	const q = `SELECT` + emailScheduleColumns + ` FROM email_schedules WHERE org_id = $1 AND id = $2`
	s, err := scanEmailSchedule(r.db.QueryRowContext(ctx, q, orgID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EmailSchedule{}, ErrNotFound
		}
		return EmailSchedule{}, err
	}
	return s, nil
}

func (r *PostgresRepo) List(ctx context.Context, orgID string) ([]EmailSchedule, error) {
	const q = `
SELECT` + emailScheduleColumns + `
FROM email_schedules
WHERE org_id = $1
ORDER BY created_at DESC
`
	return r.query(ctx, q, orgID)
}

func (r *PostgresRepo) Delete(ctx context.Context, orgID, id string) error {
	const q = `DELETE FROM email_schedules WHERE org_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, orgID, id)
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

func (r *PostgresRepo) SetActive(ctx context.Context, orgID, id string, active bool, now time.Time) error {
	const q = `UPDATE email_schedules SET active = $3, updated_at = $4 WHERE org_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, orgID, id, active, now)
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

func (r *PostgresRepo) Due(ctx context.Context, orgID string, now time.Time) ([]EmailSchedule, error) {
	const q = `
SELECT` + emailScheduleColumns + `
FROM email_schedules
WHERE org_id = $1 AND active AND next_run_at <= $2
ORDER BY next_run_at ASC
`
	return r.query(ctx, q, orgID, now)
}

// ClaimRun atomically marks a run: advances next_run_at, stamps
// last_run_at, and optionally deactivates one-shot schedules. The
// last_run_at guard is the duplicate window: a schedule that already ran
// inside the window is not claimable, whatever next_run_at says.
func (r *PostgresRepo) ClaimRun(ctx context.Context, orgID, id string, now, next time.Time, window time.Duration, deactivate bool) error {
	const q = `
UPDATE email_schedules
SET last_run_at = $3, next_run_at = $4, active = (NOT $5), updated_at = $3
WHERE org_id = $1 AND id = $2 AND active AND next_run_at <= $3
  AND (last_run_at IS NULL OR last_run_at <= $6)
`
	res, err := r.db.ExecContext(ctx, q, orgID, id, now, next, deactivate, now.Add(-window))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotRunnable
	}
	return nil
}

// ReleaseRun hands a claim back after a failed delivery: the pre-claim
// last_run_at and next_run_at are restored and the schedule reactivated,
// so it is due again on the next tick. Only the claim holder calls this,
// so no condition beyond the key is needed.
func (r *PostgresRepo) ReleaseRun(ctx context.Context, orgID, id string, lastRunAt *time.Time, nextRunAt, now time.Time) error {
	const q = `
UPDATE email_schedules
SET last_run_at = $3, next_run_at = $4, active = TRUE, updated_at = $5
WHERE org_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, orgID, id, lastRunAt, nextRunAt, now)
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

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]EmailSchedule, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmailSchedule
	for rows.Next() {
		s, err := scanEmailSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
