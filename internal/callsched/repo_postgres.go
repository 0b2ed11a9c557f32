package callsched

import (
	"context"
	"database/sql"
	"time"
)

// Repository is the persistence contract for call schedules. Claim is the
// only way a schedule leaves the scheduled state for execution; it must be
// atomic so concurrent ticks never execute the same schedule twice.
type Repository interface {
	Insert(ctx context.Context, s Schedule) error
	Get(ctx context.Context, orgID, id string) (Schedule, error)
	List(ctx context.Context, orgID string, limit, offset int) ([]Schedule, error)
	Candidates(ctx context.Context, orgID string) ([]Schedule, error)
	FindByCallID(ctx context.Context, orgID, callID string) (Schedule, error)
	Claim(ctx context.Context, orgID, id string, now time.Time) (Schedule, error)
	SetOutcome(ctx context.Context, orgID, id, status, callID, lastError string, now time.Time) error
	Cancel(ctx context.Context, orgID, id string, now time.Time) error
	SetLastCheckup(ctx context.Context, orgID, id string, at, now time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, s Schedule) error {
	return insertSchedule(ctx, r.db, s)
}

func (r *PostgresRepo) Get(ctx context.Context, orgID, id string) (Schedule, error) {
	return getSchedule(ctx, r.db, orgID, id)
}

func (r *PostgresRepo) List(ctx context.Context, orgID string, limit, offset int) ([]Schedule, error) {
	return listSchedules(ctx, r.db, orgID, limit, offset)
}

func (r *PostgresRepo) Candidates(ctx context.Context, orgID string) ([]Schedule, error) {
	return listCandidates(ctx, r.db, orgID)
}

func (r *PostgresRepo) FindByCallID(ctx context.Context, orgID, callID string) (Schedule, error) {
	return findScheduleByCallID(ctx, r.db, orgID, callID)
}

func (r *PostgresRepo) Claim(ctx context.Context, orgID, id string, now time.Time) (Schedule, error) {
	return claimSchedule(ctx, r.db, orgID, id, now)
}

func (r *PostgresRepo) SetOutcome(ctx context.Context, orgID, id, status, callID, lastError string, now time.Time) error {
	return setScheduleOutcome(ctx, r.db, orgID, id, status, callID, lastError, now)
}

func (r *PostgresRepo) Cancel(ctx context.Context, orgID, id string, now time.Time) error {
	return cancelSchedule(ctx, r.db, orgID, id, now)
}

func (r *PostgresRepo) SetLastCheckup(ctx context.Context, orgID, id string, at, now time.Time) error {
	return setLastCheckup(ctx, r.db, orgID, id, at, now)
}
