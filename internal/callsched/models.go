// Package callsched manages scheduled outbound calls: one-shot calls due
// at a fixed time and auto-triggered checkup calls driven by how long ago
// a contact was last reached.
package callsched

import (
	"errors"
	"fmt"
	"time"
)

// Schedule statuses. A schedule is claimed by moving scheduled ->
// in_progress; only one worker can win that transition.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

var (
	ErrNotFound        = errors.New("callsched: not found")
	ErrInvalidArgument = errors.New("callsched: invalid argument")
	// ErrNotClaimable is returned when a claim attempt loses the race or
	// the schedule is no longer in the scheduled state.
	ErrNotClaimable = errors.New("callsched: schedule not claimable")
)

// ExecutionError wraps a failure while executing a claimed schedule. The
// schedule is marked failed when this is returned.
type ExecutionError struct {
	ScheduleID string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute schedule %s: %v", e.ScheduleID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Schedule is a planned outbound call for one contact. ContactID links the
// schedule to the CRM contact when one is known.
type Schedule struct {
	ID           string     `json:"id" db:"id"`
	OrgID        string     `json:"org_id" db:"org_id"`
	AgentID      string     `json:"agent_id" db:"agent_id"`
	ContactID    string     `json:"contact_id,omitempty" db:"contact_id"`
	ContactPhone string     `json:"contact_phone" db:"contact_phone"`
	ContactName  string     `json:"contact_name,omitempty" db:"contact_name"`
	Topic        string     `json:"topic,omitempty" db:"topic"`
	Language     string     `json:"language,omitempty" db:"language"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`

	// AutoTrigger schedules fire whenever the contact's last checkup is
	// older than CheckupDays, instead of at a fixed time.
	AutoTrigger   bool       `json:"auto_trigger" db:"auto_trigger"`
	CheckupDays   int        `json:"checkup_days,omitempty" db:"checkup_days"`
	LastCheckupAt *time.Time `json:"last_checkup_at,omitempty" db:"last_checkup_at"`

	// Active is the quick on/off switch; the status records how an
	// inactive schedule was resolved (cancelled, completed, failed).
	Active bool `json:"is_active" db:"is_active"`

	Status    string    `json:"call_status" db:"call_status"`
	CallID    string    `json:"call_id,omitempty" db:"call_id"`
	LastError string    `json:"last_error,omitempty" db:"last_error"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsDue reports whether the schedule should fire at now. Only active,
// scheduled entries are ever due. A fixed-time schedule is due once its
// time has passed; an auto-trigger schedule is due when the contact has
// never been checked up or the last checkup is older than the configured
// interval.
func (s Schedule) IsDue(now time.Time) bool {
	if !s.Active || s.Status != StatusScheduled {
		return false
	}
	if s.ScheduledAt != nil && !s.ScheduledAt.After(now) {
		return true
	}
	if s.AutoTrigger && s.CheckupDays > 0 {
		if s.LastCheckupAt == nil {
			return true
		}
		return now.Sub(*s.LastCheckupAt) >= time.Duration(s.CheckupDays)*24*time.Hour
	}
	return false
}
