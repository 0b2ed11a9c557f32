// Package digest builds and delivers periodic email digests of call
// summaries for an org.
package digest

import (
	"errors"
	"time"
)

// Schedule frequencies.
const (
	FreqHourly  = "hourly"
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
	FreqOnce    = "once"
)

// Selection criteria for which call summaries a digest covers.
const (
	CriteriaLast24Hours = "last_24_hours"
	CriteriaLast7Days   = "last_7_days"
	CriteriaLatestN     = "latest_n"
	CriteriaOldestN     = "oldest_n"
	CriteriaCustomHours = "custom_hours"
)

var (
	ErrNotFound        = errors.New("digest: not found")
	ErrInvalidArgument = errors.New("digest: invalid argument")
	// ErrNotRunnable is returned when a run attempt loses the claim race
	// or hits the duplicate-send window.
	ErrNotRunnable = errors.New("digest: schedule not runnable")
)

// EmailSchedule is a recurring (or one-shot) digest delivery.
type EmailSchedule struct {
	ID         string   `json:"id" db:"id"`
	OrgID      string   `json:"org_id" db:"org_id"`
	Name       string   `json:"name" db:"name"`
	Recipients []string `json:"recipients" db:"recipients"`

	Frequency string `json:"frequency" db:"frequency"`
	// Hour and Minute are the UTC send time for daily and slower
	// frequencies. Weekday applies to weekly, DayOfMonth to monthly.
	Hour       int `json:"hour" db:"hour"`
	Minute     int `json:"minute" db:"minute"`
	Weekday    int `json:"weekday,omitempty" db:"weekday"`
	DayOfMonth int `json:"day_of_month,omitempty" db:"day_of_month"`

	Criteria      string `json:"criteria" db:"criteria"`
	CriteriaN     int    `json:"criteria_n,omitempty" db:"criteria_n"`
	CriteriaHours int    `json:"criteria_hours,omitempty" db:"criteria_hours"`

	Active    bool       `json:"active" db:"active"`
	LastRunAt *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`
	NextRunAt time.Time  `json:"next_run_at" db:"next_run_at"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func validFrequency(f string) bool {
	switch f {
	case FreqHourly, FreqDaily, FreqWeekly, FreqMonthly, FreqOnce:
		return true
	}
	return false
}

func validCriteria(c string) bool {
	switch c {
	case CriteriaLast24Hours, CriteriaLast7Days, CriteriaLatestN, CriteriaOldestN, CriteriaCustomHours:
		return true
	}
	return false
}
