package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call pipeline metrics.
// Org isolation: OrgID is required.

type CallsSummaryRequest struct {
	OrgID string    `json:"org_id"`
	Range TimeRange `json:"range"`
}

type CallsSummary struct {
	OrgID string `json:"org_id"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	SummarizedCalls int `json:"summarized_calls"`
	CRMSyncedCalls  int `json:"crm_synced_calls"`

	// CRMSyncRate is synced over summarized: only calls with a summary
	// have anything to push.
	CRMSyncRate float64 `json:"crm_sync_rate"`
}

// SchedulingSummaryRequest requests call-schedule statistics for an org.

type SchedulingSummaryRequest struct {
	OrgID string    `json:"org_id"`
	Now   time.Time `json:"now"`
}

type SchedulingSummary struct {
	OrgID string `json:"org_id"`

	TotalSchedules     int `json:"total_schedules"`
	Scheduled          int `json:"scheduled"`
	InProgress         int `json:"in_progress"`
	Completed          int `json:"completed"`
	Failed             int `json:"failed"`
	Cancelled          int `json:"cancelled"`
	AutoTrigger        int `json:"auto_trigger"`
	DueNow             int `json:"due_now"`

	ActiveDigests   int        `json:"active_digests"`
	InactiveDigests int        `json:"inactive_digests"`
	NextDigestAt    *time.Time `json:"next_digest_at,omitempty"`
}
