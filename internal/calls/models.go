package calls

import (
	"errors"
	"time"
)

// CallRecord is the head of the strict pipeline chain
// record -> transcript -> summary, keyed by the vendor call id within an org.
//
// Multi-tenant invariant: OrgID is required on every row.
// Mutability: only the transcript/summary linkage and CRM sync fields change
// after insert.
type CallRecord struct {
	ID           string     `json:"id" db:"id"`
	OrgID        string     `json:"org_id" db:"org_id"`
	CallID       string     `json:"call_id" db:"call_id"` // vendor call id
	AgentID      string     `json:"agent_id" db:"agent_id"`
	ContactPhone string     `json:"contact_phone" db:"contact_phone"`
	ContactName  string     `json:"contact_name,omitempty" db:"contact_name"`
	Duration     int        `json:"call_duration" db:"call_duration"` // seconds
	Status       CallStatus `json:"call_status" db:"call_status"`

	TranscriptID string `json:"transcript_id,omitempty" db:"transcript_id"`
	SummaryID    string `json:"summary_id,omitempty" db:"summary_id"`

	CRMSynced    bool   `json:"crm_synced" db:"crm_synced"`
	CRMContactID string `json:"crm_contact_id,omitempty" db:"crm_contact_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
)

// Transcript stores the vendor transcript verbatim.
// transcript_text is immutable once stored; re-processing a call must not
// rewrite it.
type Transcript struct {
	ID           string     `json:"id" db:"id"`
	OrgID        string     `json:"org_id" db:"org_id"`
	CallID       string     `json:"call_id" db:"call_id"`
	AgentID      string     `json:"agent_id" db:"agent_id"`
	ContactPhone string     `json:"contact_phone" db:"contact_phone"`
	ContactName  string     `json:"contact_name,omitempty" db:"contact_name"`
	Text         string     `json:"transcript_text" db:"transcript_text"`
	Duration     int        `json:"call_duration" db:"call_duration"`
	Status       CallStatus `json:"call_status" db:"call_status"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Summary is derived from exactly one transcript. Word count and token usage
// are kept for cost auditing.
type Summary struct {
	ID           string    `json:"id" db:"id"`
	OrgID        string    `json:"org_id" db:"org_id"`
	TranscriptID string    `json:"transcript_id" db:"transcript_id"`
	Text         string    `json:"summary_text" db:"summary_text"`
	WordCount    int       `json:"word_count" db:"word_count"`
	Model        string    `json:"model_used" db:"model_used"`
	TotalTokens  int       `json:"tokens_used" db:"tokens_used"`
	PromptTokens int       `json:"prompt_tokens" db:"prompt_tokens"`
	OutputTokens int       `json:"completion_tokens" db:"completion_tokens"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CallDetail bundles a record with its transcript and summary, when present.
type CallDetail struct {
	Record     CallRecord  `json:"record"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Summary    *Summary    `json:"summary,omitempty"`
}

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)
