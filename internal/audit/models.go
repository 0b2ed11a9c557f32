package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - org_id is required for tenancy isolation.
// - Audit writes are best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event, empty for
	// scheduler-driven events.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	ScheduleID string `json:"schedule_id,omitempty" db:"schedule_id"`
	CallID     string `json:"call_id,omitempty" db:"call_id"`
	MemberID   string `json:"member_id,omitempty" db:"member_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeScheduleExecuted EventType = "schedule_executed"
	EventTypeDigestSent       EventType = "digest_sent"
	EventTypeCallProcessed    EventType = "call_processed"
	EventTypeCRMSync          EventType = "crm_sync"
	EventTypeMemberChange     EventType = "member_change"
)
