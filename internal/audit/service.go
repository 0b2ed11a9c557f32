package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByOrg(ctx context.Context, orgID string, limit int) ([]Event, error)
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrgID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// ListByOrg returns recent events for ops tooling, newest first.
func (s *Service) ListByOrg(ctx context.Context, orgID string, limit int) ([]Event, error) {
	if orgID == "" {
		return nil, ErrInvalidEvent
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByOrg(ctx, orgID, limit)
}

// ScheduleExecuted records the outcome of firing a call schedule.
func (s *Service) ScheduleExecuted(ctx context.Context, orgID, scheduleID, callID string, execErr error) {
	msg := "schedule executed"
	if execErr != nil {
		msg = fmt.Sprintf("schedule execution failed: %v", execErr)
	}
	_ = s.Append(ctx, Event{
		OrgID:      orgID,
		Type:       EventTypeScheduleExecuted,
		ScheduleID: scheduleID,
		CallID:     callID,
		Message:    msg,
	})
}

// DigestSent records the outcome of a digest delivery.
func (s *Service) DigestSent(ctx context.Context, orgID, scheduleID string, summaries int, sendErr error) {
	msg := fmt.Sprintf("digest sent with %d summaries", summaries)
	if sendErr != nil {
		msg = fmt.Sprintf("digest delivery failed: %v", sendErr)
	}
	_ = s.Append(ctx, Event{
		OrgID:      orgID,
		Type:       EventTypeDigestSent,
		ScheduleID: scheduleID,
		Message:    msg,
	})
}

// CallProcessed records a pipeline run for a vendor call.
func (s *Service) CallProcessed(ctx context.Context, orgID, callID string, crmSynced bool) {
	msg := "call processed"
	if !crmSynced {
		msg = "call processed, crm sync pending"
	}
	_ = s.Append(ctx, Event{
		OrgID:   orgID,
		Type:    EventTypeCallProcessed,
		CallID:  callID,
		Message: msg,
	})
}

// MemberChange records membership mutations (role changes, removals).
func (s *Service) MemberChange(ctx context.Context, orgID, actorUserID, actorRole, memberID, message string) {
	_ = s.Append(ctx, Event{
		OrgID:       orgID,
		Type:        EventTypeMemberChange,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		MemberID:    memberID,
		Message:     message,
	})
}
