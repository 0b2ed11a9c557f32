package callsched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agentsdr/internal/crm"
	"agentsdr/internal/telephony"
)

// ErrConcurrencyLimited is returned when the org has too many live calls;
// the schedule goes back to scheduled and fires on a later tick.
var ErrConcurrencyLimited = errors.New("callsched: org call concurrency limit reached")

// Caller places outbound calls with the telephony vendor.
type Caller interface {
	PlaceCall(ctx context.Context, req telephony.OutboundCall) (telephony.CallInfo, error)
}

// Limiter caps concurrent live calls per org.
type Limiter interface {
	Acquire(ctx context.Context, orgID string) (bool, error)
	Release(ctx context.Context, orgID string) error
}

// CreateInput is a request to register a scheduled call. ContactID is
// optional; when absent the CRM contact is looked up by phone.
type CreateInput struct {
	AgentID      string     `json:"agent_id"`
	ContactID    string     `json:"contact_id"`
	ContactPhone string     `json:"contact_phone"`
	ContactName  string     `json:"contact_name"`
	Topic        string     `json:"topic"`
	Language     string     `json:"language"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	AutoTrigger  bool       `json:"auto_trigger"`
	CheckupDays  int        `json:"checkup_days"`
}

type Service struct {
	repo       Repository
	caller     Caller
	crm        crm.Client
	limiter    Limiter
	fromNumber string
	log        *slog.Logger
	clock      func() time.Time
}

func NewService(repo Repository, caller Caller, crmClient crm.Client, limiter Limiter, fromNumber string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:       repo,
		caller:     caller,
		crm:        crmClient,
		limiter:    limiter,
		fromNumber: fromNumber,
		log:        log,
		clock:      time.Now,
	}
}

// Create validates and stores a new schedule. The CRM contact is resolved
// by phone when no contact id is given; for auto-trigger schedules the
// contact's last checkup date is seeded from the CRM when available so a
// recently-reached contact is not called immediately.
func (s *Service) Create(ctx context.Context, orgID, createdBy string, in CreateInput) (Schedule, error) {
	if orgID == "" || createdBy == "" || in.AgentID == "" {
		return Schedule{}, ErrInvalidArgument
	}
	phone, err := crm.NormalizePhone(in.ContactPhone)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if in.ScheduledAt == nil && !in.AutoTrigger {
		return Schedule{}, fmt.Errorf("%w: either scheduled_at or auto_trigger is required", ErrInvalidArgument)
	}
	if in.AutoTrigger && in.CheckupDays <= 0 {
		return Schedule{}, fmt.Errorf("%w: auto_trigger requires checkup_days > 0", ErrInvalidArgument)
	}

	now := s.clock().UTC()
	sched := Schedule{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		AgentID:      in.AgentID,
		ContactID:    in.ContactID,
		ContactPhone: phone,
		ContactName:  in.ContactName,
		Topic:        in.Topic,
		Language:     in.Language,
		ScheduledAt:  in.ScheduledAt,
		AutoTrigger:  in.AutoTrigger,
		CheckupDays:  in.CheckupDays,
		Active:       true,
		Status:       StatusScheduled,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.crm != nil && (sched.ContactID == "" || in.AutoTrigger) {
		ct, err := s.crm.FindContactByPhone(ctx, phone)
		switch {
		case err == nil:
			if sched.ContactID == "" {
				sched.ContactID = ct.ID
			}
			if in.AutoTrigger && !ct.CheckupDate.IsZero() {
				d := ct.CheckupDate
				sched.LastCheckupAt = &d
			}
		case !errors.Is(err, crm.ErrContactNotFound):
			s.log.Warn("crm contact lookup failed, scheduling without link",
				"org_id", orgID, "error", err)
		}
	}

	if err := s.repo.Insert(ctx, sched); err != nil {
		return Schedule{}, err
	}
	return sched, nil
}

func (s *Service) Get(ctx context.Context, orgID, id string) (Schedule, error) {
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID string, limit, offset int) ([]Schedule, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, orgID, limit, offset)
}

// Cancel stops a schedule that has not started. In-progress and finished
// schedules cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orgID, id string) error {
	return s.repo.Cancel(ctx, orgID, id, s.clock().UTC())
}

// Due returns the schedules for an org that should fire at now.
func (s *Service) Due(ctx context.Context, orgID string, now time.Time) ([]Schedule, error) {
	candidates, err := s.repo.Candidates(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var due []Schedule
	for _, c := range candidates {
		if c.IsDue(now) {
			due = append(due, c)
		}
	}
	return due, nil
}

// Execute claims a due schedule and places the call. The claim is the
// concurrency barrier: a schedule another worker already claimed yields
// ErrNotClaimable and must be skipped silently. Vendor failures mark the
// schedule failed; it does not silently return to the queue.
func (s *Service) Execute(ctx context.Context, orgID, scheduleID string) (Schedule, error) {
	now := s.clock().UTC()
	sched, err := s.repo.Claim(ctx, orgID, scheduleID, now)
	if err != nil {
		return Schedule{}, err
	}

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx, orgID)
		if err != nil {
			s.log.Warn("concurrency limiter unavailable, proceeding", "org_id", orgID, "error", err)
		} else if !ok {
			// Put the schedule back for the next tick.
			if rerr := s.repo.SetOutcome(ctx, orgID, sched.ID, StatusScheduled, "", "", s.clock().UTC()); rerr != nil {
				return Schedule{}, rerr
			}
			return Schedule{}, ErrConcurrencyLimited
		}
	}

	info, err := s.caller.PlaceCall(ctx, telephony.OutboundCall{
		AgentID:    sched.AgentID,
		ToNumber:   sched.ContactPhone,
		FromNumber: s.fromNumber,
		Topic:      sched.Topic,
		Language:   sched.Language,
	})
	if err != nil {
		s.releaseSlot(ctx, orgID)
		execErr := &ExecutionError{ScheduleID: sched.ID, Err: err}
		if serr := s.repo.SetOutcome(ctx, orgID, sched.ID, StatusFailed, "", execErr.Error(), s.clock().UTC()); serr != nil {
			s.log.Error("failed to mark schedule failed", "schedule_id", sched.ID, "error", serr)
		}
		return Schedule{}, execErr
	}

	if err := s.repo.SetOutcome(ctx, orgID, sched.ID, StatusInProgress, info.CallID, "", s.clock().UTC()); err != nil {
		return Schedule{}, err
	}
	sched.Status = StatusInProgress
	sched.CallID = info.CallID
	return sched, nil
}

// CompleteByCall settles the schedule whose vendor call finished. One-shot
// schedules become completed; auto-trigger schedules return to scheduled
// with their checkup clock reset, so they fire again after the interval.
func (s *Service) CompleteByCall(ctx context.Context, orgID, callID string) error {
	sched, err := s.repo.FindByCallID(ctx, orgID, callID)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	s.releaseSlot(ctx, orgID)

	if sched.AutoTrigger {
		if err := s.repo.SetLastCheckup(ctx, orgID, sched.ID, now, now); err != nil {
			return err
		}
		return s.repo.SetOutcome(ctx, orgID, sched.ID, StatusScheduled, "", "", now)
	}
	return s.repo.SetOutcome(ctx, orgID, sched.ID, StatusCompleted, callID, "", now)
}

func (s *Service) releaseSlot(ctx context.Context, orgID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, orgID); err != nil {
		s.log.Warn("concurrency slot release failed", "org_id", orgID, "error", err)
	}
}
