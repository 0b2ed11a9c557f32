package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// CreateInput is a request to register a digest schedule.
type CreateInput struct {
	Name          string   `json:"name"`
	Recipients    []string `json:"recipients"`
	Frequency     string   `json:"frequency"`
	Hour          int      `json:"hour"`
	Minute        int      `json:"minute"`
	Weekday       int      `json:"weekday"`
	DayOfMonth    int      `json:"day_of_month"`
	Criteria      string   `json:"criteria"`
	CriteriaN     int      `json:"criteria_n"`
	CriteriaHours int      `json:"criteria_hours"`
}

type Service struct {
	repo   Repository
	source SummarySource
	sender Sender
	window time.Duration
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(repo Repository, source SummarySource, sender Sender, duplicateWindow time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if duplicateWindow <= 0 {
		duplicateWindow = time.Hour
	}
	return &Service{
		repo:   repo,
		source: source,
		sender: sender,
		window: duplicateWindow,
		log:    log,
		clock:  time.Now,
	}
}

func (s *Service) Create(ctx context.Context, orgID, createdBy string, in CreateInput) (EmailSchedule, error) {
	if orgID == "" || createdBy == "" || in.Name == "" {
		return EmailSchedule{}, ErrInvalidArgument
	}
	if len(in.Recipients) == 0 {
		return EmailSchedule{}, fmt.Errorf("%w: at least one recipient is required", ErrInvalidArgument)
	}
	for _, rcpt := range in.Recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return EmailSchedule{}, fmt.Errorf("%w: invalid recipient %q", ErrInvalidArgument, rcpt)
		}
	}
	if !validFrequency(in.Frequency) {
		return EmailSchedule{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidArgument, in.Frequency)
	}
	if !validCriteria(in.Criteria) {
		return EmailSchedule{}, fmt.Errorf("%w: unknown criteria %q", ErrInvalidArgument, in.Criteria)
	}
	if in.Hour < 0 || in.Hour > 23 || in.Minute < 0 || in.Minute > 59 {
		return EmailSchedule{}, fmt.Errorf("%w: send time out of range", ErrInvalidArgument)
	}
	if (in.Criteria == CriteriaLatestN || in.Criteria == CriteriaOldestN) && in.CriteriaN <= 0 {
		return EmailSchedule{}, fmt.Errorf("%w: criteria_n must be > 0", ErrInvalidArgument)
	}
	if in.Frequency == FreqWeekly && (in.Weekday < 0 || in.Weekday > 6) {
		return EmailSchedule{}, fmt.Errorf("%w: weekday out of range", ErrInvalidArgument)
	}
	if in.Frequency == FreqMonthly && (in.DayOfMonth < 1 || in.DayOfMonth > 31) {
		return EmailSchedule{}, fmt.Errorf("%w: day_of_month out of range", ErrInvalidArgument)
	}

	now := s.clock().UTC()
	sched := EmailSchedule{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		Name:          in.Name,
		Recipients:    in.Recipients,
		Frequency:     in.Frequency,
		Hour:          in.Hour,
		Minute:        in.Minute,
		Weekday:       in.Weekday,
		DayOfMonth:    in.DayOfMonth,
		Criteria:      in.Criteria,
		CriteriaN:     in.CriteriaN,
		CriteriaHours: in.CriteriaHours,
		Active:        true,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sched.NextRunAt = sched.NextRun(now)

	if err := s.repo.Insert(ctx, sched); err != nil {
		return EmailSchedule{}, err
	}
	return sched, nil
}

func (s *Service) Get(ctx context.Context, orgID, id string) (EmailSchedule, error) {
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID string) ([]EmailSchedule, error) {
	return s.repo.List(ctx, orgID)
}

func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.repo.Delete(ctx, orgID, id)
}

func (s *Service) SetActive(ctx context.Context, orgID, id string, active bool) error {
	return s.repo.SetActive(ctx, orgID, id, active, s.clock().UTC())
}

// Due returns the schedules for an org whose next run has arrived.
func (s *Service) Due(ctx context.Context, orgID string, now time.Time) ([]EmailSchedule, error) {
	return s.repo.Due(ctx, orgID, now)
}

// Run claims and delivers one digest schedule. Losing the claim race, or
// hitting the duplicate window, returns ErrNotRunnable; the caller skips
// the schedule without treating it as a failure. One-shot schedules
// deactivate once they fire. A failed build or delivery hands the claim
// back, so the schedule stays due for the next tick.
func (s *Service) Run(ctx context.Context, orgID, id string) (Content, error) {
	sched, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return Content{}, err
	}

	now := s.clock().UTC()
	next := sched.NextRun(now)
	deactivate := sched.Frequency == FreqOnce
	if err := s.repo.ClaimRun(ctx, orgID, id, now, next, s.window, deactivate); err != nil {
		return Content{}, err
	}

	content, err := Build(ctx, s.source, sched, now)
	if err != nil {
		s.releaseClaim(ctx, sched, now)
		return Content{}, err
	}
	if err := s.sender.Send(ctx, sched.Recipients, content); err != nil {
		s.releaseClaim(ctx, sched, now)
		return Content{}, err
	}
	s.log.Info("digest delivered",
		"org_id", orgID, "schedule_id", id, "summaries", content.Count, "recipients", len(sched.Recipients))
	return content, nil
}

// releaseClaim restores a schedule's pre-claim run timestamps after a
// failed delivery.
func (s *Service) releaseClaim(ctx context.Context, sched EmailSchedule, now time.Time) {
	if err := s.repo.ReleaseRun(ctx, sched.OrgID, sched.ID, sched.LastRunAt, sched.NextRunAt, now); err != nil {
		s.log.Error("digest claim release failed",
			"org_id", sched.OrgID, "schedule_id", sched.ID, "err", err)
	}
}

// RunNow forces a delivery outside the schedule: no claim, no window. Used
// by the manual send endpoint.
func (s *Service) RunNow(ctx context.Context, orgID, id string) (Content, error) {
	sched, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return Content{}, err
	}
	now := s.clock().UTC()
	content, err := Build(ctx, s.source, sched, now)
	if err != nil {
		return Content{}, err
	}
	if err := s.sender.Send(ctx, sched.Recipients, content); err != nil {
		return Content{}, err
	}
	return content, nil
}

// IsSkip reports whether a Run error means "someone else ran it", which
// scheduler ticks treat as success.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNotRunnable)
}
