package reporting

import (
	"context"
	"errors"
	"time"

	"agentsdr/internal/calls"
	"agentsdr/internal/callsched"
	"agentsdr/internal/digest"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce org filtering.
// - Implementations should read the same tables the domain services write;
//   reporting never mutates anything.

type Repository interface {
	ListCallRecords(ctx context.Context, orgID string, from, to time.Time) ([]calls.CallRecord, error)
	ListCallSchedules(ctx context.Context, orgID string) ([]callsched.Schedule, error)
	ListEmailSchedules(ctx context.Context, orgID string) ([]digest.EmailSchedule, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OrgID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCallRecords(ctx, req.OrgID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{OrgID: req.OrgID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.Duration
		if c.SummaryID != "" {
			out.SummarizedCalls++
		}
		if c.CRMSynced {
			out.CRMSyncedCalls++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusBusy:
			out.BusyCalls++
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		case calls.CallStatusQueued:
			// not counted separately
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if out.SummarizedCalls > 0 {
		out.CRMSyncRate = float64(out.CRMSyncedCalls) / float64(out.SummarizedCalls)
	}
	return out, nil
}

func (s *Service) SchedulingSummary(ctx context.Context, req SchedulingSummaryRequest) (SchedulingSummary, error) {
	if req.OrgID == "" {
		return SchedulingSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SchedulingSummary{}, errors.New("reporting: repository not configured")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	scheds, err := s.repo.ListCallSchedules(ctx, req.OrgID)
	if err != nil {
		return SchedulingSummary{}, err
	}

	out := SchedulingSummary{OrgID: req.OrgID}
	for _, sc := range scheds {
		out.TotalSchedules++
		if sc.AutoTrigger {
			out.AutoTrigger++
		}
		if sc.IsDue(now) {
			out.DueNow++
		}
		switch sc.Status {
		case callsched.StatusScheduled:
			out.Scheduled++
		case callsched.StatusInProgress:
			out.InProgress++
		case callsched.StatusCompleted:
			out.Completed++
		case callsched.StatusFailed:
			out.Failed++
		case callsched.StatusCancelled:
			out.Cancelled++
		}
	}

	digests, err := s.repo.ListEmailSchedules(ctx, req.OrgID)
	if err != nil {
		return SchedulingSummary{}, err
	}
	for _, d := range digests {
		if !d.Active {
			out.InactiveDigests++
			continue
		}
		out.ActiveDigests++
		if out.NextDigestAt == nil || d.NextRunAt.Before(*out.NextDigestAt) {
			t := d.NextRunAt
			out.NextDigestAt = &t
		}
	}
	return out, nil
}
