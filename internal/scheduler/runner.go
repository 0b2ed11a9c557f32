// Package scheduler is the polling loop that fires due call schedules and
// email digests. It owns no domain logic: each tick asks the domain
// services what is due and executes it, isolating failures per item so one
// bad schedule never starves the rest.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"agentsdr/internal/callsched"
	"agentsdr/internal/digest"
)

// OrgLister enumerates the orgs a tick must visit.
type OrgLister interface {
	ListAllOrgIDs(ctx context.Context) ([]string, error)
}

// CallExecutor is the call-schedule surface the runner drives.
type CallExecutor interface {
	Due(ctx context.Context, orgID string, now time.Time) ([]callsched.Schedule, error)
	Execute(ctx context.Context, orgID, scheduleID string) (callsched.Schedule, error)
}

// DigestRunner is the digest surface the runner drives.
type DigestRunner interface {
	Due(ctx context.Context, orgID string, now time.Time) ([]digest.EmailSchedule, error)
	Run(ctx context.Context, orgID, id string) (digest.Content, error)
}

// Recorder receives an audit entry per executed item. May be nil.
type Recorder interface {
	ScheduleExecuted(ctx context.Context, orgID, scheduleID, callID string, err error)
	DigestSent(ctx context.Context, orgID, scheduleID string, summaries int, err error)
}

// TickStats counts the outcomes of one tick, kept for logging and the
// stats endpoint.
type TickStats struct {
	Orgs    int
	Due     int
	Started int
	Skipped int
	Failed  int
}

type Runner struct {
	orgs     OrgLister
	calls    CallExecutor
	digests  DigestRunner
	recorder Recorder
	log      *slog.Logger
	clock    func() time.Time

	callEvery   time.Duration
	digestEvery time.Duration

	cron *cron.Cron
}

func New(orgs OrgLister, calls CallExecutor, digests DigestRunner, recorder Recorder, callEvery, digestEvery time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if callEvery <= 0 {
		callEvery = 2 * time.Minute
	}
	if digestEvery <= 0 {
		digestEvery = 2 * time.Minute
	}
	return &Runner{
		orgs:        orgs,
		calls:       calls,
		digests:     digests,
		recorder:    recorder,
		log:         log,
		clock:       time.Now,
		callEvery:   callEvery,
		digestEvery: digestEvery,
	}
}

// Start registers the tick entries and launches the cron loop. Ticks do
// not overlap per entry; a slow tick delays the next one.
func (r *Runner) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc("@every "+r.callEvery.String(), func() {
		stats := r.TickCalls(ctx)
		r.log.Info("call tick done",
			"orgs", stats.Orgs, "due", stats.Due, "started", stats.Started,
			"skipped", stats.Skipped, "failed", stats.Failed)
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc("@every "+r.digestEvery.String(), func() {
		stats := r.TickDigests(ctx)
		r.log.Info("digest tick done",
			"orgs", stats.Orgs, "due", stats.Due, "started", stats.Started,
			"skipped", stats.Skipped, "failed", stats.Failed)
	}); err != nil {
		return err
	}

	c.Start()
	r.cron = c
	return nil
}

// Stop halts the cron loop and waits for running ticks to finish.
func (r *Runner) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// TickCalls visits every org and executes its due call schedules. Errors
// are logged and counted, never propagated: the tick always completes.
func (r *Runner) TickCalls(ctx context.Context) TickStats {
	now := r.clock().UTC()
	var stats TickStats

	orgIDs, err := r.orgs.ListAllOrgIDs(ctx)
	if err != nil {
		r.log.Error("list orgs failed, skipping call tick", "error", err)
		return stats
	}
	stats.Orgs = len(orgIDs)

	for _, orgID := range orgIDs {
		due, err := r.calls.Due(ctx, orgID, now)
		if err != nil {
			r.log.Error("due call lookup failed", "org_id", orgID, "error", err)
			stats.Failed++
			continue
		}
		stats.Due += len(due)

		for _, sched := range due {
			executed, err := r.calls.Execute(ctx, orgID, sched.ID)
			switch {
			case err == nil:
				stats.Started++
				r.record(func(rec Recorder) {
					rec.ScheduleExecuted(ctx, orgID, sched.ID, executed.CallID, nil)
				})
			case errors.Is(err, callsched.ErrNotClaimable),
				errors.Is(err, callsched.ErrConcurrencyLimited):
				stats.Skipped++
			default:
				stats.Failed++
				r.log.Error("schedule execution failed",
					"org_id", orgID, "schedule_id", sched.ID, "error", err)
				r.record(func(rec Recorder) {
					rec.ScheduleExecuted(ctx, orgID, sched.ID, "", err)
				})
			}
		}
	}
	return stats
}

// TickDigests visits every org and runs its due digests with the same
// isolation rules as TickCalls.
func (r *Runner) TickDigests(ctx context.Context) TickStats {
	now := r.clock().UTC()
	var stats TickStats

	orgIDs, err := r.orgs.ListAllOrgIDs(ctx)
	if err != nil {
		r.log.Error("list orgs failed, skipping digest tick", "error", err)
		return stats
	}
	stats.Orgs = len(orgIDs)

	for _, orgID := range orgIDs {
		due, err := r.digests.Due(ctx, orgID, now)
		if err != nil {
			r.log.Error("due digest lookup failed", "org_id", orgID, "error", err)
			stats.Failed++
			continue
		}
		stats.Due += len(due)

		for _, sched := range due {
			content, err := r.digests.Run(ctx, orgID, sched.ID)
			switch {
			case err == nil:
				stats.Started++
				r.record(func(rec Recorder) {
					rec.DigestSent(ctx, orgID, sched.ID, content.Count, nil)
				})
			case digest.IsSkip(err):
				stats.Skipped++
			default:
				stats.Failed++
				r.log.Error("digest run failed",
					"org_id", orgID, "schedule_id", sched.ID, "error", err)
				r.record(func(rec Recorder) {
					rec.DigestSent(ctx, orgID, sched.ID, 0, err)
				})
			}
		}
	}
	return stats
}

func (r *Runner) record(fn func(Recorder)) {
	if r.recorder != nil {
		fn(r.recorder)
	}
}
