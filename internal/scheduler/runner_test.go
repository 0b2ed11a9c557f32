package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"agentsdr/internal/callsched"
	"agentsdr/internal/digest"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

type fakeOrgs struct {
	ids []string
	err error
}

func (f *fakeOrgs) ListAllOrgIDs(context.Context) ([]string, error) {
	return f.ids, f.err
}

type fakeCalls struct {
	due      map[string][]callsched.Schedule
	dueErr   map[string]error
	execErr  map[string]error
	executed []string
}

func (f *fakeCalls) Due(_ context.Context, orgID string, _ time.Time) ([]callsched.Schedule, error) {
	if err := f.dueErr[orgID]; err != nil {
		return nil, err
	}
	return f.due[orgID], nil
}

func (f *fakeCalls) Execute(_ context.Context, orgID, scheduleID string) (callsched.Schedule, error) {
	if err := f.execErr[scheduleID]; err != nil {
		return callsched.Schedule{}, err
	}
	f.executed = append(f.executed, orgID+"/"+scheduleID)
	return callsched.Schedule{ID: scheduleID, OrgID: orgID, CallID: "call-" + scheduleID}, nil
}

type fakeDigests struct {
	due    map[string][]digest.EmailSchedule
	runErr map[string]error
	ran    []string
}

func (f *fakeDigests) Due(_ context.Context, orgID string, _ time.Time) ([]digest.EmailSchedule, error) {
	return f.due[orgID], nil
}

func (f *fakeDigests) Run(_ context.Context, orgID, id string) (digest.Content, error) {
	if err := f.runErr[id]; err != nil {
		return digest.Content{}, err
	}
	f.ran = append(f.ran, orgID+"/"+id)
	return digest.Content{Count: 2}, nil
}

type recorded struct {
	kind   string
	org    string
	id     string
	failed bool
}

type fakeRecorder struct {
	entries []recorded
}

func (f *fakeRecorder) ScheduleExecuted(_ context.Context, orgID, scheduleID, _ string, err error) {
	f.entries = append(f.entries, recorded{"call", orgID, scheduleID, err != nil})
}

func (f *fakeRecorder) DigestSent(_ context.Context, orgID, scheduleID string, _ int, err error) {
	f.entries = append(f.entries, recorded{"digest", orgID, scheduleID, err != nil})
}

func newTestRunner(orgs OrgLister, calls CallExecutor, digests DigestRunner, rec Recorder) *Runner {
	r := New(orgs, calls, digests, rec, time.Minute, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.clock = func() time.Time { return testNow }
	return r
}

func sched(id string) callsched.Schedule {
	return callsched.Schedule{ID: id, Status: callsched.StatusScheduled}
}

func TestTickCallsIsolatesFailures(t *testing.T) {
	calls := &fakeCalls{
		due: map[string][]callsched.Schedule{
			"org-a": {sched("s1"), sched("s2")},
			"org-b": {sched("s3")},
		},
		dueErr:  map[string]error{},
		execErr: map[string]error{"s1": errors.New("vendor down")},
	}
	rec := &fakeRecorder{}
	r := newTestRunner(&fakeOrgs{ids: []string{"org-a", "org-b"}}, calls, &fakeDigests{}, rec)

	stats := r.TickCalls(context.Background())

	if stats.Started != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	// s1 failing must not stop s2 or org-b's s3.
	if len(calls.executed) != 2 {
		t.Fatalf("executed = %v", calls.executed)
	}
	var failures int
	for _, e := range rec.entries {
		if e.failed {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected one failure recorded, got %+v", rec.entries)
	}
}

func TestTickCallsDueLookupFailureSkipsOrgOnly(t *testing.T) {
	calls := &fakeCalls{
		due: map[string][]callsched.Schedule{
			"org-b": {sched("s1")},
		},
		dueErr:  map[string]error{"org-a": errors.New("db timeout")},
		execErr: map[string]error{},
	}
	r := newTestRunner(&fakeOrgs{ids: []string{"org-a", "org-b"}}, calls, &fakeDigests{}, nil)

	stats := r.TickCalls(context.Background())
	if stats.Started != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTickCallsLostClaimIsSkipNotFailure(t *testing.T) {
	calls := &fakeCalls{
		due: map[string][]callsched.Schedule{
			"org-a": {sched("s1"), sched("s2")},
		},
		dueErr: map[string]error{},
		execErr: map[string]error{
			"s1": callsched.ErrNotClaimable,
			"s2": callsched.ErrConcurrencyLimited,
		},
	}
	r := newTestRunner(&fakeOrgs{ids: []string{"org-a"}}, calls, &fakeDigests{}, nil)

	stats := r.TickCalls(context.Background())
	if stats.Skipped != 2 || stats.Failed != 0 {
		t.Fatalf("lost claims must count as skips: %+v", stats)
	}
}

func TestTickDigests(t *testing.T) {
	digests := &fakeDigests{
		due: map[string][]digest.EmailSchedule{
			"org-a": {{ID: "d1"}, {ID: "d2"}},
		},
		runErr: map[string]error{"d2": digest.ErrNotRunnable},
	}
	rec := &fakeRecorder{}
	r := newTestRunner(&fakeOrgs{ids: []string{"org-a"}}, &fakeCalls{}, digests, rec)

	stats := r.TickDigests(context.Background())
	if stats.Started != 1 || stats.Skipped != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(digests.ran) != 1 || digests.ran[0] != "org-a/d1" {
		t.Fatalf("ran = %v", digests.ran)
	}
}

func TestTickOrgListFailure(t *testing.T) {
	r := newTestRunner(&fakeOrgs{err: errors.New("db down")}, &fakeCalls{}, &fakeDigests{}, nil)
	stats := r.TickCalls(context.Background())
	if stats.Orgs != 0 || stats.Started != 0 {
		t.Fatalf("tick must no-op when org list fails: %+v", stats)
	}
}
