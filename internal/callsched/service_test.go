package callsched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"agentsdr/internal/crm"
	"agentsdr/internal/telephony"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func TestIsDue(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
		want bool
	}{
		{
			name: "fixed time passed",
			s:    Schedule{Active: true, Status: StatusScheduled, ScheduledAt: ptrTime(testNow.Add(-time.Minute))},
			want: true,
		},
		{
			name: "fixed time exact",
			s:    Schedule{Active: true, Status: StatusScheduled, ScheduledAt: ptrTime(testNow)},
			want: true,
		},
		{
			name: "fixed time in future",
			s:    Schedule{Active: true, Status: StatusScheduled, ScheduledAt: ptrTime(testNow.Add(time.Minute))},
			want: false,
		},
		{
			name: "inactive never due",
			s:    Schedule{Active: false, Status: StatusScheduled, ScheduledAt: ptrTime(testNow.Add(-time.Hour))},
			want: false,
		},
		{
			name: "not in scheduled state",
			s:    Schedule{Active: true, Status: StatusInProgress, ScheduledAt: ptrTime(testNow.Add(-time.Hour))},
			want: false,
		},
		{
			name: "cancelled never due",
			s:    Schedule{Status: StatusCancelled, ScheduledAt: ptrTime(testNow.Add(-time.Hour))},
			want: false,
		},
		{
			name: "auto trigger no checkup yet",
			s:    Schedule{Active: true, Status: StatusScheduled, AutoTrigger: true, CheckupDays: 30},
			want: true,
		},
		{
			name: "auto trigger checkup stale",
			s: Schedule{Active: true, Status: StatusScheduled, AutoTrigger: true, CheckupDays: 30,
				LastCheckupAt: ptrTime(testNow.Add(-31 * 24 * time.Hour))},
			want: true,
		},
		{
			name: "auto trigger checkup fresh",
			s: Schedule{Active: true, Status: StatusScheduled, AutoTrigger: true, CheckupDays: 30,
				LastCheckupAt: ptrTime(testNow.Add(-10 * 24 * time.Hour))},
			want: false,
		},
		{
			name: "auto trigger without interval",
			s:    Schedule{Active: true, Status: StatusScheduled, AutoTrigger: true},
			want: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.IsDue(testNow); got != tc.want {
				t.Fatalf("IsDue = %v, want %v", got, tc.want)
			}
		})
	}
}

type fakeCaller struct {
	mu     sync.Mutex
	placed []telephony.OutboundCall
	err    error
}

func (f *fakeCaller) PlaceCall(_ context.Context, req telephony.OutboundCall) (telephony.CallInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return telephony.CallInfo{}, f.err
	}
	f.placed = append(f.placed, req)
	return telephony.CallInfo{CallID: "vendor-call-1", Status: "queued"}, nil
}

type fakeLimiter struct {
	allow    bool
	acquired int
	released int
}

func (f *fakeLimiter) Acquire(context.Context, string) (bool, error) {
	f.acquired++
	return f.allow, nil
}

func (f *fakeLimiter) Release(context.Context, string) error {
	f.released++
	return nil
}

type fakeCRMLookup struct {
	contact crm.Contact
	err     error
}

func (f *fakeCRMLookup) FindContactByPhone(context.Context, string) (crm.Contact, error) {
	if f.err != nil {
		return crm.Contact{}, f.err
	}
	return f.contact, nil
}
func (f *fakeCRMLookup) CreateContact(context.Context, string, string) (crm.Contact, error) {
	return crm.Contact{}, errors.New("not implemented")
}
func (f *fakeCRMLookup) AppendContactSummary(context.Context, string, string, time.Time) error {
	return errors.New("not implemented")
}
func (f *fakeCRMLookup) ContactCheckupDate(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}

func newTestService(repo Repository, caller Caller, crmc crm.Client, limiter Limiter) *Service {
	svc := NewService(repo, caller, crmc, limiter, "+14155550100", slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.clock = func() time.Time { return testNow }
	return svc
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), &fakeCaller{}, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", "user-1", CreateInput{AgentID: "a", ContactPhone: "+14155552671", ScheduledAt: ptrTime(testNow)}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing org: %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "user-1", CreateInput{AgentID: "a", ContactPhone: "bad"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad phone: %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "user-1", CreateInput{AgentID: "a", ContactPhone: "+14155552671"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("no trigger: %v", err)
	}
	if _, err := svc.Create(ctx, "org-1", "user-1", CreateInput{AgentID: "a", ContactPhone: "+14155552671", AutoTrigger: true}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("auto trigger without interval: %v", err)
	}
}

func TestCreateSeedsCheckupFromCRM(t *testing.T) {
	checkup := testNow.Add(-5 * 24 * time.Hour)
	crmc := &fakeCRMLookup{contact: crm.Contact{ID: "42", CheckupDate: checkup}}
	svc := newTestService(NewMemoryRepo(), &fakeCaller{}, crmc, nil)

	sched, err := svc.Create(context.Background(), "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		AutoTrigger:  true,
		CheckupDays:  30,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sched.LastCheckupAt == nil || !sched.LastCheckupAt.Equal(checkup) {
		t.Fatalf("checkup not seeded: %+v", sched.LastCheckupAt)
	}
	if sched.IsDue(testNow) {
		t.Fatalf("recently checked contact must not be immediately due")
	}
}

func TestCreateLinksCRMContact(t *testing.T) {
	crmc := &fakeCRMLookup{contact: crm.Contact{ID: "42", Phone: "+14155552671"}}
	svc := newTestService(NewMemoryRepo(), &fakeCaller{}, crmc, nil)

	sched, err := svc.Create(context.Background(), "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sched.ContactID != "42" {
		t.Fatalf("contact id not resolved from CRM: %q", sched.ContactID)
	}
	if !sched.Active {
		t.Fatalf("new schedule must be active")
	}

	// A caller-supplied contact id wins over the lookup.
	sched, err = svc.Create(context.Background(), "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactID:    "77",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sched.ContactID != "77" {
		t.Fatalf("supplied contact id overridden: %q", sched.ContactID)
	}
}

func TestExecuteClaimsExactlyOnce(t *testing.T) {
	repo := NewMemoryRepo()
	caller := &fakeCaller{}
	svc := newTestService(repo, caller, nil, nil)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Execute(ctx, "org-1", sched.ID)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotClaimable):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 9 {
		t.Fatalf("claim not exclusive: %d wins, %d losses", wins, losses)
	}
	if len(caller.placed) != 1 {
		t.Fatalf("expected exactly one call placed, got %d", len(caller.placed))
	}
}

func TestExecuteVendorFailureMarksFailed(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, &fakeCaller{err: errors.New("vendor 503")}, nil, nil)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(-time.Minute)),
	})

	_, err := svc.Execute(ctx, "org-1", sched.ID)
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}

	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Fatalf("last error not recorded")
	}
	if got.IsDue(testNow.Add(time.Hour)) {
		t.Fatalf("failed schedule must not become due again")
	}
}

func TestExecuteConcurrencyLimited(t *testing.T) {
	repo := NewMemoryRepo()
	limiter := &fakeLimiter{allow: false}
	caller := &fakeCaller{}
	svc := newTestService(repo, caller, nil, limiter)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(-time.Minute)),
	})

	_, err := svc.Execute(ctx, "org-1", sched.ID)
	if !errors.Is(err, ErrConcurrencyLimited) {
		t.Fatalf("expected ErrConcurrencyLimited, got %v", err)
	}
	if len(caller.placed) != 0 {
		t.Fatalf("no call should be placed when limited")
	}
	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.Status != StatusScheduled {
		t.Fatalf("schedule must return to scheduled, got %q", got.Status)
	}
	if !got.IsDue(testNow) {
		t.Fatalf("returned schedule must be due on the next tick")
	}
}

func TestCompleteByCallOneShot(t *testing.T) {
	repo := NewMemoryRepo()
	limiter := &fakeLimiter{allow: true}
	svc := newTestService(repo, &fakeCaller{}, nil, limiter)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(-time.Minute)),
	})
	if _, err := svc.Execute(ctx, "org-1", sched.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := svc.CompleteByCall(ctx, "org-1", "vendor-call-1"); err != nil {
		t.Fatalf("CompleteByCall: %v", err)
	}
	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if limiter.released != 1 {
		t.Fatalf("concurrency slot not released")
	}
}

func TestCompleteByCallAutoTriggerRearms(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, &fakeCaller{}, nil, nil)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		AutoTrigger:  true,
		CheckupDays:  30,
	})
	if _, err := svc.Execute(ctx, "org-1", sched.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := svc.CompleteByCall(ctx, "org-1", "vendor-call-1"); err != nil {
		t.Fatalf("CompleteByCall: %v", err)
	}
	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.Status != StatusScheduled {
		t.Fatalf("auto-trigger schedule must re-arm, got %q", got.Status)
	}
	if got.IsDue(testNow) {
		t.Fatalf("just-completed checkup must not be due")
	}
	if !got.IsDue(testNow.Add(31 * 24 * time.Hour)) {
		t.Fatalf("checkup must be due after the interval")
	}
}

func TestCancel(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, &fakeCaller{}, nil, nil)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		AgentID:      "agent-1",
		ContactPhone: "+14155552671",
		ScheduledAt:  ptrTime(testNow.Add(time.Hour)),
	})
	if err := svc.Cancel(ctx, "org-1", sched.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.Active {
		t.Fatalf("cancelled schedule must be inactive")
	}
	if err := svc.Cancel(ctx, "org-1", sched.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("double cancel should fail, got %v", err)
	}
	if _, err := svc.Execute(ctx, "org-1", sched.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("cancelled schedule must not execute, got %v", err)
	}
}
