package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"agentsdr/internal/calls"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	summaries []calls.Summary
}

func (f *fakeSource) SummariesSince(_ context.Context, _ string, since time.Time, _ int) ([]calls.Summary, error) {
	var out []calls.Summary
	for _, s := range f.summaries {
		if !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) SummariesByRecency(_ context.Context, _ string, n int, oldestFirst bool) ([]calls.Summary, error) {
	out := make([]calls.Summary, len(f.summaries))
	copy(out, f.summaries)
	if !oldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

type fakeSender struct {
	mu    sync.Mutex
	sends []Content
	err   error
}

func (f *fakeSender) Send(_ context.Context, _ []string, c Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, c)
	return nil
}

func summaryAt(text string, created time.Time) calls.Summary {
	return calls.Summary{Text: text, CreatedAt: created}
}

func newTestDigestService(repo Repository, src SummarySource, sender Sender) *Service {
	svc := NewService(repo, src, sender, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.clock = func() time.Time { return testNow }
	return svc
}

func TestCreateValidation(t *testing.T) {
	svc := newTestDigestService(NewMemoryRepo(), &fakeSource{}, &fakeSender{})
	ctx := context.Background()

	base := CreateInput{
		Name:       "daily digest",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqDaily,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	}

	bad := base
	bad.Recipients = nil
	if _, err := svc.Create(ctx, "org-1", "user-1", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("no recipients: %v", err)
	}

	bad = base
	bad.Recipients = []string{"not-an-email"}
	if _, err := svc.Create(ctx, "org-1", "user-1", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad recipient: %v", err)
	}

	bad = base
	bad.Frequency = "fortnightly"
	if _, err := svc.Create(ctx, "org-1", "user-1", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad frequency: %v", err)
	}

	bad = base
	bad.Criteria = CriteriaLatestN
	if _, err := svc.Create(ctx, "org-1", "user-1", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("latest_n without n: %v", err)
	}

	bad = base
	bad.Hour = 24
	if _, err := svc.Create(ctx, "org-1", "user-1", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("hour out of range: %v", err)
	}

	sched, err := svc.Create(ctx, "org-1", "user-1", base)
	if err != nil {
		t.Fatalf("valid input: %v", err)
	}
	if !sched.Active {
		t.Fatalf("new schedule must be active")
	}
	if !sched.NextRunAt.After(testNow) {
		t.Fatalf("next run must be in the future: %v", sched.NextRunAt)
	}
}

func TestRunDeliversAndReschedules(t *testing.T) {
	repo := NewMemoryRepo()
	src := &fakeSource{summaries: []calls.Summary{
		summaryAt("renewal discussed", testNow.Add(-2*time.Hour)),
		summaryAt("demo booked", testNow.Add(-30*time.Hour)),
	}}
	sender := &fakeSender{}
	svc := newTestDigestService(repo, src, sender)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		Name:       "daily digest",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqDaily,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	})
	// Make it due.
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))

	content, err := svc.Run(ctx, "org-1", sched.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if content.Count != 1 {
		t.Fatalf("24h criteria should select 1 summary, got %d", content.Count)
	}
	if !strings.Contains(content.Text, "renewal discussed") {
		t.Fatalf("summary text missing from digest: %q", content.Text)
	}
	if len(sender.sends) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sender.sends))
	}

	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if !got.Active {
		t.Fatalf("recurring schedule must stay active")
	}
	if !got.NextRunAt.After(testNow) {
		t.Fatalf("next run not advanced: %v", got.NextRunAt)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(testNow) {
		t.Fatalf("last run not stamped: %v", got.LastRunAt)
	}
}

func TestRunDuplicateWindow(t *testing.T) {
	repo := NewMemoryRepo()
	sender := &fakeSender{}
	svc := newTestDigestService(repo, &fakeSource{}, sender)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		Name:       "daily digest",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqDaily,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	})
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))

	if _, err := svc.Run(ctx, "org-1", sched.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Force it due again inside the window: the claim must refuse.
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))
	if _, err := svc.Run(ctx, "org-1", sched.ID); !IsSkip(err) {
		t.Fatalf("expected duplicate-window skip, got %v", err)
	}
	if len(sender.sends) != 1 {
		t.Fatalf("digest delivered twice inside window")
	}
}

func TestRunClaimIsExclusive(t *testing.T) {
	repo := NewMemoryRepo()
	sender := &fakeSender{}
	svc := newTestDigestService(repo, &fakeSource{}, sender)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		Name:       "daily digest",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqDaily,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	})
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Run(ctx, "org-1", sched.ID)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case IsSkip(err):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("claim not exclusive: %d wins", wins)
	}
	if len(sender.sends) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(sender.sends))
	}
}

func TestRunOnceDeactivates(t *testing.T) {
	repo := NewMemoryRepo()
	sender := &fakeSender{}
	svc := newTestDigestService(repo, &fakeSource{}, sender)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		Name:       "one shot",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqOnce,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	})
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))

	if _, err := svc.Run(ctx, "org-1", sched.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.Active {
		t.Fatalf("once schedule must deactivate after firing")
	}
	due, _ := svc.Due(ctx, "org-1", testNow.Add(48*time.Hour))
	if len(due) != 0 {
		t.Fatalf("deactivated schedule must never be due again: %+v", due)
	}
}

func TestRunSendFailureLeavesScheduleDue(t *testing.T) {
	repo := NewMemoryRepo()
	sender := &fakeSender{err: errors.New("smtp down")}
	svc := newTestDigestService(repo, &fakeSource{}, sender)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		Name:       "daily digest",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqDaily,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	})
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))

	if _, err := svc.Run(ctx, "org-1", sched.ID); err == nil {
		t.Fatalf("expected send failure")
	}

	// A failed delivery must not consume the run.
	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if got.LastRunAt != nil {
		t.Fatalf("failed run stamped last_run_at: %v", got.LastRunAt)
	}
	due, err := svc.Due(ctx, "org-1", testNow.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("schedule must stay due after a failed send, got %+v", due)
	}

	// Next tick with delivery restored succeeds.
	sender.err = nil
	if _, err := svc.Run(ctx, "org-1", sched.ID); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if len(sender.sends) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sender.sends))
	}
}

func TestRunOnceSendFailureKeepsActive(t *testing.T) {
	repo := NewMemoryRepo()
	sender := &fakeSender{err: errors.New("smtp down")}
	svc := newTestDigestService(repo, &fakeSource{}, sender)
	ctx := context.Background()

	sched, _ := svc.Create(ctx, "org-1", "user-1", CreateInput{
		Name:       "one shot",
		Recipients: []string{"ops@example.com"},
		Frequency:  FreqOnce,
		Hour:       9,
		Criteria:   CriteriaLast24Hours,
	})
	repo.schedules[sched.ID] = withNextRun(repo.schedules[sched.ID], testNow.Add(-time.Minute))

	if _, err := svc.Run(ctx, "org-1", sched.ID); err == nil {
		t.Fatalf("expected send failure")
	}

	got, _ := repo.Get(ctx, "org-1", sched.ID)
	if !got.Active {
		t.Fatalf("once schedule must stay active until it actually delivers")
	}
}

func TestBuildCriteria(t *testing.T) {
	src := &fakeSource{summaries: []calls.Summary{
		summaryAt("oldest", testNow.Add(-10*24*time.Hour)),
		summaryAt("middle", testNow.Add(-3*24*time.Hour)),
		summaryAt("newest", testNow.Add(-time.Hour)),
	}}
	ctx := context.Background()

	tests := []struct {
		name  string
		s     EmailSchedule
		want  int
		first string
	}{
		{"last 24 hours", EmailSchedule{Criteria: CriteriaLast24Hours}, 1, "newest"},
		{"last 7 days", EmailSchedule{Criteria: CriteriaLast7Days}, 2, "middle"},
		{"custom hours", EmailSchedule{Criteria: CriteriaCustomHours, CriteriaHours: 96}, 2, "middle"},
		{"latest n", EmailSchedule{Criteria: CriteriaLatestN, CriteriaN: 2}, 2, "newest"},
		{"oldest n", EmailSchedule{Criteria: CriteriaOldestN, CriteriaN: 1}, 1, "oldest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			content, err := Build(ctx, src, tc.s, testNow)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if content.Count != tc.want {
				t.Fatalf("count = %d, want %d", content.Count, tc.want)
			}
			if !strings.Contains(content.Text, tc.first) {
				t.Fatalf("expected %q in digest: %q", tc.first, content.Text)
			}
		})
	}

	if _, err := Build(ctx, src, EmailSchedule{Criteria: "bogus"}, testNow); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown criteria must error, got %v", err)
	}
}

func TestBuildEmptyDigest(t *testing.T) {
	content, err := Build(context.Background(), &fakeSource{}, EmailSchedule{Criteria: CriteriaLast24Hours}, testNow)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if content.Count != 0 {
		t.Fatalf("expected empty digest")
	}
	if !strings.Contains(content.Text, "No call summaries") {
		t.Fatalf("empty digest body missing notice: %q", content.Text)
	}
}

func withNextRun(s EmailSchedule, at time.Time) EmailSchedule {
	s.NextRunAt = at
	return s
}
