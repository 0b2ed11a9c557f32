package audit

import (
	"context"
	"errors"
	"testing"
)

func TestService_AppendRequiresOrgAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeScheduleExecuted}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{OrgID: "org-1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_ScheduleExecuted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	svc.ScheduleExecuted(context.Background(), "org-1", "sched-1", "call-1", nil)
	svc.ScheduleExecuted(context.Background(), "org-1", "sched-2", "", errors.New("vendor down"))

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeScheduleExecuted || evs[0].CallID != "call-1" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if evs[1].Message == "schedule executed" {
		t.Fatalf("failure must be reflected in the message")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("id and timestamp must be filled in")
	}
}

func TestService_ListByOrgScopesAndLimits(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	svc.DigestSent(ctx, "org-1", "d1", 3, nil)
	svc.DigestSent(ctx, "org-2", "d2", 1, nil)
	svc.CallProcessed(ctx, "org-1", "call-9", true)

	evs, err := svc.ListByOrg(ctx, "org-1", 10)
	if err != nil {
		t.Fatalf("ListByOrg: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 org-1 events, got %d", len(evs))
	}
	for _, e := range evs {
		if e.OrgID != "org-1" {
			t.Fatalf("cross-org leak: %+v", e)
		}
	}
	// Newest first.
	if evs[0].Type != EventTypeCallProcessed {
		t.Fatalf("expected newest first, got %+v", evs[0])
	}
}
