package reporting

import (
	"context"
	"sync"
	"time"

	"agentsdr/internal/calls"
	"agentsdr/internal/callsched"
	"agentsdr/internal/digest"
)

// MemoryRepo is an in-memory repository useful for tests.

type MemoryRepo struct {
	mu        sync.Mutex
	Records   []calls.CallRecord
	Schedules []callsched.Schedule
	Digests   []digest.EmailSchedule
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCallRecords(_ context.Context, orgID string, from, to time.Time) ([]calls.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []calls.CallRecord
	for _, c := range r.Records {
		if c.OrgID == orgID && !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListCallSchedules(_ context.Context, orgID string) ([]callsched.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []callsched.Schedule
	for _, s := range r.Schedules {
		if s.OrgID == orgID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListEmailSchedules(_ context.Context, orgID string) ([]digest.EmailSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []digest.EmailSchedule
	for _, d := range r.Digests {
		if d.OrgID == orgID {
			out = append(out, d)
		}
	}
	return out, nil
}
