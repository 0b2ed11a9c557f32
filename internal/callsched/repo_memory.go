package callsched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository useful for tests. Claim has the
// same exactly-once semantics as the conditional update in Postgres.

type MemoryRepo struct {
	mu        sync.Mutex
	schedules map[string]Schedule
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{schedules: map[string]Schedule{}}
}

func (r *MemoryRepo) Insert(_ context.Context, s Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, orgID, id string) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return Schedule{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) List(_ context.Context, orgID string, limit, offset int) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Schedule
	for _, s := range r.schedules {
		if s.OrgID == orgID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Candidates(_ context.Context, orgID string) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Schedule
	for _, s := range r.schedules {
		if s.OrgID == orgID && s.Active && s.Status == StatusScheduled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) FindByCallID(_ context.Context, orgID, callID string) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.OrgID == orgID && s.CallID == callID {
			return s, nil
		}
	}
	return Schedule{}, ErrNotFound
}

func (r *MemoryRepo) Claim(_ context.Context, orgID, id string, now time.Time) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID || !s.Active || s.Status != StatusScheduled {
		return Schedule{}, ErrNotClaimable
	}
	s.Status = StatusInProgress
	s.UpdatedAt = now
	r.schedules[id] = s
	return s, nil
}

func (r *MemoryRepo) SetOutcome(_ context.Context, orgID, id, status, callID, lastError string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return ErrNotFound
	}
	s.Status = status
	s.Active = status == StatusScheduled || status == StatusInProgress
	s.CallID = callID
	s.LastError = lastError
	s.UpdatedAt = now
	r.schedules[id] = s
	return nil
}

func (r *MemoryRepo) Cancel(_ context.Context, orgID, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID || s.Status != StatusScheduled {
		return ErrNotClaimable
	}
	s.Status = StatusCancelled
	s.Active = false
	s.UpdatedAt = now
	r.schedules[id] = s
	return nil
}

func (r *MemoryRepo) SetLastCheckup(_ context.Context, orgID, id string, at, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return ErrNotFound
	}
	s.LastCheckupAt = &at
	s.UpdatedAt = now
	r.schedules[id] = s
	return nil
}
