package digest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository useful for tests. ClaimRun mirrors
// the conditional-update semantics of the Postgres repository.

type MemoryRepo struct {
	mu        sync.Mutex
	schedules map[string]EmailSchedule
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{schedules: map[string]EmailSchedule{}}
}

func (r *MemoryRepo) Insert(_ context.Context, s EmailSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, orgID, id string) (EmailSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return EmailSchedule{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) List(_ context.Context, orgID string) ([]EmailSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EmailSchedule
	for _, s := range r.schedules {
		if s.OrgID == orgID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Delete(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return ErrNotFound
	}
	delete(r.schedules, id)
	return nil
}

func (r *MemoryRepo) SetActive(_ context.Context, orgID, id string, active bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return ErrNotFound
	}
	s.Active = active
	s.UpdatedAt = now
	r.schedules[id] = s
	return nil
}

func (r *MemoryRepo) Due(_ context.Context, orgID string, now time.Time) ([]EmailSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EmailSchedule
	for _, s := range r.schedules {
		if s.OrgID == orgID && s.Active && !s.NextRunAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return out, nil
}

func (r *MemoryRepo) ClaimRun(_ context.Context, orgID, id string, now, next time.Time, window time.Duration, deactivate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID || !s.Active || s.NextRunAt.After(now) {
		return ErrNotRunnable
	}
	if s.LastRunAt != nil && s.LastRunAt.After(now.Add(-window)) {
		return ErrNotRunnable
	}
	t := now
	s.LastRunAt = &t
	s.NextRunAt = next
	s.Active = !deactivate
	s.UpdatedAt = now
	r.schedules[id] = s
	return nil
}

func (r *MemoryRepo) ReleaseRun(_ context.Context, orgID, id string, lastRunAt *time.Time, nextRunAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OrgID != orgID {
		return ErrNotFound
	}
	s.LastRunAt = lastRunAt
	s.NextRunAt = nextRunAt
	s.Active = true
	s.UpdatedAt = now
	r.schedules[id] = s
	return nil
}
