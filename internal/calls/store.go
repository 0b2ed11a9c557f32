package calls

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence facade for call records, transcripts and
// summaries. All operations are scoped to a single organization by
// argument; nothing in this package crosses org boundaries.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// SaveRecord upserts a call record keyed by (org, vendor call id).
func (s *Store) SaveRecord(ctx context.Context, r CallRecord) (CallRecord, error) {
	if r.OrgID == "" || r.CallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return UpsertRecord(ctx, s.db, r)
}

// SaveTranscript upserts a transcript keyed by (org, vendor call id). If one
// already exists its text is preserved and returned.
func (s *Store) SaveTranscript(ctx context.Context, t Transcript) (Transcript, error) {
	if t.OrgID == "" || t.CallID == "" {
		return Transcript{}, ErrInvalidArgument
	}
	if strings.TrimSpace(t.Text) == "" {
		return Transcript{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return UpsertTranscript(ctx, s.db, t)
}

// SaveSummary upserts a summary keyed by transcript id.
func (s *Store) SaveSummary(ctx context.Context, sm Summary) (Summary, error) {
	if sm.OrgID == "" || sm.TranscriptID == "" {
		return Summary{}, ErrInvalidArgument
	}
	if sm.ID == "" {
		sm.ID = uuid.NewString()
	}
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = s.clock().UTC()
	}
	return UpsertSummary(ctx, s.db, sm)
}

func (s *Store) Link(ctx context.Context, orgID, recordID, transcriptID, summaryID string) error {
	return LinkRecord(ctx, s.db, orgID, recordID, transcriptID, summaryID, s.clock().UTC())
}

func (s *Store) MarkCRMSync(ctx context.Context, orgID, recordID string, synced bool, contactID string) error {
	return SetCRMSync(ctx, s.db, orgID, recordID, synced, contactID, s.clock().UTC())
}

func (s *Store) Record(ctx context.Context, orgID, recordID string) (CallRecord, error) {
	return GetRecord(ctx, s.db, orgID, recordID)
}

func (s *Store) Records(ctx context.Context, orgID string, limit, offset int) ([]CallRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return ListRecords(ctx, s.db, orgID, limit, offset)
}

func (s *Store) Detail(ctx context.Context, orgID, recordID string) (CallDetail, error) {
	return GetDetail(ctx, s.db, orgID, recordID)
}

func (s *Store) SummariesSince(ctx context.Context, orgID string, since time.Time, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return ListSummariesSince(ctx, s.db, orgID, since, limit)
}

func (s *Store) SummariesByRecency(ctx context.Context, orgID string, n int, oldestFirst bool) ([]Summary, error) {
	if n <= 0 || n > 500 {
		n = 10
	}
	return ListSummariesByRecency(ctx, s.db, orgID, n, oldestFirst)
}
