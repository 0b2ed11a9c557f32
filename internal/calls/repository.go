package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - call_records     (UNIQUE (org_id, call_id))
// - call_transcripts (UNIQUE (org_id, call_id))
// - call_summaries   (UNIQUE (transcript_id))
//
// The unique pairs are what make pipeline re-runs idempotent.

// UpsertRecord inserts a call record or refreshes the metadata of an existing
// one. The row id is stable across re-runs: on conflict the existing id wins.
func UpsertRecord(ctx context.Context, db *sql.DB, r CallRecord) (CallRecord, error) {
	const q = `
INSERT INTO call_records (
  id, org_id, call_id, agent_id, contact_phone, contact_name,
  call_duration, call_status, crm_synced, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (org_id, call_id)
DO UPDATE SET contact_phone = EXCLUDED.contact_phone,
              contact_name  = EXCLUDED.contact_name,
              call_duration = EXCLUDED.call_duration,
              call_status   = EXCLUDED.call_status,
              updated_at    = EXCLUDED.updated_at
RETURNING id, org_id, call_id, agent_id, contact_phone, contact_name,
          call_duration, call_status,
          COALESCE(transcript_id, ''), COALESCE(summary_id, ''),
          crm_synced, COALESCE(crm_contact_id, ''), created_at, updated_at
`
	var out CallRecord
	if err := db.QueryRowContext(ctx, q,
		r.ID,
		r.OrgID,
		r.CallID,
		r.AgentID,
		r.ContactPhone,
		r.ContactName,
		r.Duration,
		r.Status,
		r.CRMSynced,
		r.CreatedAt,
		r.UpdatedAt,
	).Scan(
		&out.ID,
		&out.OrgID,
		&out.CallID,
		&out.AgentID,
		&out.ContactPhone,
		&out.ContactName,
		&out.Duration,
		&out.Status,
		&out.TranscriptID,
		&out.SummaryID,
		&out.CRMSynced,
		&out.CRMContactID,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	return out, nil
}

// UpsertTranscript stores a transcript once per (org, call). On conflict the
// stored transcript_text is kept untouched; only bookkeeping fields refresh.
func UpsertTranscript(ctx context.Context, db *sql.DB, t Transcript) (Transcript, error) {
	const q = `
INSERT INTO call_transcripts (
  id, org_id, call_id, agent_id, contact_phone, contact_name,
  transcript_text, call_duration, call_status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (org_id, call_id)
DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id, org_id, call_id, agent_id, contact_phone, contact_name,
          transcript_text, call_duration, call_status, created_at, updated_at
`
	var out Transcript
	if err := db.QueryRowContext(ctx, q,
		t.ID,
		t.OrgID,
		t.CallID,
		t.AgentID,
		t.ContactPhone,
		t.ContactName,
		t.Text,
		t.Duration,
		t.Status,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(
		&out.ID,
		&out.OrgID,
		&out.CallID,
		&out.AgentID,
		&out.ContactPhone,
		&out.ContactName,
		&out.Text,
		&out.Duration,
		&out.Status,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return Transcript{}, err
	}
	return out, nil
}

// UpsertSummary stores at most one summary per transcript. Re-summarizing a
// call replaces the derived text and usage numbers.
func UpsertSummary(ctx context.Context, db *sql.DB, s Summary) (Summary, error) {
	const q = `
INSERT INTO call_summaries (
  id, org_id, transcript_id, summary_text, word_count,
  model_used, tokens_used, prompt_tokens, completion_tokens, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (transcript_id)
DO UPDATE SET summary_text      = EXCLUDED.summary_text,
              word_count        = EXCLUDED.word_count,
              model_used        = EXCLUDED.model_used,
              tokens_used       = EXCLUDED.tokens_used,
              prompt_tokens     = EXCLUDED.prompt_tokens,
              completion_tokens = EXCLUDED.completion_tokens
RETURNING id, org_id, transcript_id, summary_text, word_count,
          model_used, tokens_used, prompt_tokens, completion_tokens, created_at
`
	var out Summary
	if err := db.QueryRowContext(ctx, q,
		s.ID,
		s.OrgID,
		s.TranscriptID,
		s.Text,
		s.WordCount,
		s.Model,
		s.TotalTokens,
		s.PromptTokens,
		s.OutputTokens,
		s.CreatedAt,
	).Scan(
		&out.ID,
		&out.OrgID,
		&out.TranscriptID,
		&out.Text,
		&out.WordCount,
		&out.Model,
		&out.TotalTokens,
		&out.PromptTokens,
		&out.OutputTokens,
		&out.CreatedAt,
	); err != nil {
		return Summary{}, err
	}
	return out, nil
}

// LinkRecord attaches transcript and summary ids to a call record.
func LinkRecord(ctx context.Context, db *sql.DB, orgID, recordID, transcriptID, summaryID string, now time.Time) error {
	const q = `
UPDATE call_records SET transcript_id = $3, summary_id = $4, updated_at = $5
WHERE org_id = $1 AND id = $2
`
	res, err := db.ExecContext(ctx, q, orgID, recordID, transcriptID, summaryID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCRMSync records the outcome of the CRM push for a call record.
func SetCRMSync(ctx context.Context, db *sql.DB, orgID, recordID string, synced bool, contactID string, now time.Time) error {
	const q = `
UPDATE call_records SET crm_synced = $3, crm_contact_id = NULLIF($4, ''), updated_at = $5
WHERE org_id = $1 AND id = $2
`
	res, err := db.ExecContext(ctx, q, orgID, recordID, synced, contactID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const recordColumns = `
  r.id, r.org_id, r.call_id, r.agent_id, r.contact_phone, COALESCE(r.contact_name, ''),
  r.call_duration, r.call_status,
  COALESCE(r.transcript_id, ''), COALESCE(r.summary_id, ''),
  r.crm_synced, COALESCE(r.crm_contact_id, ''), r.created_at, r.updated_at`

func scanRecord(row interface{ Scan(...any) error }) (CallRecord, error) {
	var r CallRecord
	err := row.Scan(
		&r.ID,
		&r.OrgID,
		&r.CallID,
		&r.AgentID,
		&r.ContactPhone,
		&r.ContactName,
		&r.Duration,
		&r.Status,
		&r.TranscriptID,
		&r.SummaryID,
		&r.CRMSynced,
		&r.CRMContactID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func GetRecord(ctx context.Context, db *sql.DB, orgID, recordID string) (CallRecord, error) {
	const q = `
SELECT` + recordColumns + `
FROM call_records r
WHERE r.org_id = $1 AND r.id = $2
`
	r, err := scanRecord(db.QueryRowContext(ctx, q, orgID, recordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return r, nil
}

func ListRecords(ctx context.Context, db *sql.DB, orgID string, limit, offset int) ([]CallRecord, error) {
	const q = `
SELECT` + recordColumns + `
FROM call_records r
WHERE r.org_id = $1
ORDER BY r.created_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := db.QueryContext(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func GetTranscript(ctx context.Context, db *sql.DB, orgID, transcriptID string) (Transcript, error) {
	const q = `
SELECT id, org_id, call_id, agent_id, contact_phone, COALESCE(contact_name, ''),
       transcript_text, call_duration, call_status, created_at, updated_at
FROM call_transcripts
WHERE org_id = $1 AND id = $2
`
	var t Transcript
	if err := db.QueryRowContext(ctx, q, orgID, transcriptID).Scan(
		&t.ID,
		&t.OrgID,
		&t.CallID,
		&t.AgentID,
		&t.ContactPhone,
		&t.ContactName,
		&t.Text,
		&t.Duration,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, err
	}
	return t, nil
}

func GetSummary(ctx context.Context, db *sql.DB, orgID, summaryID string) (Summary, error) {
	const q = `
SELECT id, org_id, transcript_id, summary_text, word_count,
       model_used, tokens_used, prompt_tokens, completion_tokens, created_at
FROM call_summaries
WHERE org_id = $1 AND id = $2
`
	var s Summary
	if err := db.QueryRowContext(ctx, q, orgID, summaryID).Scan(
		&s.ID,
		&s.OrgID,
		&s.TranscriptID,
		&s.Text,
		&s.WordCount,
		&s.Model,
		&s.TotalTokens,
		&s.PromptTokens,
		&s.OutputTokens,
		&s.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	return s, nil
}

// GetDetail loads a record together with its transcript and summary when the
// linkage exists.
func GetDetail(ctx context.Context, db *sql.DB, orgID, recordID string) (CallDetail, error) {
	r, err := GetRecord(ctx, db, orgID, recordID)
	if err != nil {
		return CallDetail{}, err
	}
	d := CallDetail{Record: r}
	if r.TranscriptID != "" {
		t, err := GetTranscript(ctx, db, orgID, r.TranscriptID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return CallDetail{}, err
		}
		if err == nil {
			d.Transcript = &t
		}
	}
	if r.SummaryID != "" {
		s, err := GetSummary(ctx, db, orgID, r.SummaryID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return CallDetail{}, err
		}
		if err == nil {
			d.Summary = &s
		}
	}
	return d, nil
}

// ListSummariesSince returns summaries created in the window, newest first.
// Used by the digest builder.
func ListSummariesSince(ctx context.Context, db *sql.DB, orgID string, since time.Time, limit int) ([]Summary, error) {
	const q = `
SELECT id, org_id, transcript_id, summary_text, word_count,
       model_used, tokens_used, prompt_tokens, completion_tokens, created_at
FROM call_summaries
WHERE org_id = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT $3
`
	return querySummaries(ctx, db, q, orgID, since, limit)
}

// ListSummariesByRecency returns the newest (or oldest) n summaries for an org.
func ListSummariesByRecency(ctx context.Context, db *sql.DB, orgID string, n int, oldestFirst bool) ([]Summary, error) {
	const newest = `
SELECT id, org_id, transcript_id, summary_text, word_count,
       model_used, tokens_used, prompt_tokens, completion_tokens, created_at
FROM call_summaries
WHERE org_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	const oldest = `
SELECT id, org_id, transcript_id, summary_text, word_count,
       model_used, tokens_used, prompt_tokens, completion_tokens, created_at
FROM call_summaries
WHERE org_id = $1
ORDER BY created_at ASC
LIMIT $2
`
	q := newest
	if oldestFirst {
		q = oldest
	}
	return querySummaries(ctx, db, q, orgID, n)
}

func querySummaries(ctx context.Context, db *sql.DB, q string, args ...any) ([]Summary, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.ID,
			&s.OrgID,
			&s.TranscriptID,
			&s.Text,
			&s.WordCount,
			&s.Model,
			&s.TotalTokens,
			&s.PromptTokens,
			&s.OutputTokens,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
