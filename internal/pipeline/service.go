// Package pipeline orchestrates the call-processing flow: fetch the
// transcript from the telephony vendor, summarize it, persist both, and
// push the summary to the CRM. Each step can fail independently; CRM
// failures never roll back persisted call data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentsdr/internal/calls"
	"agentsdr/internal/crm"
	"agentsdr/internal/summarizer"
	"agentsdr/internal/telephony"
)

// ErrNoSummary is returned by RetrySync when the call has no stored summary
// to push.
var ErrNoSummary = errors.New("pipeline: call has no summary")

// TranscriptFetcher is the slice of the vendor API the pipeline needs.
type TranscriptFetcher interface {
	GetCall(ctx context.Context, callID string) (telephony.CallInfo, error)
	GetTranscript(ctx context.Context, callID string) (telephony.TranscriptData, error)
}

// Summarizer produces a bounded summary of transcript text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (summarizer.Result, error)
}

// Store persists call records, transcripts and summaries.
type Store interface {
	SaveRecord(ctx context.Context, r calls.CallRecord) (calls.CallRecord, error)
	SaveTranscript(ctx context.Context, t calls.Transcript) (calls.Transcript, error)
	SaveSummary(ctx context.Context, s calls.Summary) (calls.Summary, error)
	Link(ctx context.Context, orgID, recordID, transcriptID, summaryID string) error
	MarkCRMSync(ctx context.Context, orgID, recordID string, synced bool, contactID string) error
	Detail(ctx context.Context, orgID, recordID string) (calls.CallDetail, error)
}

// ContactCache memoizes phone -> CRM contact id lookups. May be nil.
type ContactCache interface {
	Get(ctx context.Context, orgID, phone string) (string, error)
	Put(ctx context.Context, orgID, phone, contactID string) error
}

// Result reports what the pipeline accomplished for one call. Success and
// CRMSuccess are independent: a call can be fully persisted while the CRM
// push failed.
type Result struct {
	RecordID     string `json:"record_id"`
	TranscriptID string `json:"transcript_id,omitempty"`
	SummaryID    string `json:"summary_id,omitempty"`
	SummaryText  string `json:"summary,omitempty"`
	Truncated    bool   `json:"truncated,omitempty"`
	CRMContactID string `json:"crm_contact_id,omitempty"`
	Success      bool   `json:"success"`
	CRMSuccess   bool   `json:"crm_success"`
}

type Service struct {
	vendor TranscriptFetcher
	summ   Summarizer
	crm    crm.Client
	store  Store
	cache  ContactCache
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(vendor TranscriptFetcher, summ Summarizer, crmClient crm.Client, store Store, cache ContactCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		vendor: vendor,
		summ:   summ,
		crm:    crmClient,
		store:  store,
		cache:  cache,
		log:    log,
		clock:  time.Now,
	}
}

// ProcessCall runs the full flow for a vendor call id: fetch, summarize,
// persist, CRM push. Re-running for the same call is safe; persistence is
// keyed by (org, call id) and never duplicates rows.
func (s *Service) ProcessCall(ctx context.Context, orgID, callID string) (Result, error) {
	if orgID == "" || callID == "" {
		return Result{}, calls.ErrInvalidArgument
	}

	info, err := s.vendor.GetCall(ctx, callID)
	if err != nil {
		return Result{}, &VendorFetchError{CallID: callID, Err: err}
	}
	td, err := s.vendor.GetTranscript(ctx, callID)
	if err != nil {
		return Result{}, &VendorFetchError{CallID: callID, Err: err}
	}

	return s.process(ctx, orgID, info, td.Text)
}

// ProcessWebhook runs the flow for a vendor completion event that carries
// the transcript inline, skipping the fetch round trips.
func (s *Service) ProcessWebhook(ctx context.Context, orgID string, ev telephony.WebhookEvent) (Result, error) {
	if orgID == "" || ev.CallID == "" {
		return Result{}, calls.ErrInvalidArgument
	}
	if strings.TrimSpace(ev.Transcript) == "" {
		return Result{}, &VendorFetchError{CallID: ev.CallID, Err: errors.New("webhook event carries no transcript")}
	}
	info := telephony.CallInfo{
		CallID:       ev.CallID,
		AgentID:      ev.AgentID,
		ContactPhone: ev.ContactPhone,
		ContactName:  ev.ContactName,
		Duration:     ev.Duration,
		Status:       ev.Status,
	}
	return s.process(ctx, orgID, info, ev.Transcript)
}

func (s *Service) process(ctx context.Context, orgID string, info telephony.CallInfo, transcriptText string) (Result, error) {
	status := calls.CallStatus(info.Status)
	if status == "" {
		status = calls.CallStatusCompleted
	}

	rec, err := s.store.SaveRecord(ctx, calls.CallRecord{
		OrgID:        orgID,
		CallID:       info.CallID,
		AgentID:      info.AgentID,
		ContactPhone: info.ContactPhone,
		ContactName:  info.ContactName,
		Duration:     info.Duration,
		Status:       status,
	})
	if err != nil {
		return Result{}, fmt.Errorf("save call record: %w", err)
	}
	res := Result{RecordID: rec.ID}

	tr, err := s.store.SaveTranscript(ctx, calls.Transcript{
		OrgID:        orgID,
		CallID:       info.CallID,
		AgentID:      info.AgentID,
		ContactPhone: info.ContactPhone,
		ContactName:  info.ContactName,
		Text:         transcriptText,
		Duration:     info.Duration,
		Status:       status,
	})
	if err != nil {
		return res, fmt.Errorf("save transcript: %w", err)
	}
	res.TranscriptID = tr.ID

	// Summarize the stored text, not the incoming one: a re-run of an
	// already-processed call summarizes the original transcript.
	sum, err := s.summ.Summarize(ctx, tr.Text)
	if err != nil {
		return res, &SummarizationError{CallID: info.CallID, Err: err}
	}
	res.Truncated = sum.Truncated

	saved, err := s.store.SaveSummary(ctx, calls.Summary{
		OrgID:        orgID,
		TranscriptID: tr.ID,
		Text:         sum.Text,
		WordCount:    sum.WordCount,
		Model:        sum.Model,
		TotalTokens:  sum.TotalTokens,
		PromptTokens: sum.PromptTokens,
		OutputTokens: sum.OutputTokens,
	})
	if err != nil {
		return res, fmt.Errorf("save summary: %w", err)
	}
	res.SummaryID = saved.ID
	res.SummaryText = saved.Text

	if err := s.store.Link(ctx, orgID, rec.ID, tr.ID, saved.ID); err != nil {
		return res, fmt.Errorf("link call record: %w", err)
	}
	res.Success = true

	contactID, err := s.syncCRM(ctx, orgID, rec.ID, info.ContactPhone, info.ContactName, saved.Text)
	if err != nil {
		s.log.Warn("crm sync failed, call data persisted",
			"org_id", orgID, "call_id", info.CallID, "error", err)
		return res, &CRMSyncError{CallID: info.CallID, Phone: info.ContactPhone, Err: err}
	}
	res.CRMSuccess = true
	res.CRMContactID = contactID
	return res, nil
}

// RetrySync re-runs only the CRM step for an already-processed call.
func (s *Service) RetrySync(ctx context.Context, orgID, recordID string) (Result, error) {
	d, err := s.store.Detail(ctx, orgID, recordID)
	if err != nil {
		return Result{}, err
	}
	if d.Summary == nil {
		return Result{}, ErrNoSummary
	}
	res := Result{
		RecordID:     d.Record.ID,
		TranscriptID: d.Record.TranscriptID,
		SummaryID:    d.Summary.ID,
		SummaryText:  d.Summary.Text,
		Success:      true,
	}
	contactID, err := s.syncCRM(ctx, orgID, d.Record.ID, d.Record.ContactPhone, d.Record.ContactName, d.Summary.Text)
	if err != nil {
		return res, &CRMSyncError{CallID: d.Record.CallID, Phone: d.Record.ContactPhone, Err: err}
	}
	res.CRMSuccess = true
	res.CRMContactID = contactID
	return res, nil
}

func (s *Service) syncCRM(ctx context.Context, orgID, recordID, rawPhone, name, summary string) (string, error) {
	phone, err := crm.NormalizePhone(rawPhone)
	if err != nil {
		return "", err
	}

	contactID := s.cachedContactID(ctx, orgID, phone)
	if contactID == "" {
		ct, err := s.crm.FindContactByPhone(ctx, phone)
		switch {
		case err == nil:
			contactID = ct.ID
		case errors.Is(err, crm.ErrContactNotFound):
			created, err := s.crm.CreateContact(ctx, phone, name)
			if err != nil {
				return "", err
			}
			contactID = created.ID
		default:
			return "", err
		}
	}

	if err := s.crm.AppendContactSummary(ctx, contactID, summary, s.clock().UTC()); err != nil {
		return "", err
	}
	if err := s.store.MarkCRMSync(ctx, orgID, recordID, true, contactID); err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, orgID, phone, contactID); err != nil {
			s.log.Warn("contact cache put failed", "org_id", orgID, "error", err)
		}
	}
	return contactID, nil
}

func (s *Service) cachedContactID(ctx context.Context, orgID, phone string) string {
	if s.cache == nil {
		return ""
	}
	id, err := s.cache.Get(ctx, orgID, phone)
	if err != nil {
		s.log.Warn("contact cache get failed", "org_id", orgID, "error", err)
		return ""
	}
	return id
}
