// Package telephony talks to the voicebot vendor that places outbound
// calls and produces transcripts.
package telephony

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCallNotFound is returned when the vendor has no record of a call id.
	ErrCallNotFound = errors.New("telephony: call not found")
	// ErrTranscriptNotReady is returned when the call exists but its
	// transcript has not been produced yet.
	ErrTranscriptNotReady = errors.New("telephony: transcript not ready")
)

// CallInfo is the vendor's view of a call.
type CallInfo struct {
	CallID       string    `json:"call_id"`
	AgentID      string    `json:"agent_id"`
	ContactPhone string    `json:"contact_phone"`
	ContactName  string    `json:"contact_name"`
	Duration     int       `json:"duration_seconds"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
}

// TranscriptData is a completed call transcript as fetched from the vendor.
type TranscriptData struct {
	CallID string `json:"call_id"`
	Text   string `json:"transcript"`
}

// OutboundCall is a request to place a call.
type OutboundCall struct {
	AgentID    string `json:"agent_id"`
	ToNumber   string `json:"recipient_phone_number"`
	FromNumber string `json:"from_phone_number"`
	Topic      string `json:"topic,omitempty"`
	Language   string `json:"language,omitempty"`
}

// WebhookEvent is the payload the vendor posts when a call completes.
type WebhookEvent struct {
	CallID       string `json:"call_id"`
	AgentID      string `json:"agent_id"`
	ContactPhone string `json:"contact_phone"`
	ContactName  string `json:"contact_name"`
	Duration     int    `json:"duration_seconds"`
	Status       string `json:"status"`
	Transcript   string `json:"transcript"`
}

// Provider abstracts the voicebot vendor API.
type Provider interface {
	GetCall(ctx context.Context, callID string) (CallInfo, error)
	GetTranscript(ctx context.Context, callID string) (TranscriptData, error)
	ListCalls(ctx context.Context, agentID string, limit int) ([]CallInfo, error)
	PlaceCall(ctx context.Context, req OutboundCall) (CallInfo, error)
}
