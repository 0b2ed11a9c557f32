package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentsdr/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*VoicebotClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewVoicebotClient(config.VoicebotConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	return client, srv
}

func TestGetCall(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/call/call-123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":                     "call-123",
			"agent_id":               "agent-1",
			"recipient_phone_number": "+15551234567",
			"conversation_duration":  93,
			"status":                 "completed",
			"created_at":             "2026-08-01T12:00:00Z",
		})
	}))

	info, err := client.GetCall(context.Background(), "call-123")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if info.CallID != "call-123" || info.Duration != 93 || info.Status != "completed" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.StartedAt.IsZero() {
		t.Fatalf("expected StartedAt to be parsed")
	}
}

func TestGetCallNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetCall(context.Background(), "missing")
	if !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
}

func TestGetTranscriptNotReady(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "call-9",
			"status":     "in_progress",
			"transcript": "",
		})
	}))

	_, err := client.GetTranscript(context.Background(), "call-9")
	if !errors.Is(err, ErrTranscriptNotReady) {
		t.Fatalf("expected ErrTranscriptNotReady, got %v", err)
	}
}

func TestGetTranscript(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "call-9",
			"status":     "completed",
			"transcript": "agent: hello\nuser: hi there",
		})
	}))

	td, err := client.GetTranscript(context.Background(), "call-9")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if td.Text != "agent: hello\nuser: hi there" {
		t.Fatalf("unexpected transcript %q", td.Text)
	}
}

func TestPlaceCall(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost || r.URL.Path != "/call" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "call-new",
			"status": "queued",
		})
	}))

	info, err := client.PlaceCall(context.Background(), OutboundCall{
		AgentID:    "agent-1",
		ToNumber:   "+15551234567",
		FromNumber: "+15557654321",
		Topic:      "quarterly checkup",
	})
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if info.CallID != "call-new" || info.Status != "queued" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.ContactPhone != "+15551234567" {
		t.Fatalf("expected recipient echoed back, got %q", info.ContactPhone)
	}
	if gotBody["agent_id"] != "agent-1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	ud, ok := gotBody["user_data"].(map[string]any)
	if !ok || ud["topic"] != "quarterly checkup" {
		t.Fatalf("expected user_data.topic in body, got %+v", gotBody)
	}
}

func TestPlaceCallValidation(t *testing.T) {
	client := NewVoicebotClient(config.VoicebotConfig{APIKey: "k", BaseURL: "http://localhost:0"})
	if _, err := client.PlaceCall(context.Background(), OutboundCall{AgentID: "a"}); err == nil {
		t.Fatalf("expected error for missing recipient number")
	}
}
