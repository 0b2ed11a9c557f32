package telephony

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"agentsdr/internal/config"
)

// VoicebotClient implements Provider against the hosted voicebot API.
type VoicebotClient struct {
	http *resty.Client
}

func NewVoicebotClient(cfg config.VoicebotConfig) *VoicebotClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &VoicebotClient{http: client}
}

type vendorCall struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	ToNumber    string `json:"recipient_phone_number"`
	ContactName string `json:"contact_name"`
	Duration    int    `json:"conversation_duration"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	Transcript  string `json:"transcript"`
}

func (v vendorCall) toInfo() CallInfo {
	info := CallInfo{
		CallID:       v.ID,
		AgentID:      v.AgentID,
		ContactPhone: v.ToNumber,
		ContactName:  v.ContactName,
		Duration:     v.Duration,
		Status:       v.Status,
	}
	if t, err := time.Parse(time.RFC3339, v.CreatedAt); err == nil {
		info.StartedAt = t
	}
	return info
}

func (c *VoicebotClient) GetCall(ctx context.Context, callID string) (CallInfo, error) {
	var out vendorCall
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("call_id", callID).
		Get("/call/{call_id}")
	if err != nil {
		return CallInfo{}, fmt.Errorf("voicebot get call: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return CallInfo{}, ErrCallNotFound
	}
	if resp.IsError() {
		return CallInfo{}, fmt.Errorf("voicebot get call: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.toInfo(), nil
}

func (c *VoicebotClient) GetTranscript(ctx context.Context, callID string) (TranscriptData, error) {
	var out vendorCall
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("call_id", callID).
		Get("/call/{call_id}")
	if err != nil {
		return TranscriptData{}, fmt.Errorf("voicebot get transcript: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return TranscriptData{}, ErrCallNotFound
	}
	if resp.IsError() {
		return TranscriptData{}, fmt.Errorf("voicebot get transcript: status %d: %s", resp.StatusCode(), resp.String())
	}
	if strings.TrimSpace(out.Transcript) == "" {
		return TranscriptData{}, ErrTranscriptNotReady
	}
	return TranscriptData{CallID: out.ID, Text: out.Transcript}, nil
}

func (c *VoicebotClient) ListCalls(ctx context.Context, agentID string, limit int) ([]CallInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	var out struct {
		Calls []vendorCall `json:"calls"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParams(map[string]string{
			"agent_id": agentID,
			"limit":    fmt.Sprintf("%d", limit),
		}).
		Get("/calls")
	if err != nil {
		return nil, fmt.Errorf("voicebot list calls: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("voicebot list calls: status %d: %s", resp.StatusCode(), resp.String())
	}
	infos := make([]CallInfo, 0, len(out.Calls))
	for _, vc := range out.Calls {
		infos = append(infos, vc.toInfo())
	}
	return infos, nil
}

func (c *VoicebotClient) PlaceCall(ctx context.Context, req OutboundCall) (CallInfo, error) {
	if req.AgentID == "" || req.ToNumber == "" {
		return CallInfo{}, fmt.Errorf("voicebot place call: agent id and recipient number are required")
	}
	body := map[string]any{
		"agent_id":               req.AgentID,
		"recipient_phone_number": req.ToNumber,
		"from_phone_number":      req.FromNumber,
	}
	userData := map[string]string{}
	if req.Topic != "" {
		userData["topic"] = req.Topic
	}
	if req.Language != "" {
		userData["language"] = req.Language
	}
	if len(userData) > 0 {
		body["user_data"] = userData
	}

	var out vendorCall
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/call")
	if err != nil {
		return CallInfo{}, fmt.Errorf("voicebot place call: %w", err)
	}
	if resp.IsError() {
		return CallInfo{}, fmt.Errorf("voicebot place call: status %d: %s", resp.StatusCode(), resp.String())
	}
	info := out.toInfo()
	if info.ContactPhone == "" {
		info.ContactPhone = req.ToNumber
	}
	if info.AgentID == "" {
		info.AgentID = req.AgentID
	}
	return info, nil
}
