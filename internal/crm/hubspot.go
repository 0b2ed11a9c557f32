// Package crm pushes call outcomes to the CRM and looks up contact state
// used by scheduling decisions.
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"agentsdr/internal/config"
)

// ErrContactNotFound is returned when no CRM contact matches a phone number.
var ErrContactNotFound = errors.New("crm: contact not found")

// Contact is the slice of a CRM contact this service cares about.
type Contact struct {
	ID          string
	Phone       string
	FirstName   string
	LastName    string
	Summary     string
	CheckupDate time.Time
}

// Client is the CRM surface the pipeline and scheduler depend on.
type Client interface {
	FindContactByPhone(ctx context.Context, phone string) (Contact, error)
	CreateContact(ctx context.Context, phone, name string) (Contact, error)
	AppendContactSummary(ctx context.Context, contactID, summary string, at time.Time) error
	ContactCheckupDate(ctx context.Context, contactID string) (time.Time, error)
}

// HubSpotClient implements Client against the HubSpot CRM v3 API.
type HubSpotClient struct {
	http            *resty.Client
	summaryProperty string
	checkupProperty string
}

func NewHubSpotClient(cfg config.HubSpotConfig) *HubSpotClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})

	return &HubSpotClient{
		http:            client,
		summaryProperty: cfg.SummaryProperty,
		checkupProperty: cfg.CheckupProperty,
	}
}

type hubspotObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type hubspotSearch struct {
	Total   int             `json:"total"`
	Results []hubspotObject `json:"results"`
}

func (c *HubSpotClient) contact(obj hubspotObject) Contact {
	ct := Contact{
		ID:        obj.ID,
		Phone:     obj.Properties["phone"],
		FirstName: obj.Properties["firstname"],
		LastName:  obj.Properties["lastname"],
		Summary:   obj.Properties[c.summaryProperty],
	}
	if raw := obj.Properties[c.checkupProperty]; raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			ct.CheckupDate = t
		}
	}
	return ct
}

// FindContactByPhone searches CRM contacts by phone number, trying the
// E.164 form first and the bare national digits second.
func (c *HubSpotClient) FindContactByPhone(ctx context.Context, phone string) (Contact, error) {
	for _, candidate := range phoneVariants(phone) {
		body := map[string]any{
			"filterGroups": []map[string]any{{
				"filters": []map[string]any{{
					"propertyName": "phone",
					"operator":     "CONTAINS_TOKEN",
					"value":        candidate,
				}},
			}},
			"properties": []string{"phone", "firstname", "lastname", c.summaryProperty, c.checkupProperty},
			"limit":      1,
		}
		var out hubspotSearch
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post("/crm/v3/objects/contacts/search")
		if err != nil {
			return Contact{}, fmt.Errorf("hubspot search: %w", err)
		}
		if resp.IsError() {
			return Contact{}, fmt.Errorf("hubspot search: status %d: %s", resp.StatusCode(), resp.String())
		}
		if len(out.Results) > 0 {
			return c.contact(out.Results[0]), nil
		}
	}
	return Contact{}, ErrContactNotFound
}

// CreateContact creates a contact carrying the phone number and an optional
// display name split into first/last.
func (c *HubSpotClient) CreateContact(ctx context.Context, phone, name string) (Contact, error) {
	props := map[string]string{"phone": phone}
	if name = strings.TrimSpace(name); name != "" {
		first, last, _ := strings.Cut(name, " ")
		props["firstname"] = first
		if last != "" {
			props["lastname"] = last
		}
	}
	var out hubspotObject
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"properties": props}).
		SetResult(&out).
		Post("/crm/v3/objects/contacts")
	if err != nil {
		return Contact{}, fmt.Errorf("hubspot create contact: %w", err)
	}
	if resp.IsError() {
		return Contact{}, fmt.Errorf("hubspot create contact: status %d: %s", resp.StatusCode(), resp.String())
	}
	return c.contact(out), nil
}

// AppendContactSummary prepends the dated summary to the contact's summary
// property and advances the last-checkup date.
func (c *HubSpotClient) AppendContactSummary(ctx context.Context, contactID, summary string, at time.Time) error {
	existing, err := c.contactProperty(ctx, contactID, c.summaryProperty)
	if err != nil {
		return err
	}
	entry := fmt.Sprintf("[%s] %s", at.UTC().Format("2006-01-02 15:04"), strings.TrimSpace(summary))
	if existing != "" {
		entry = entry + "\n" + existing
	}

	props := map[string]string{
		c.summaryProperty: entry,
		c.checkupProperty: at.UTC().Format("2006-01-02"),
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"properties": props}).
		SetPathParam("id", contactID).
		Patch("/crm/v3/objects/contacts/{id}")
	if err != nil {
		return fmt.Errorf("hubspot update contact: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrContactNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("hubspot update contact: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// ContactCheckupDate returns the contact's last checkup date, zero when the
// property is unset.
func (c *HubSpotClient) ContactCheckupDate(ctx context.Context, contactID string) (time.Time, error) {
	raw, err := c.contactProperty(ctx, contactID, c.checkupProperty)
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("hubspot checkup date %q: %w", raw, err)
	}
	return t, nil
}

func (c *HubSpotClient) contactProperty(ctx context.Context, contactID, property string) (string, error) {
	var out hubspotObject
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("id", contactID).
		SetQueryParam("properties", property).
		Get("/crm/v3/objects/contacts/{id}")
	if err != nil {
		return "", fmt.Errorf("hubspot get contact: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", ErrContactNotFound
	}
	if resp.IsError() {
		return "", fmt.Errorf("hubspot get contact: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Properties[property], nil
}
