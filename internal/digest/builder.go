package digest

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"agentsdr/internal/calls"
)

// SummarySource provides the stored call summaries a digest is built from.
type SummarySource interface {
	SummariesSince(ctx context.Context, orgID string, since time.Time, limit int) ([]calls.Summary, error)
	SummariesByRecency(ctx context.Context, orgID string, n int, oldestFirst bool) ([]calls.Summary, error)
}

// Content is a rendered digest ready for delivery.
type Content struct {
	Subject string
	Text    string
	HTML    string
	Count   int
}

// Build selects summaries per the schedule's criteria and renders them.
// A digest with no matching summaries is still rendered; delivery policy
// is the caller's decision.
func Build(ctx context.Context, src SummarySource, s EmailSchedule, now time.Time) (Content, error) {
	summaries, window, err := selectSummaries(ctx, src, s, now)
	if err != nil {
		return Content{}, err
	}
	return render(s, summaries, window, now), nil
}

func selectSummaries(ctx context.Context, src SummarySource, s EmailSchedule, now time.Time) ([]calls.Summary, string, error) {
	switch s.Criteria {
	case CriteriaLast24Hours:
		out, err := src.SummariesSince(ctx, s.OrgID, now.Add(-24*time.Hour), 0)
		return out, "calls from the last 24 hours", err
	case CriteriaLast7Days:
		out, err := src.SummariesSince(ctx, s.OrgID, now.Add(-7*24*time.Hour), 0)
		return out, "calls from the last 7 days", err
	case CriteriaCustomHours:
		h := s.CriteriaHours
		if h <= 0 {
			h = 24
		}
		out, err := src.SummariesSince(ctx, s.OrgID, now.Add(-time.Duration(h)*time.Hour), 0)
		return out, fmt.Sprintf("calls from the last %d hours", h), err
	case CriteriaLatestN:
		out, err := src.SummariesByRecency(ctx, s.OrgID, s.CriteriaN, false)
		return out, fmt.Sprintf("latest %d calls", s.CriteriaN), err
	case CriteriaOldestN:
		out, err := src.SummariesByRecency(ctx, s.OrgID, s.CriteriaN, true)
		return out, fmt.Sprintf("oldest %d calls", s.CriteriaN), err
	}
	return nil, "", fmt.Errorf("%w: unknown criteria %q", ErrInvalidArgument, s.Criteria)
}

func render(s EmailSchedule, summaries []calls.Summary, window string, now time.Time) Content {
	subject := fmt.Sprintf("%s: %d call summaries (%s)", s.Name, len(summaries), now.UTC().Format("Jan 2, 2006"))

	var text strings.Builder
	fmt.Fprintf(&text, "Call summary digest for %s\n", window)
	fmt.Fprintf(&text, "Generated %s\n\n", now.UTC().Format(time.RFC1123))
	if len(summaries) == 0 {
		text.WriteString("No call summaries matched this digest.\n")
	}
	for i, sum := range summaries {
		fmt.Fprintf(&text, "%d. [%s] %s\n", i+1, sum.CreatedAt.UTC().Format("2006-01-02 15:04"), sum.Text)
	}

	var htmlBody strings.Builder
	htmlBody.WriteString("<html><body>")
	fmt.Fprintf(&htmlBody, "<h2>Call summary digest</h2><p>%s, generated %s</p>",
		html.EscapeString(window), now.UTC().Format(time.RFC1123))
	if len(summaries) == 0 {
		htmlBody.WriteString("<p>No call summaries matched this digest.</p>")
	} else {
		htmlBody.WriteString("<ol>")
		for _, sum := range summaries {
			fmt.Fprintf(&htmlBody, "<li><strong>%s</strong> %s</li>",
				sum.CreatedAt.UTC().Format("2006-01-02 15:04"), html.EscapeString(sum.Text))
		}
		htmlBody.WriteString("</ol>")
	}
	htmlBody.WriteString("</body></html>")

	return Content{
		Subject: subject,
		Text:    text.String(),
		HTML:    htmlBody.String(),
		Count:   len(summaries),
	}
}
