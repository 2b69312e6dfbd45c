package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"reviewbot/internal/domain"
	"reviewbot/internal/httpx"
)

const teamsAttempts = 3

// TeamsSink posts Adaptive Cards to a Teams incoming webhook.
type TeamsSink struct {
	name       string
	webhookURL string
	client     *http.Client
	backoff    httpx.Backoff
}

func NewTeamsSink(name, webhookURL string, client *http.Client) *TeamsSink {
	if client == nil {
		client = httpx.Client()
	}
	return &TeamsSink{
		name:       name,
		webhookURL: webhookURL,
		client:     client,
		backoff:    httpx.ExponentialBackoff(2),
	}
}

func (s *TeamsSink) Name() string { return s.name }

func (s *TeamsSink) Notify(ctx context.Context, card domain.Card) error {
	payload, err := json.Marshal(BuildAdaptiveCard(card))
	if err != nil {
		return fmt.Errorf("encoding card: %w", err)
	}
	return httpx.Retry(ctx, teamsAttempts, s.backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return httpx.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("posting card: %w", err)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("teams webhook returned %d: %s", resp.StatusCode, string(body))
		}
		return nil
	})
}

type element = map[string]any

// BuildAdaptiveCard renders card as a Teams message with one Adaptive Card attachment.
func BuildAdaptiveCard(card domain.Card) map[string]any {
	style := styleFor(card.Outcome)

	ticketLine := fmt.Sprintf("Redmine ticket #%s", card.TicketID)
	if card.TicketURL != "" {
		ticketLine = fmt.Sprintf("[Redmine ticket #%s](%s)", card.TicketID, card.TicketURL)
	}
	items := []element{
		{"type": "TextBlock", "text": fmt.Sprintf("%s **%s**", style.Emoji, style.Title), "size": "Large", "weight": "Bolder", "color": style.Color},
		{"type": "TextBlock", "text": ticketLine, "wrap": true, "spacing": "Small"},
		{"type": "TextBlock", "text": "Subject: " + card.Subject, "wrap": true, "spacing": "Small"},
	}
	if card.CaseID != "" {
		items = append(items, element{"type": "TextBlock", "text": "Case ID: " + card.CaseID, "wrap": true, "spacing": "Small"})
	}
	if card.Outcome.Escalates() {
		items = append(items, element{
			"type":  "Container",
			"style": "emphasis",
			"bleed": true,
			"items": []element{
				{"type": "TextBlock", "text": reasonHeading(card.Outcome), "weight": "Bolder", "color": style.Color},
				{"type": "TextBlock", "text": card.Reason, "wrap": true, "spacing": "Small"},
			},
		})
	} else {
		items = append(items, element{"type": "TextBlock", "text": "Reason: " + card.Reason, "wrap": true, "spacing": "Small"})
	}

	return map[string]any{
		"type": "message",
		"attachments": []element{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": element{
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type":    "AdaptiveCard",
				"version": "1.4",
				"msteams": element{"width": "Full"},
				"body": []element{{
					"type":  "Container",
					"bleed": true,
					"items": items,
				}},
			},
		}},
	}
}
