package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"reviewbot/internal/domain"
)

// SlackSink posts Block Kit cards to one channel.
type SlackSink struct {
	name      string
	api       *slack.Client
	channelID string
}

func NewSlackSink(name string, api *slack.Client, channelID string) *SlackSink {
	return &SlackSink{name: name, api: api, channelID: channelID}
}

func (s *SlackSink) Name() string { return s.name }

func (s *SlackSink) Notify(ctx context.Context, card domain.Card) error {
	style := styleFor(card.Outcome)
	_, _, err := s.api.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(fmt.Sprintf("%s %s: #%s", style.Emoji, style.Title, card.TicketID), false),
		slack.MsgOptionBlocks(BuildSlackBlocks(card)...),
	)
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", s.channelID, err)
	}
	return nil
}

func BuildSlackBlocks(card domain.Card) []slack.Block {
	style := styleFor(card.Outcome)

	ticket := fmt.Sprintf("Redmine ticket #%s", card.TicketID)
	if card.TicketURL != "" {
		ticket = fmt.Sprintf("<%s|Redmine ticket #%s>", card.TicketURL, card.TicketID)
	}
	details := fmt.Sprintf("%s\n*Subject:* %s", ticket, card.Subject)
	if card.CaseID != "" {
		details += fmt.Sprintf("\n*Case ID:* %s", card.CaseID)
	}

	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("%s %s", style.Emoji, style.Title), false, false),
		),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, details, false, false), nil, nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s*\n%s", reasonHeading(card.Outcome), card.Reason), false, false),
			nil, nil,
		),
	}
}
