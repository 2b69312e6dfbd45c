// Package anthropic reviews a support answer by asking Claude directly,
// using the conversation recovered by the qa engine as the prompt.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"reviewbot/internal/domain"
	"reviewbot/internal/qa"
	"reviewbot/internal/review"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

const systemPrompt = `You review replies written by a support engineer to a customer question.
Judge whether the latest answer correctly and completely addresses the latest question,
given the earlier conversation.

Respond with exactly two lines and nothing else:
result: approved|rejected
reason: <one or two sentences>`

type Options struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// RequestOptions are passed to the SDK client after the API key.
	RequestOptions []option.RequestOption
	Logger         *zap.Logger
}

type Reviewer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       *zap.Logger
}

func New(opts Options) *Reviewer {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(opts.APIKey)}, opts.RequestOptions...)
	r := &Reviewer{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		log:       opts.Logger,
	}
	if r.model == "" {
		r.model = defaultModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = defaultMaxTokens
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Review returns Claude's judgment text for the exchange in result.
func (r *Reviewer) Review(ctx context.Context, ticket domain.TicketRecord, result qa.Result) (string, error) {
	message, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildUserPrompt(ticket, result))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type != "text" {
			continue
		}
		text := strings.TrimSpace(block.Text)
		r.log.Debug("anthropic review finished",
			zap.String("ticket_id", ticket.ID),
			zap.Int64("tokens_in", message.Usage.InputTokens),
			zap.Int64("tokens_out", message.Usage.OutputTokens))
		if !review.Usable(text) {
			return "", fmt.Errorf("ticket %s: %w", ticket.ID, review.ErrNoResult)
		}
		return text, nil
	}
	return "", fmt.Errorf("ticket %s: no text content in response: %w", ticket.ID, review.ErrNoResult)
}

// BuildUserPrompt renders the ticket and its recovered conversation.
func BuildUserPrompt(ticket domain.TicketRecord, result qa.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%s", ticket.ID)
	if ticket.Subject != "" {
		fmt.Fprintf(&b, ": %s", ticket.Subject)
	}
	b.WriteString("\n\n")

	if len(result.Entries) > 1 {
		b.WriteString("Conversation so far (oldest first):\n")
		for _, e := range result.Entries {
			fmt.Fprintf(&b, "[%s %s]\n%s\n\n", e.Type, e.CreatedOn, e.Text)
		}
	}
	fmt.Fprintf(&b, "Latest question:\n%s\n\n", result.PreviousQuestion)
	fmt.Fprintf(&b, "Latest answer:\n%s\n", result.LastAnswer)
	return b.String()
}
