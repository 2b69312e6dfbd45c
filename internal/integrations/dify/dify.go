// Package dify runs a blocking Dify workflow for a ticket and returns the
// judgment text it produced.
package dify

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"reviewbot/internal/domain"
	"reviewbot/internal/httpx"
	"reviewbot/internal/qa"
	"reviewbot/internal/review"
)

// ErrNoResult means the workflow answered but produced no usable text.
var ErrNoResult = review.ErrNoResult

const (
	defaultTimeout = 360 * time.Second
	defaultLLM     = "GPT"
	defaultUser    = "redmine-monitor"
)

var DefaultOutputKeys = []string{"text", "text_1", "gpt", "gemma"}

type Options struct {
	URL        string
	APIKey     string
	LLM        string
	User       string
	OutputKeys []string
	Attempts   int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	url        string
	apiKey     string
	llm        string
	user       string
	outputKeys []string
	attempts   int
	http       *http.Client
	log        *zap.Logger
}

func New(opts Options) *Client {
	c := &Client{
		url:        opts.URL,
		apiKey:     opts.APIKey,
		llm:        opts.LLM,
		user:       opts.User,
		outputKeys: opts.OutputKeys,
		attempts:   opts.Attempts,
		http:       opts.HTTPClient,
		log:        opts.Logger,
	}
	if c.llm == "" {
		c.llm = defaultLLM
	}
	if c.user == "" {
		c.user = defaultUser
	}
	if len(c.outputKeys) == 0 {
		c.outputKeys = DefaultOutputKeys
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

type workflowRequest struct {
	Inputs       workflowInputs `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

type workflowInputs struct {
	TicketID string `json:"ticketid"`
	LLM      string `json:"LLM"`
}

// Review asks the workflow to judge the ticket. The workflow fetches the
// ticket itself, so only the id is sent.
func (c *Client) Review(ctx context.Context, ticket domain.TicketRecord, _ qa.Result) (string, error) {
	return c.Run(ctx, ticket.ID)
}

// Run executes the workflow for ticketID and returns its decoded text output.
func (c *Client) Run(ctx context.Context, ticketID string) (string, error) {
	payload, err := json.Marshal(workflowRequest{
		Inputs:       workflowInputs{TicketID: ticketID, LLM: c.llm},
		ResponseMode: "blocking",
		User:         c.user,
	})
	if err != nil {
		return "", fmt.Errorf("encoding workflow request: %w", err)
	}

	var text string
	err = httpx.Retry(ctx, c.attempts, httpx.ExponentialBackoff(2), func(ctx context.Context) error {
		body, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		t, err := ExtractText(body, c.outputKeys)
		if err != nil {
			return httpx.Permanent(err)
		}
		text = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("running workflow for ticket %s: %w", ticketID, err)
	}
	c.log.Debug("dify workflow finished", zap.String("ticket_id", ticketID), zap.Int("chars", utf8.RuneCountInString(text)))
	return text, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, httpx.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("dify request failed", zap.Error(err))
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("dify API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// ExtractText pulls the judgment text out of a workflow response. The
// outputs object may arrive as an object, a JSON string, or a JSON string
// holding another JSON string.
func ExtractText(body []byte, keys []string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: response is not JSON: %s", ErrNoResult, truncate(string(body), 200))
	}
	outputs := unwrapOutputs(gjson.GetBytes(body, "data.outputs"))
	if !outputs.IsObject() {
		return "", fmt.Errorf("%w: outputs missing", ErrNoResult)
	}

	var text string
	for _, key := range keys {
		if v := outputs.Get(gjson.Escape(key)); v.Exists() && v.String() != "" {
			text = v.String()
			break
		}
	}
	text = strings.TrimSpace(DecodeByteEscapes(text))
	if !review.Usable(text) {
		return "", fmt.Errorf("%w: %q", ErrNoResult, truncate(text, 50))
	}
	return text, nil
}

func unwrapOutputs(r gjson.Result) gjson.Result {
	for depth := 0; depth < 2 && r.Type == gjson.String; depth++ {
		s := r.String()
		if !gjson.Valid(s) {
			return gjson.Result{}
		}
		r = gjson.Parse(s)
	}
	return r
}

// DecodeByteEscapes turns leaked \xNN sequences back into the UTF-8 text
// they encode. Text that does not decode to valid UTF-8 is returned as is.
func DecodeByteEscapes(text string) string {
	if !strings.Contains(text, `\x`) {
		return text
	}
	var buf []byte
	for i := 0; i < len(text); {
		if i+3 < len(text) && text[i] == '\\' && text[i+1] == 'x' {
			if b, err := hex.DecodeString(text[i+2 : i+4]); err == nil {
				buf = append(buf, b[0])
				i += 4
				continue
			}
		}
		buf = append(buf, text[i])
		i++
	}
	if !utf8.Valid(buf) {
		return text
	}
	return string(buf)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
