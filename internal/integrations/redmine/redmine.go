// Package redmine reads recently updated issues and their journals from a
// Redmine server.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"reviewbot/internal/domain"
	"reviewbot/internal/httpx"
	"reviewbot/internal/qa"
)

var ErrNotFound = errors.New("redmine: issue not found")

const (
	defaultAttempts    = 2
	defaultBackoffBase = 4
)

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// Attempts bounds every request, including the first try.
	Attempts int
	Backoff  httpx.Backoff
	Logger   *zap.Logger
}

type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	attempts int
	backoff  httpx.Backoff
	log      *zap.Logger
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		http:     opts.HTTPClient,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		log:      opts.Logger,
	}
	if c.http == nil {
		c.http = httpx.Client()
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.backoff == nil {
		c.backoff = httpx.ExponentialBackoff(defaultBackoffBase)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// IssueURL is the browser link for an issue.
func (c *Client) IssueURL(id string) string {
	return fmt.Sprintf("%s/issues/%s", c.baseURL, url.PathEscape(id))
}

type issueListResponse struct {
	Issues []struct {
		ID        int64  `json:"id"`
		Subject   string `json:"subject"`
		UpdatedOn string `json:"updated_on"`
	} `json:"issues"`
}

// RecentIssues lists the most recently updated issues in any status.
func (c *Client) RecentIssues(ctx context.Context, limit int) ([]domain.IssueSummary, error) {
	q := url.Values{}
	q.Set("status_id", "*")
	q.Set("sort", "updated_on:desc")
	q.Set("limit", strconv.Itoa(limit))
	apiURL := c.baseURL + "/issues.json?" + q.Encode()

	body, err := c.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}

	var resp issueListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing issue list: %w", err)
	}
	out := make([]domain.IssueSummary, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		out = append(out, domain.IssueSummary{
			ID:        strconv.FormatInt(is.ID, 10),
			Subject:   is.Subject,
			UpdatedOn: is.UpdatedOn,
		})
	}
	c.log.Debug("redmine issues listed", zap.Int("count", len(out)))
	return out, nil
}

// Issue fetches one issue with its journals.
func (c *Client) Issue(ctx context.Context, id string) (domain.TicketRecord, error) {
	apiURL := fmt.Sprintf("%s/issues/%s.json?include=journals", c.baseURL, url.PathEscape(id))
	body, err := c.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return domain.TicketRecord{}, fmt.Errorf("fetching issue %s: %w", id, err)
	}
	tickets := qa.DecodeTickets(body)
	if len(tickets) == 0 || tickets[0].ID == "" {
		return domain.TicketRecord{}, fmt.Errorf("parsing issue %s: no issue record in response", id)
	}
	return tickets[0], nil
}

// UpdateStatus moves an issue to statusID, adding notes as a journal when non-empty.
func (c *Client) UpdateStatus(ctx context.Context, id string, statusID int, notes string) error {
	issue := map[string]any{"status_id": statusID}
	if notes != "" {
		issue["notes"] = notes
	}
	payload, err := json.Marshal(map[string]any{"issue": issue})
	if err != nil {
		return fmt.Errorf("encoding status update: %w", err)
	}
	apiURL := fmt.Sprintf("%s/issues/%s.json", c.baseURL, url.PathEscape(id))
	if _, err := c.do(ctx, http.MethodPut, apiURL, payload); err != nil {
		return fmt.Errorf("updating issue %s status: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, apiURL string, payload []byte) ([]byte, error) {
	var out []byte
	err := httpx.Retry(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
		if err != nil {
			return httpx.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("X-Redmine-API-Key", c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("redmine request failed", zap.String("method", method), zap.Error(err))
			return err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return httpx.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.log.Warn("redmine request failed", zap.String("method", method), zap.Int("status", resp.StatusCode))
			return fmt.Errorf("redmine API returned %d: %s", resp.StatusCode, string(body))
		case resp.StatusCode >= 300:
			return httpx.Permanent(fmt.Errorf("redmine API returned %d: %s", resp.StatusCode, string(body)))
		}
		out = body
		return nil
	})
	return out, err
}
