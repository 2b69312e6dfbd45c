package dify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"reviewbot/internal/domain"
	"reviewbot/internal/qa"
)

func TestExtractText_Shapes(t *testing.T) {
	inner := `{"text":"result: approved\nreason: ok"}`
	once, _ := json.Marshal(inner)
	twice, _ := json.Marshal(string(once))

	tests := []struct {
		name string
		body string
	}{
		{"object", `{"data":{"outputs":` + inner + `}}`},
		{"encoded string", `{"data":{"outputs":` + string(once) + `}}`},
		{"double encoded string", `{"data":{"outputs":` + string(twice) + `}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText([]byte(tt.body), DefaultOutputKeys)
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if got != "result: approved\nreason: ok" {
				t.Fatalf("unexpected text %q", got)
			}
		})
	}
}

func TestExtractText_KeyPriority(t *testing.T) {
	body := `{"data":{"outputs":{"text":"","text_1":"","gpt":"from gpt","gemma":"from gemma"}}}`
	got, err := ExtractText([]byte(body), DefaultOutputKeys)
	if err != nil || got != "from gpt" {
		t.Fatalf("expected gpt output, got %q (%v)", got, err)
	}
	got, err = ExtractText([]byte(body), []string{"gemma"})
	if err != nil || got != "from gemma" {
		t.Fatalf("expected configured key, got %q (%v)", got, err)
	}
}

func TestExtractText_NoUsableResult(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"data":{}}`,
		`{"data":{"outputs":"not json"}}`,
		`{"data":{"outputs":{"other":"x"}}}`,
		`{"data":{"outputs":{"text":"null"}}}`,
		`{"data":{"outputs":{"text":"None"}}}`,
		`{"data":{"outputs":{"text":"  12345 "}}}`,
	}
	for _, body := range bodies {
		if _, err := ExtractText([]byte(body), DefaultOutputKeys); !errors.Is(err, ErrNoResult) {
			t.Fatalf("body %s: expected ErrNoResult, got %v", body, err)
		}
	}
}

func TestDecodeByteEscapes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`\xe6\x89\xbf\xe8\xaa\x8d`, "承認"},
		{`result: \xe5\x8d\xb4\xe4\xb8\x8b!`, "result: 却下!"},
		{"no escapes", "no escapes"},
		{`\xff broken`, `\xff broken`},
		{`\xzz literal`, `\xzz literal`},
	}
	for _, tt := range tests {
		if got := DecodeByteEscapes(tt.in); got != tt.want {
			t.Fatalf("DecodeByteEscapes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRun_SendsWorkflowRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer dify-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var req workflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Inputs.TicketID != "101" || req.Inputs.LLM != "GPT" || req.ResponseMode != "blocking" || req.User != "redmine-monitor" {
			t.Fatalf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"data":{"outputs":{"text":"result: approved"}}}`))
	}))
	defer server.Close()

	c := New(Options{URL: server.URL, APIKey: "dify-key", HTTPClient: server.Client()})
	got, err := c.Review(context.Background(), domain.TicketRecord{ID: "101"}, qa.Result{})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got != "result: approved" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestRun_MalformedResponseIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"data":{"outputs":{"text":"7"}}}`))
	}))
	defer server.Close()

	c := New(Options{URL: server.URL, HTTPClient: server.Client(), Attempts: 3})
	_, err := c.Run(context.Background(), "1")
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
}

func TestRun_HTTPErrorReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(Options{URL: server.URL, HTTPClient: server.Client()})
	_, err := c.Run(context.Background(), "1")
	if err == nil || errors.Is(err, ErrNoResult) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
