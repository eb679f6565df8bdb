// Package local implements a client for a locally hosted, OpenAI-compatible
// inference service (Ollama by default).
//
// The service is optional. Every operation treats "unreachable" as a normal
// outcome: availability checks return false, listings return an empty slice,
// completions come back as a degraded Reply, and styling suggestions fall
// back to DefaultStyling. Nothing in this package retries.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mundigis/kue/pkg/llm"
)

const (
	// DefaultBaseURL is where Ollama serves its OpenAI-compatible API.
	DefaultBaseURL = "http://localhost:11434/v1"

	// DefaultModel is the model requested when none is configured.
	DefaultModel = "orieg/gemma3-tools:1b"

	// placeholderAPIKey is sent as the bearer credential. Ollama ignores it
	// but OpenAI-compatible servers expect the header to be present.
	placeholderAPIKey = "ollama"

	defaultCheckTimeout      = 5 * time.Second
	defaultCompletionTimeout = 30 * time.Second
)

// Sampling parameters sent with every chat completion.
const (
	temperature = 0.7
	topP        = 0.9
	maxTokens   = 1000
)

var (
	errNoChoices = fmt.Errorf("%w: no choices in response", llm.ErrMalformedResponse)
	errNoContent = fmt.Errorf("%w: choice has no message content", llm.ErrMalformedResponse)
)

// Client talks to the local inference service. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	baseURL           string
	model             string
	apiKey            string
	client            *http.Client
	checkTimeout      time.Duration
	completionTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithCheckTimeout overrides the 5s timeout used by IsAvailable and the
// model-list step of TestConnection.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Client) { c.checkTimeout = d }
}

// WithCompletionTimeout overrides the 30s chat completion timeout.
func WithCompletionTimeout(d time.Duration) Option {
	return func(c *Client) { c.completionTimeout = d }
}

// New creates a client for the service at baseURL using model.
// Empty values fall back to DefaultBaseURL and DefaultModel.
func New(baseURL, model string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		model:             model,
		apiKey:            placeholderAPIKey,
		client:            &http.Client{},
		checkTimeout:      defaultCheckTimeout,
		completionTimeout: defaultCompletionTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Model describes one entry of the service's model list.
type Model struct {
	Name       string         `json:"name" yaml:"name"`
	Model      string         `json:"model,omitempty" yaml:"model,omitempty"`
	ModifiedAt string         `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
	Size       int64          `json:"size,omitempty" yaml:"size,omitempty"`
	Digest     string         `json:"digest,omitempty" yaml:"digest,omitempty"`
	Details    map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

type modelList struct {
	Models []Model `json:"models"`
}

func (l modelList) names() []string {
	names := make([]string, 0, len(l.Models))
	for _, m := range l.Models {
		names = append(names, m.Name)
	}
	return names
}

func (c *Client) fetchModels(ctx context.Context, out *modelList) error {
	return llm.DoJSONRoundTrip(ctx, c.client, http.MethodGet, c.baseURL+"/models", nil, nil, out)
}

// IsAvailable reports whether the model-list endpoint answers 200 within
// the check timeout. Callers check this before issuing task calls.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()
	return llm.DoJSONRoundTrip(ctx, c.client, http.MethodGet, c.baseURL+"/models", nil, nil, nil) == nil
}

// ListModels returns the installed models. Any failure yields an empty
// slice, so "no models" and "service down" look the same here; use
// TestConnection to tell them apart.
func (c *Client) ListModels(ctx context.Context) []Model {
	var list modelList
	if err := c.fetchModels(ctx, &list); err != nil || list.Models == nil {
		return []Model{}
	}
	return list.Models
}

// Reply is the outcome of a chat completion. Err is set when the call
// failed; String renders either case as display text.
type Reply struct {
	Text string
	Err  error
}

// Degraded reports whether the reply carries a failure instead of model
// output.
func (r Reply) Degraded() bool { return r.Err != nil }

// String returns the model output, or a human-readable description of the
// failure.
func (r Reply) String() string {
	if r.Err == nil {
		return r.Text
	}
	var se *llm.StatusError
	switch {
	case errors.As(r.Err, &se):
		return fmt.Sprintf("Error: %d - %s", se.StatusCode, se.Body)
	case errors.Is(r.Err, llm.ErrMalformedResponse):
		return fmt.Sprintf("Error parsing response: %v", r.Err)
	default:
		return fmt.Sprintf("Error connecting to Ollama: %v", r.Err)
	}
}

// Chat issues one non-streaming chat completion.
func (c *Client) Chat(ctx context.Context, system, user string) Reply {
	ctx, cancel := context.WithTimeout(ctx, c.completionTimeout)
	defer cancel()

	var result struct {
		Choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
			"top_p":       topP,
			"max_tokens":  maxTokens,
		},
	}
	err := llm.DoJSONRoundTrip(ctx, c.client, http.MethodPost, c.baseURL+"/chat/completions",
		map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + c.apiKey,
		},
		reqBody, &result)
	if err != nil {
		return Reply{Err: err}
	}
	if len(result.Choices) == 0 {
		return Reply{Err: errNoChoices}
	}
	msg := result.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return Reply{Err: errNoContent}
	}
	return Reply{Text: *msg.Content}
}

// ChatCompletion is Chat rendered as display text. It never fails; a
// failed call comes back as an "Error ..." string.
func (c *Client) ChatCompletion(ctx context.Context, system, user string) string {
	return c.Chat(ctx, system, user).String()
}

// Complete implements llm.Client so the local service can back the chat
// proxy alongside the hosted providers.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	r := c.Chat(ctx, system, user)
	if r.Err != nil {
		return "", fmt.Errorf("local llm: %w", r.Err)
	}
	return r.Text, nil
}
