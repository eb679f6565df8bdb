// Package gemini implements llm.Client using the Google Gemini
// generateContent API.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mundigis/kue/pkg/llm"
)

// DefaultBaseURL is the public Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client implements llm.Client using the Gemini generateContent API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New creates a client for the Gemini API.
// Model defaults to "gemini-1.5-flash" if empty.
func New(apiKey, model string) *Client {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithBaseURL points the client at another Gemini-compatible endpoint.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Model returns the Gemini model the client requests.
func (c *Client) Model() string { return c.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var result struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
	reqBody := map[string]any{
		"systemInstruction": content{Parts: []part{{Text: system}}},
		"contents": []content{
			{Role: "user", Parts: []part{{Text: user}}},
		},
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	err := llm.DoJSONRoundTrip(ctx, c.client, "POST", url,
		map[string]string{
			"Content-Type":   "application/json",
			"x-goog-api-key": c.apiKey,
		},
		reqBody, &result)
	if err != nil {
		return "", fmt.Errorf("gemini API: %w", err)
	}

	for _, cand := range result.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
