package local

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"syscall"

	"github.com/mundigis/kue/pkg/llm"
)

// Level is the outcome tier of a connection test.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ConnectionStatus is the result of TestConnection.
type ConnectionStatus struct {
	Status          Level    `json:"status" yaml:"status"`
	Message         string   `json:"message" yaml:"message"`
	Available       bool     `json:"available" yaml:"available"`
	Model           string   `json:"model,omitempty" yaml:"model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
}

const (
	sanitySystemPrompt = "You are a helpful assistant."
	sanityUserPrompt   = "Say 'Hello, Ollama is working!'"
)

// TestConnection diagnoses the service in three steps, stopping at the
// first failure: the model list must be reachable, the configured model
// must be installed, and a canned completion must mention "hello" or
// "working". The phrase check depends on model wording and can report a
// warning for a healthy service.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	var list modelList
	err := c.fetchModels(checkCtx, &list)
	cancel()

	var se *llm.StatusError
	switch {
	case errors.As(err, &se):
		return ConnectionStatus{
			Status:  LevelError,
			Message: fmt.Sprintf("Ollama server returned status %d", se.StatusCode),
		}
	case err != nil && isConnectError(err):
		return ConnectionStatus{
			Status:  LevelError,
			Message: fmt.Sprintf("Cannot connect to Ollama server. Make sure it's running on %s", c.host()),
		}
	case err != nil:
		return ConnectionStatus{
			Status:  LevelError,
			Message: fmt.Sprintf("Unexpected error: %v", err),
		}
	}

	names := list.names()
	if !slices.Contains(names, c.model) {
		return ConnectionStatus{
			Status:          LevelWarning,
			Message:         fmt.Sprintf("Model %s not found. Available models: %s", c.model, strings.Join(names, ", ")),
			AvailableModels: names,
		}
	}

	reply := strings.ToLower(c.ChatCompletion(ctx, sanitySystemPrompt, sanityUserPrompt))
	if strings.Contains(reply, "hello") || strings.Contains(reply, "working") {
		return ConnectionStatus{
			Status:          LevelSuccess,
			Message:         "Ollama is working correctly",
			Available:       true,
			Model:           c.model,
			AvailableModels: names,
		}
	}
	return ConnectionStatus{
		Status:          LevelWarning,
		Message:         "Ollama responded but may not be working as expected",
		Available:       true,
		Model:           c.model,
		AvailableModels: names,
	}
}

// isConnectError reports whether err happened while establishing the
// connection (refused, DNS, dial failure) rather than during the exchange.
func isConnectError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return c.baseURL
	}
	return u.Host
}
