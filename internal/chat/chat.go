// Package chat proxies free-form chat messages to a hosted or local LLM
// backend and records each exchange in the session store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/mundigis/kue/internal/session"
	"github.com/mundigis/kue/pkg/llm"
)

// Backend choices accepted by Send.
const (
	ChoiceOpenAI = "openai"
	ChoiceGoogle = "google"
	ChoiceLocal  = "local"
)

// DefaultChoice is used when a request names no backend.
const DefaultChoice = ChoiceOpenAI

// ErrUnknownChoice is returned for a model choice with no backend slot.
var ErrUnknownChoice = errors.New("unknown model choice")

const systemPrompt = "You are Zoal AI, a helpful assistant with knowledge about Sudanese and African culture. Respond in a friendly and informative way."

// Backend is one selectable LLM provider. Client may be nil when the
// provider is not configured; Send then answers with a setup hint.
type Backend struct {
	Label  string // display name, e.g. "OpenAI"
	KeyEnv string // environment variable that enables the backend
	Client llm.Client
}

// Service handles chat turns.
type Service struct {
	store    *session.Store
	backends map[string]Backend
}

// NewService creates a chat service over the given backends, keyed by
// model choice.
func NewService(store *session.Store, backends map[string]Backend) *Service {
	return &Service{store: store, backends: backends}
}

// Result is the outcome of one chat turn.
type Result struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// Send delivers message to the backend named by choice within the given
// session, creating the session when sessionID is empty or unknown. Provider
// failures do not fail the call: they come back as an apology in Response.
func (s *Service) Send(ctx context.Context, sessionID, message, choice string) (*Result, error) {
	if choice == "" {
		choice = DefaultChoice
	}
	backend, ok := s.backends[choice]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}

	var sess *session.Session
	var err error
	if sessionID == "" {
		sess = &session.Session{ID: uuid.NewString(), ModelChoice: choice}
		err = s.store.CreateSession(sess)
	} else {
		sess, err = s.store.GetOrCreateSession(sessionID, choice)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	response := s.respond(ctx, backend, message)

	if err := s.store.AddMessage(&session.Message{
		SessionID: sess.ID,
		Role:      session.RoleUser,
		Content:   message,
	}); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}
	if err := s.store.AddMessage(&session.Message{
		SessionID: sess.ID,
		Role:      session.RoleAssistant,
		Content:   response,
	}); err != nil {
		return nil, fmt.Errorf("saving assistant message: %w", err)
	}
	if err := s.store.TouchSession(sess.ID); err != nil {
		log.Printf("chat: touching session %s: %v", sess.ID, err)
	}

	return &Result{SessionID: sess.ID, Response: response}, nil
}

func (s *Service) respond(ctx context.Context, b Backend, message string) string {
	if b.Client == nil {
		return fmt.Sprintf("Sorry, %s API key is not configured. Please set the %s environment variable.", b.Label, b.KeyEnv)
	}
	text, err := b.Client.Complete(ctx, systemPrompt, message)
	if err != nil {
		log.Printf("chat: %s backend error: %v", b.Label, err)
		return fmt.Sprintf("Sorry, I'm having trouble connecting to %s. Please check your API key. Error: %v", b.Label, err)
	}
	return text
}

// History returns the messages of a session in order. An empty or unknown
// session ID yields an empty history.
func (s *Service) History(sessionID string) ([]*session.Message, error) {
	if sessionID == "" {
		return []*session.Message{}, nil
	}
	if _, err := s.store.GetSession(sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return []*session.Message{}, nil
		}
		return nil, err
	}
	msgs, err := s.store.GetMessages(sessionID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*session.Message{}
	}
	return msgs, nil
}
