// Package server provides the Kue HTTP API server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mundigis/kue/internal/chat"
	"github.com/mundigis/kue/internal/config"
	"github.com/mundigis/kue/internal/session"
	"github.com/mundigis/kue/pkg/llm"
	"github.com/mundigis/kue/pkg/llm/gemini"
	"github.com/mundigis/kue/pkg/llm/local"
	"github.com/mundigis/kue/pkg/llm/openai"
)

const (
	unavailableMessage   = "Local LLM (Ollama) is not available. Please make sure Ollama is running."
	defaultLayerQuestion = "Tell me about this layer"
)

// Server is the Kue HTTP API server.
type Server struct {
	config *config.Config
	store  *session.Store
	llm    *local.Client
	chat   *chat.Service
	router chi.Router
}

// New creates a new Server with all dependencies.
func New(cfg *config.Config) (*Server, error) {
	store, err := session.NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	lc := local.New(cfg.LocalLLMURL, cfg.LocalLLMModel)
	log.Printf("Local LLM: %s (model %s)", lc.BaseURL(), lc.Model())

	return newServer(cfg, store, lc, chat.NewService(store, Backends(cfg, lc))), nil
}

func newServer(cfg *config.Config, store *session.Store, lc *local.Client, cs *chat.Service) *Server {
	s := &Server{
		config: cfg,
		store:  store,
		llm:    lc,
		chat:   cs,
	}
	s.router = s.buildRouter()
	return s
}

// Backends returns the chat backend table for cfg. Hosted providers without
// an API key get a nil client so chat answers with a setup hint.
func Backends(cfg *config.Config, lc *local.Client) map[string]chat.Backend {
	var openaiClient, geminiClient llm.Client
	if cfg.OpenAIEnabled() {
		openaiClient = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		log.Println("Chat backend enabled: OpenAI")
	}
	if cfg.GoogleEnabled() {
		geminiClient = gemini.New(cfg.GoogleAPIKey, cfg.GeminiModel)
		log.Println("Chat backend enabled: Google Gemini")
	}
	return map[string]chat.Backend{
		chat.ChoiceOpenAI: {Label: "OpenAI", KeyEnv: "OPENAI_API_KEY", Client: openaiClient},
		chat.ChoiceGoogle: {Label: "Google Gemini", KeyEnv: "GOOGLE_API_KEY", Client: geminiClient},
		chat.ChoiceLocal:  {Label: "Local LLM", Client: lc},
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.ServerAddr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Kue server listening on %s", s.config.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return s.store.Close()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Route("/local-llm", func(r chi.Router) {
			r.Get("/status", s.handleLLMStatus)
			r.Get("/models", s.handleLLMModels)
			r.Get("/health", s.handleLLMHealth)
			r.Post("/test-connection", s.handleTestConnection)

			r.Group(func(r chi.Router) {
				r.Use(s.requireLLM)
				r.Post("/analyze-layer", s.handleAnalyzeLayer)
				r.Post("/analyze-project", s.handleAnalyzeProject)
				r.Post("/generate-description", s.handleGenerateDescription)
				r.Post("/suggest-styling", s.handleSuggestStyling)
				r.Post("/chat", s.handleLLMChat)
			})
		})

		r.Post("/chat", s.handleChat)
		r.Post("/chat/history", s.handleChatHistory)
	})

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type llmStatusResponse struct {
	Available bool                   `json:"available"`
	Status    local.ConnectionStatus `json:"status"`
	Model     string                 `json:"model"`
	BaseURL   string                 `json:"base_url"`
}

type llmHealthResponse struct {
	Service      string `json:"service"`
	Status       string `json:"status"`
	Available    bool   `json:"available"`
	ModelCount   int    `json:"model_count"`
	CurrentModel string `json:"current_model"`
}

type analyzeLayerRequest struct {
	LayerID   string           `json:"layer_id"`
	Question  string           `json:"question"`
	LayerInfo local.Descriptor `json:"layer_info"`
}

type analyzeProjectRequest struct {
	Question    string           `json:"question"`
	ProjectInfo local.Descriptor `json:"project_info"`
}

type describeRequest struct {
	ProjectID   string           `json:"project_id"`
	ProjectInfo local.Descriptor `json:"project_info"`
}

type stylingRequest struct {
	LayerID   string           `json:"layer_id"`
	LayerInfo local.Descriptor `json:"layer_info"`
}

type llmChatRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

// replyMeta is shared by every narrative endpoint.
type replyMeta struct {
	Model     string `json:"model"`
	Available bool   `json:"available"`
	Degraded  bool   `json:"degraded"`
}

// The narrative text is always present, even when the model returned an
// empty answer.
type layerAnalysisResponse struct {
	LayerID  string `json:"layer_id"`
	Question string `json:"question"`
	Analysis string `json:"analysis"`
	replyMeta
}

type projectAnalysisResponse struct {
	Question string `json:"question"`
	Analysis string `json:"analysis"`
	replyMeta
}

type descriptionResponse struct {
	ProjectID   string `json:"project_id"`
	Description string `json:"description"`
	replyMeta
}

type llmChatResponse struct {
	Response string `json:"response"`
	replyMeta
}

type stylingResponse struct {
	LayerID string        `json:"layer_id"`
	Styling local.Styling `json:"styling"`
	Model   string        `json:"model"`
}

type chatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id"`
	ModelChoice string `json:"model_choice"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
}

type historyRequest struct {
	SessionID string `json:"session_id"`
}

type historyResponse struct {
	History []*session.Message `json:"history"`
	Success bool               `json:"success"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Available *bool  `json:"available,omitempty"`
}

// --- Middleware ---

// requireLLM answers 503 when the local inference service is unreachable.
func (s *Server) requireLLM(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.llm.IsAvailable(r.Context()) {
			available := false
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:     unavailableMessage,
				Available: &available,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleLLMStatus(w http.ResponseWriter, r *http.Request) {
	status := s.llm.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, llmStatusResponse{
		Available: s.llm.IsAvailable(r.Context()),
		Status:    status,
		Model:     s.llm.Model(),
		BaseURL:   s.llm.BaseURL(),
	})
}

func (s *Server) handleLLMModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]local.Model{
		"models": s.llm.ListModels(r.Context()),
	})
}

func (s *Server) handleLLMHealth(w http.ResponseWriter, r *http.Request) {
	resp := llmHealthResponse{
		Service:      "local-llm",
		Status:       "unavailable",
		CurrentModel: s.llm.Model(),
	}
	if s.llm.IsAvailable(r.Context()) {
		resp.Status = "healthy"
		resp.Available = true
		resp.ModelCount = len(s.llm.ListModels(r.Context()))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.llm.TestConnection(r.Context()))
}

func (s *Server) handleAnalyzeLayer(w http.ResponseWriter, r *http.Request) {
	var req analyzeLayerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = defaultLayerQuestion
	}

	reply := s.llm.AnalyzeLayer(r.Context(), req.LayerInfo, question)
	logDegraded("analyze-layer", reply)
	writeJSON(w, http.StatusOK, layerAnalysisResponse{
		LayerID:   req.LayerID,
		Question:  question,
		Analysis:  reply.String(),
		replyMeta: s.meta(reply),
	})
}

func (s *Server) handleAnalyzeProject(w http.ResponseWriter, r *http.Request) {
	var req analyzeProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	reply := s.llm.AnalyzeProject(r.Context(), req.ProjectInfo, req.Question)
	logDegraded("analyze-project", reply)
	writeJSON(w, http.StatusOK, projectAnalysisResponse{
		Question:  req.Question,
		Analysis:  reply.String(),
		replyMeta: s.meta(reply),
	})
}

func (s *Server) handleGenerateDescription(w http.ResponseWriter, r *http.Request) {
	var req describeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reply := s.llm.GenerateProjectDescription(r.Context(), req.ProjectInfo)
	logDegraded("generate-description", reply)
	writeJSON(w, http.StatusOK, descriptionResponse{
		ProjectID:   req.ProjectID,
		Description: reply.String(),
		replyMeta:   s.meta(reply),
	})
}

func (s *Server) handleSuggestStyling(w http.ResponseWriter, r *http.Request) {
	var req stylingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, stylingResponse{
		LayerID: req.LayerID,
		Styling: s.llm.SuggestLayerStyling(r.Context(), req.LayerInfo),
		Model:   s.llm.Model(),
	})
}

func (s *Server) handleLLMChat(w http.ResponseWriter, r *http.Request) {
	var req llmChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserPrompt == "" {
		writeError(w, http.StatusBadRequest, "user_prompt is required")
		return
	}

	reply := s.llm.Chat(r.Context(), req.SystemPrompt, req.UserPrompt)
	logDegraded("chat", reply)
	writeJSON(w, http.StatusOK, llmChatResponse{
		Response:  reply.String(),
		replyMeta: s.meta(reply),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := s.chat.Send(r.Context(), req.SessionID, req.Message, req.ModelChoice)
	if errors.Is(err, chat.ErrUnknownChoice) {
		writeError(w, http.StatusBadRequest, "model_choice must be 'openai', 'google' or 'local'")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process chat message")
		log.Printf("Error processing chat message: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:  res.Response,
		SessionID: res.SessionID,
		Success:   true,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msgs, err := s.chat.History(req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chat history")
		log.Printf("Error loading chat history: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{History: msgs, Success: true})
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// meta reports a reply that reached the handler. Availability is checked
// before the narrative routes run, so it is always true here.
func (s *Server) meta(reply local.Reply) replyMeta {
	return replyMeta{Model: s.llm.Model(), Available: true, Degraded: reply.Degraded()}
}

func logDegraded(op string, reply local.Reply) {
	if reply.Degraded() {
		log.Printf("local llm %s degraded: %v", op, reply.Err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
