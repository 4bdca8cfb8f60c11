// Package chat runs conversation turns: it loads a session's log, asks the
// model for a reply, and persists the user and assistant messages together.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/twin/internal/config"
	"github.com/comigor/twin/internal/history"
	"github.com/comigor/twin/internal/llm"
	"github.com/comigor/twin/internal/metrics"
	"github.com/comigor/twin/internal/prompt"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message must not be empty")

// Request is one inbound chat call. An empty SessionID starts a new session.
type Request struct {
	Message   string
	SessionID string
}

// Response carries the assistant reply and the session it belongs to.
type Response struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Info describes the active wiring for status endpoints.
type Info struct {
	Storage  string
	Model    string
	Provider string
}

// Service is the chat orchestrator. It keeps no per-session state between
// calls; everything lives in the store.
type Service struct {
	store    history.Store
	llm      llm.Client
	model    string
	provider string
	system   string
	window   int
	sampling llm.Sampling
	newID    func() string
	now      func() time.Time
	metrics  *metrics.Metrics
}

// Option customises a Service.
type Option func(*Service)

// WithWindow sets how many stored messages are shown to the model.
func WithWindow(n int) Option { return func(s *Service) { s.window = n } }

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(gen func() string) Option { return func(s *Service) { s.newID = gen } }

// WithMetrics records turn and inference metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithSystemPrompt overrides the system instruction resolved from config.
func WithSystemPrompt(p string) Option { return func(s *Service) { s.system = p } }

// New creates a chat service. The system instruction is resolved from cfg
// (SYSTEM_PROMPT_FILE, then SYSTEM_PROMPT, then the built-in default).
func New(store history.Store, client llm.Client, cfg config.LLMConfig, opts ...Option) (*Service, error) {
	system, err := prompt.LoadSystem(cfg.SystemPrompt, cfg.SystemPromptFile)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:    store,
		llm:      client,
		model:    cfg.ModelID,
		provider: strings.ToLower(cfg.Provider),
		system:   system,
		window:   prompt.DefaultWindow,
		sampling: llm.DefaultSampling(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Info reports the storage backend and model in use.
func (s *Service) Info() Info {
	return Info{Storage: s.store.Name(), Model: s.model, Provider: s.provider}
}

// Chat runs one turn. Nothing is persisted unless the model answers, and a
// failed save is reported even though the model already replied.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}
	if err := history.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	t := &turn{sessionID: sessionID, message: req.Message}
	if err := s.run(ctx, t); err != nil {
		return nil, err
	}
	return &Response{Response: t.reply, SessionID: sessionID}, nil
}

// History returns the full stored log for a session, empty when unknown.
func (s *Service) History(ctx context.Context, sessionID string) ([]history.Message, error) {
	if err := history.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}
