// Package docassist is the entry point for embedding the document assistant:
// it wires configuration, the renderer, the model client and the
// orchestrator, and exposes the analysis cycle as event streams.
package docassist

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spherical/doc-assistant/internal/assistant"
	"github.com/spherical/doc-assistant/internal/config"
	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/llm"
	"github.com/spherical/doc-assistant/internal/observability"
	"github.com/spherical/doc-assistant/internal/pdf"
	"github.com/spherical/doc-assistant/internal/session"
)

// Re-export types for the public API
type (
	StreamEvent   = domain.StreamEvent
	EventType     = domain.EventType
	Document      = domain.Document
	MediaType     = domain.MediaType
	AnalysisStats = domain.AnalysisStats
	Session       = session.Session
	Turn          = session.Turn
)

// Event type constants
const (
	EventStart            = domain.EventStart
	EventRendering        = domain.EventRendering
	EventPageProcessing   = domain.EventPageProcessing
	EventPageComplete     = domain.EventPageComplete
	EventPageError        = domain.EventPageError
	EventAnalysisComplete = domain.EventAnalysisComplete
	EventSummaryStart     = domain.EventSummaryStart
	EventSummaryDelta     = domain.EventSummaryDelta
	EventSummaryComplete  = domain.EventSummaryComplete
	EventAnswerDelta      = domain.EventAnswerDelta
	EventAnswerComplete   = domain.EventAnswerComplete
	EventError            = domain.EventError
	EventComplete         = domain.EventComplete
)

const eventBuffer = 100

// Assistant is the main entry point for the document assistant library
type Assistant struct {
	cfg       *config.Config
	orch      *assistant.Orchestrator
	validator *pdf.Validator
	logger    *observability.Logger
}

// New loads configuration from configPath (or CONFIG_PATH and the
// environment) and builds an Assistant.
func New(configPath string, logger *observability.Logger) (*Assistant, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, logger)
}

// NewWithConfig builds an Assistant from an explicit configuration.
func NewWithConfig(cfg *config.Config, logger *observability.Logger) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.Nop()
	}

	client := llm.NewClient(llm.Options{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		VisionModel:       cfg.LLM.VisionModel,
		ChatModel:         cfg.LLM.ChatModel,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		VisionTemperature: cfg.Analysis.VisionTemperature,
		VisionMaxTokens:   cfg.Analysis.VisionMaxTokens,
		ChatTemperature:   cfg.Analysis.ChatTemperature,
		ChatMaxTokens:     cfg.Analysis.ChatMaxTokens,
		TopP:              cfg.Analysis.TopP,
	}, logger)

	converter := pdf.NewConverter(cfg.Render.DPI, cfg.Render.MaxPages, logger)

	return newAssistant(cfg, converter, client, client, logger), nil
}

func newAssistant(cfg *config.Config, renderer domain.Renderer, vision domain.VisionClient, chat domain.ChatClient, logger *observability.Logger) *Assistant {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Assistant{
		cfg:       cfg,
		orch:      assistant.New(renderer, vision, chat, assistant.Options{TypingDelay: cfg.Analysis.TypingDelay}, logger),
		validator: pdf.NewValidator(cfg.Render.MaxPages),
		logger:    logger.WithComponent("docassist"),
	}
}

// Config returns the configuration the assistant was built with.
func (a *Assistant) Config() *config.Config {
	return a.cfg
}

// NewSession creates a standalone session, for single-user callers.
func (a *Assistant) NewSession() *Session {
	return session.New()
}

// LoadDocument validates an upload and makes it the session's document.
// declaredType is the client-supplied Content-Type and may be empty. The
// bool reports whether previous analysis and history were discarded.
func (a *Assistant) LoadDocument(s *Session, name, declaredType string, data []byte) (*Document, bool, error) {
	mt, err := a.validator.DetectMediaType(declaredType, data)
	if err != nil {
		return nil, false, err
	}

	doc := domain.NewDocument(name, mt, data)
	reset := a.orch.LoadDocument(s, doc)
	return doc, reset, nil
}

// LoadFile reads path from disk and loads it into the session.
func (a *Assistant) LoadFile(s *Session, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError("Failed to read "+path, err)
	}

	declared := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	doc, _, err := a.LoadDocument(s, filepath.Base(path), declared, data)
	return doc, err
}

// Clear drops the session's document, analysis and history.
func (a *Assistant) Clear(s *Session) {
	a.orch.Clear(s)
}

// Analyze runs the analysis cycle on the session's document.
func (a *Assistant) Analyze(ctx context.Context, s *Session) *Stream {
	return a.start(func(events chan<- StreamEvent) (string, error) {
		return a.orch.Run(ctx, s, events)
	})
}

// Ask answers a follow-up question about the session's document.
func (a *Assistant) Ask(ctx context.Context, s *Session, question string) *Stream {
	return a.start(func(events chan<- StreamEvent) (string, error) {
		return a.orch.AnswerFollowUp(ctx, s, question, events)
	})
}

func (a *Assistant) start(fn func(chan<- StreamEvent) (string, error)) *Stream {
	events := make(chan StreamEvent, eventBuffer)
	st := &Stream{
		Events: events,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(st.done)
		defer close(events)
		// Panics end the operation, not the process.
		defer func() {
			if r := recover(); r != nil {
				st.text = ""
				st.err = fmt.Errorf("internal error: %v", r)
				a.logger.Error().
					Str("panic", fmt.Sprint(r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in operation")
				events <- StreamEvent{Type: EventError, Payload: st.err.Error(), Timestamp: time.Now()}
			}
		}()
		st.text, st.err = fn(events)
	}()

	return st
}

// Stream is one in-flight operation. Events is closed when it finishes.
type Stream struct {
	Events <-chan StreamEvent

	done chan struct{}
	text string
	err  error
}

// Wait blocks until the operation ends and returns its final text: the
// summary for Analyze, the answer for Ask. Events must be drained first.
func (st *Stream) Wait() (string, error) {
	<-st.done
	return st.text, st.err
}
