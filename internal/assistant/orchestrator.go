// Package assistant sequences document analysis, summarization and grounded
// follow-up chat on top of a Session.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/llm"
	"github.com/spherical/doc-assistant/internal/observability"
	"github.com/spherical/doc-assistant/internal/session"
)

// Options tunes presentation behaviour of an Orchestrator.
type Options struct {
	// TypingDelay is slept after each forwarded text delta. 0 disables it.
	TypingDelay time.Duration
}

// Orchestrator drives the analysis cycle and chat turns for sessions.
//
// Operations emit progress on the events channel passed in. The channel may
// be nil; it is never closed by the Orchestrator. Sends block until the
// receiver takes the event or ctx is done.
//
// Callers serialize actions on one session (see session.Session.TryAcquire).
type Orchestrator struct {
	renderer domain.Renderer
	vision   domain.VisionClient
	chat     domain.ChatClient
	opts     Options
	logger   *observability.Logger
}

// New creates an orchestrator.
func New(renderer domain.Renderer, vision domain.VisionClient, chat domain.ChatClient, opts Options, logger *observability.Logger) *Orchestrator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Orchestrator{
		renderer: renderer,
		vision:   vision,
		chat:     chat,
		opts:     opts,
		logger:   logger.WithComponent("assistant"),
	}
}

// LoadDocument makes doc the session's current document. It reports whether
// the previous analysis and history were discarded.
func (o *Orchestrator) LoadDocument(s *session.Session, doc *domain.Document) bool {
	reset := s.LoadDocument(doc)
	if reset && doc != nil {
		o.logger.WithSession(s.ID.String()).Info().
			Str("document", doc.Name).
			Str("media_type", string(doc.MediaType)).
			Int("size", doc.Size()).
			Msg("Document loaded")
	}
	return reset
}

// Clear drops the session's document, analysis and history.
func (o *Orchestrator) Clear(s *session.Session) {
	s.Clear()
	o.logger.WithSession(s.ID.String()).Info().Msg("Session cleared")
}

// Run analyzes and summarizes the session's current document. On success the
// analysis is committed and the summary becomes the only history entry. On
// failure the session is left as it was.
func (o *Orchestrator) Run(ctx context.Context, s *session.Session, events chan<- domain.StreamEvent) (string, error) {
	log := o.logger.WithOperation("run").WithSession(s.ID.String())
	startTime := time.Now()

	doc := s.Document()
	if doc == nil {
		err := domain.ValidationError("no document loaded", nil)
		o.emitError(ctx, events, err)
		return "", err
	}

	o.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventStart,
		Payload: fmt.Sprintf("Starting analysis of %s", doc.Name),
	})

	analysis, err := o.Analyze(ctx, doc, events)
	if err != nil {
		log.Error().Err(err).Str("document", doc.Name).Msg("Analysis failed")
		o.emitError(ctx, events, err)
		return "", err
	}

	summary, err := o.Summarize(ctx, analysis, events)
	if err != nil {
		log.Error().Err(err).Str("document", doc.Name).Msg("Summarization failed")
		o.emitError(ctx, events, err)
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !s.CommitAnalysis(doc, analysis, summary) {
		err := domain.ValidationError("document changed during analysis", nil)
		o.emitError(ctx, events, err)
		return "", err
	}

	log.Info().
		Str("document", doc.Name).
		Int("analysis_chars", len(analysis)).
		Int("summary_chars", len(summary)).
		Dur("duration", time.Since(startTime)).
		Msg("Analysis cycle complete")

	o.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventComplete,
		Payload: fmt.Sprintf("Analysis of %s complete in %v", doc.Name, time.Since(startTime).Round(time.Millisecond)),
	})

	return summary, nil
}

// Analyze renders doc into pages and extracts each page with the vision
// model. Pages that fail are reported and omitted; the call fails only when
// rendering fails or no page produced text.
func (o *Orchestrator) Analyze(ctx context.Context, doc *domain.Document, events chan<- domain.StreamEvent) (string, error) {
	if doc == nil {
		return "", domain.ValidationError("no document loaded", nil)
	}

	log := o.logger.WithOperation("analyze")
	startTime := time.Now()

	if doc.MediaType.IsPDF() {
		o.emit(ctx, events, domain.StreamEvent{
			Type:    domain.EventRendering,
			Payload: fmt.Sprintf("Rendering %s", doc.Name),
		})
	}

	pages, err := o.renderer.Render(ctx, doc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if domain.IsType(err, domain.ErrorTypeValidation) || domain.IsType(err, domain.ErrorTypeRender) {
			return "", err
		}
		return "", domain.RenderError(fmt.Sprintf("Failed to render %s", doc.Name), err)
	}
	if len(pages) == 0 {
		return "", domain.RenderError(fmt.Sprintf("%s produced no pages", doc.Name), nil)
	}

	log.Info().Str("document", doc.Name).Int("pages", len(pages)).Msg("Analyzing pages")

	stats := domain.AnalysisStats{TotalPages: len(pages)}
	segments := make([]string, 0, len(pages))

	for _, page := range pages {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		o.emit(ctx, events, domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			PageNumber: page.PageNumber,
			TotalPages: len(pages),
			Payload:    fmt.Sprintf("Analyzing page %d of %d", page.PageNumber, len(pages)),
		})

		text, err := o.analyzePage(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}

			log.Error().Err(err).Int("page", page.PageNumber).Msg("Page analysis failed")
			stats.FailedPages = append(stats.FailedPages, page.PageNumber)
			o.emit(ctx, events, domain.StreamEvent{
				Type:       domain.EventPageError,
				PageNumber: page.PageNumber,
				TotalPages: len(pages),
				Payload:    err.Error(),
			})
			continue
		}

		if len(pages) > 1 {
			text = pageLabel(page.PageNumber, text)
		}
		segments = append(segments, text)
		stats.SuccessfulPages++

		o.emit(ctx, events, domain.StreamEvent{
			Type:       domain.EventPageComplete,
			PageNumber: page.PageNumber,
			TotalPages: len(pages),
			Payload:    fmt.Sprintf("Completed page %d of %d", page.PageNumber, len(pages)),
		})
	}

	stats.Duration = time.Since(startTime)

	log.Info().
		Int("successful", stats.SuccessfulPages).
		Int("failed", len(stats.FailedPages)).
		Dur("duration", stats.Duration).
		Msg("Page analysis complete")

	if len(segments) == 0 {
		return "", domain.ExtractionError(fmt.Sprintf("No information could be extracted from %s", doc.Name), nil)
	}

	o.emit(ctx, events, domain.StreamEvent{
		Type:       domain.EventAnalysisComplete,
		TotalPages: len(pages),
		Payload:    stats,
	})

	return strings.Join(segments, "\n\n"), nil
}

// analyzePage sends one page image to the vision model
func (o *Orchestrator) analyzePage(ctx context.Context, page domain.PageImage) (string, error) {
	dataURL, err := llm.EncodeDataURL(page.Image)
	if err != nil {
		return "", domain.PageAnalysisError(fmt.Sprintf("Failed to encode page %d", page.PageNumber), err)
	}

	text, err := o.vision.AnalyzeImage(ctx, VisionPrompt, dataURL)
	if err != nil {
		return "", domain.PageAnalysisError(fmt.Sprintf("Failed to analyze page %d", page.PageNumber), err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.PageAnalysisError(fmt.Sprintf("Page %d returned no text", page.PageNumber), nil)
	}

	return text, nil
}

// Summarize streams a markdown summary of analysis. Partial output is
// discarded on failure.
func (o *Orchestrator) Summarize(ctx context.Context, analysis string, events chan<- domain.StreamEvent) (string, error) {
	if strings.TrimSpace(analysis) == "" {
		return "", domain.ValidationError("nothing to summarize", nil)
	}

	o.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventSummaryStart,
		Payload: "Generating summary",
	})

	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: SummaryPrompt},
		{Role: domain.RoleUser, Content: analysis},
	}

	summary, err := o.streamChat(ctx, messages, events, domain.EventSummaryDelta)
	if err != nil {
		return "", domain.SummarizationError("Failed to generate summary", err)
	}
	if strings.TrimSpace(summary) == "" {
		return "", domain.SummarizationError("Model returned an empty summary", nil)
	}

	o.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventSummaryComplete,
		Payload: summary,
	})

	return summary, nil
}

// AnswerFollowUp answers question grounded on the session's analysis and
// appends the exchange to the history.
func (o *Orchestrator) AnswerFollowUp(ctx context.Context, s *session.Session, question string, events chan<- domain.StreamEvent) (string, error) {
	log := o.logger.WithOperation("follow_up").WithSession(s.ID.String())

	question = strings.TrimSpace(question)
	if question == "" {
		err := domain.ValidationError("question cannot be empty", nil)
		o.emitError(ctx, events, err)
		return "", err
	}

	analysis, ok := s.Analysis()
	if !ok || !s.Grounded() {
		err := domain.ValidationError("no analysis available, analyze a document first", nil)
		o.emitError(ctx, events, err)
		return "", err
	}

	o.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventStart,
		Payload: "Answering question",
	})

	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: FollowUpPrompt(analysis)},
		{Role: domain.RoleUser, Content: question},
	}

	answer, err := o.streamChat(ctx, messages, events, domain.EventAnswerDelta)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("model returned an empty answer")
	}
	if err != nil {
		ferr := domain.FollowUpError("Failed to answer question", err)
		log.Error().Err(err).Msg("Follow-up failed")
		o.emitError(ctx, events, ferr)
		return "", ferr
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.AppendExchange(question, answer)

	log.Info().Int("question_chars", len(question)).Int("answer_chars", len(answer)).Msg("Follow-up answered")

	o.emit(ctx, events, domain.StreamEvent{Type: domain.EventAnswerComplete, Payload: answer})
	o.emit(ctx, events, domain.StreamEvent{Type: domain.EventComplete, Payload: "Answer complete"})

	return answer, nil
}
