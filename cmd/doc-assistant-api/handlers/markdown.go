package handlers

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/session"
)

// Raw HTML in model output is dropped and unsafe link schemes are removed,
// since goldmark is not configured with html.WithUnsafe.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts assistant markdown to HTML for the web UI.
func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<pre>" + html.EscapeString(src) + "</pre>"
	}
	return buf.String()
}

// eventFrame is the wire form of a stream event. Completed assistant turns
// carry their rendered HTML next to the markdown payload.
type eventFrame struct {
	domain.StreamEvent
	HTML string `json:"html,omitempty"`
}

func newEventFrame(ev domain.StreamEvent) eventFrame {
	frame := eventFrame{StreamEvent: ev}
	switch ev.Type {
	case domain.EventSummaryComplete, domain.EventAnswerComplete:
		if text, ok := ev.Payload.(string); ok {
			frame.HTML = renderMarkdown(text)
		}
	}
	return frame
}

// RenderedTurn is a history turn with its content rendered as HTML.
type RenderedTurn struct {
	session.Turn
	HTML string `json:"html"`
}

// SessionResponse is returned by GET /sessions/{id}. Messages shadows the
// snapshot's plain turns.
type SessionResponse struct {
	session.Snapshot
	Messages []RenderedTurn `json:"messages"`
}

func newSessionResponse(snap session.Snapshot) SessionResponse {
	messages := make([]RenderedTurn, 0, len(snap.Messages))
	for _, turn := range snap.Messages {
		rendered := RenderedTurn{Turn: turn}
		if turn.Role == domain.RoleAssistant {
			rendered.HTML = renderMarkdown(turn.Content)
		} else {
			rendered.HTML = html.EscapeString(turn.Content)
		}
		messages = append(messages, rendered)
	}
	return SessionResponse{Snapshot: snap, Messages: messages}
}
