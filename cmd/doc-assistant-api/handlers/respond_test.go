package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/pdf"
	"github.com/spherical/doc-assistant/internal/session"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing session", session.ErrNotFound, http.StatusNotFound},
		{"unsupported media", domain.ValidationError("bad type", pdf.ErrUnsupportedMediaType), http.StatusUnsupportedMediaType},
		{"validation", domain.ValidationError("too many pages", nil), http.StatusBadRequest},
		{"render", domain.RenderError("corrupt", nil), http.StatusUnprocessableEntity},
		{"extraction", domain.ExtractionError("nothing extracted", nil), http.StatusUnprocessableEntity},
		{"summarization", domain.SummarizationError("upstream", nil), http.StatusBadGateway},
		{"follow up", fmt.Errorf("wrapped: %w", domain.FollowUpError("upstream", nil)), http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestSSEWriter_Send(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, ok := newSSEWriter(rec)
	require.True(t, ok)

	require.NoError(t, sse.Send(domain.StreamEvent{
		Type:    domain.EventSummaryDelta,
		Payload: "<b>Total</b>\n& more",
	}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "event: summary_delta\ndata: {")
	assert.Contains(t, body, `"payload":"<b>Total</b>\n& more"`)
	assert.Regexp(t, `\}\n\n$`, body)
}
