package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/session"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		contains    []string
		notContains []string
	}{
		{
			name:     "heading and bold list",
			input:    "## Invoice\n* **Total**: $10",
			contains: []string{"<h2>Invoice</h2>", "<li><strong>Total</strong>: $10</li>"},
		},
		{
			name:     "table",
			input:    "| Item | Cost |\n| --- | --- |\n| Coffee | $4 |",
			contains: []string{"<table>", "<td>Coffee</td>"},
		},
		{
			name:        "raw html dropped",
			input:       "Hello <script>alert(1)</script>",
			contains:    []string{"Hello"},
			notContains: []string{"<script>"},
		},
		{
			name:        "javascript link removed",
			input:       "[click](javascript:alert(1))",
			notContains: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderMarkdown(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestNewEventFrame(t *testing.T) {
	tests := []struct {
		name     string
		ev       domain.StreamEvent
		wantHTML bool
	}{
		{"summary complete", domain.StreamEvent{Type: domain.EventSummaryComplete, Payload: "## Summary"}, true},
		{"answer complete", domain.StreamEvent{Type: domain.EventAnswerComplete, Payload: "**yes**"}, true},
		{"delta", domain.StreamEvent{Type: domain.EventSummaryDelta, Payload: "## Sum"}, false},
		{"stats payload", domain.StreamEvent{Type: domain.EventAnalysisComplete, Payload: domain.AnalysisStats{TotalPages: 1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(newEventFrame(tt.ev))
			require.NoError(t, err)

			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(b, &decoded))
			assert.Equal(t, string(tt.ev.Type), decoded["type"])

			_, hasHTML := decoded["html"]
			assert.Equal(t, tt.wantHTML, hasHTML)
		})
	}
}

func TestNewSessionResponse(t *testing.T) {
	snap := session.Snapshot{
		HasAnalysis: true,
		Messages: []session.Turn{
			{Role: domain.RoleAssistant, Content: "## Receipt"},
			{Role: domain.RoleUser, Content: "<b>why</b>?"},
		},
	}

	resp := newSessionResponse(snap)
	require.Len(t, resp.Messages, 2)
	assert.Contains(t, resp.Messages[0].HTML, "<h2>Receipt</h2>")
	assert.Equal(t, "&lt;b&gt;why&lt;/b&gt;?", resp.Messages[1].HTML)

	b, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded session.Snapshot
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.True(t, decoded.HasAnalysis)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "## Receipt", decoded.Messages[0].Content)
}
