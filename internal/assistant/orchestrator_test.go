package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/session"
)

type harness struct {
	renderer *fakeRenderer
	vision   *fakeVision
	chat     *fakeChat
	orch     *Orchestrator
	session  *session.Session
}

func newHarness(pages int, vision []visionResult, chat ...chatReply) *harness {
	h := &harness{
		renderer: &fakeRenderer{pages: pagesOf(pages)},
		vision:   &fakeVision{results: vision},
		chat:     &fakeChat{replies: chat},
		session:  session.New(),
	}
	h.orch = New(h.renderer, h.vision, h.chat, Options{}, nil)
	return h
}

func (h *harness) load(mt domain.MediaType) *domain.Document {
	doc := domain.NewDocument("doc", mt, []byte("data"))
	h.orch.LoadDocument(h.session, doc)
	return doc
}

func ok(texts ...string) []visionResult {
	out := make([]visionResult, len(texts))
	for i, t := range texts {
		out[i] = visionResult{text: t}
	}
	return out
}

func assertUntouched(t *testing.T, s *session.Session) {
	t.Helper()
	_, has := s.Analysis()
	assert.False(t, has, "analysis must not be committed")
	assert.Empty(t, s.History(), "history must stay empty")
}

func TestAnalyze_PageLabels(t *testing.T) {
	tests := []struct {
		name  string
		pages int
		texts []string
		want  string
	}{
		{
			name:  "single page has no label",
			pages: 1,
			texts: []string{"A1"},
			want:  "A1",
		},
		{
			name:  "two pages",
			pages: 2,
			texts: []string{"A1", "A2"},
			want:  "Page 1:\nA1\n\nPage 2:\nA2",
		},
		{
			name:  "three pages in order",
			pages: 3,
			texts: []string{"first", "second", "third"},
			want:  "Page 1:\nfirst\n\nPage 2:\nsecond\n\nPage 3:\nthird",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.pages, ok(tt.texts...))
			doc := h.load(domain.MediaTypePDF)

			got, err := h.orch.Analyze(context.Background(), doc, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.pages, h.vision.calls())
		})
	}
}

func TestAnalyze_VisionRequest(t *testing.T) {
	h := newHarness(1, ok("A1"))
	doc := h.load(domain.MediaTypePNG)

	_, err := h.orch.Analyze(context.Background(), doc, nil)
	require.NoError(t, err)

	require.Equal(t, 1, h.vision.calls())
	assert.Equal(t, VisionPrompt, h.vision.prompts[0])
	assert.True(t, strings.HasPrefix(h.vision.urls[0], "data:image/png;base64,"))
}

func TestAnalyze_PageFailureIsOmitted(t *testing.T) {
	h := newHarness(3, []visionResult{{text: "A1"}, {err: errBoom}, {text: "A3"}})
	doc := h.load(domain.MediaTypePDF)
	events := make(chan domain.StreamEvent, 64)

	got, err := h.orch.Analyze(context.Background(), doc, events)
	require.NoError(t, err)
	assert.Equal(t, "Page 1:\nA1\n\nPage 3:\nA3", got)
	assert.Equal(t, 3, h.vision.calls(), "remaining pages still analyzed")

	evs := collect(events)
	assert.Equal(t, 1, countType(evs, domain.EventPageError))
	assert.Equal(t, 2, countType(evs, domain.EventPageComplete))

	for _, ev := range evs {
		if ev.Type == domain.EventAnalysisComplete {
			stats := ev.Payload.(domain.AnalysisStats)
			assert.Equal(t, 3, stats.TotalPages)
			assert.Equal(t, 2, stats.SuccessfulPages)
			assert.Equal(t, []int{2}, stats.FailedPages)
		}
		if ev.Type == domain.EventPageError {
			assert.Equal(t, 2, ev.PageNumber)
		}
	}
}

func TestAnalyze_EmptyPageTextIsOmitted(t *testing.T) {
	h := newHarness(2, ok("A1", "   "))
	doc := h.load(domain.MediaTypePDF)

	got, err := h.orch.Analyze(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "Page 1:\nA1", got)
}

func TestAnalyze_AllPagesFail(t *testing.T) {
	h := newHarness(2, []visionResult{{err: errBoom}, {err: errBoom}})
	doc := h.load(domain.MediaTypePDF)

	_, err := h.orch.Analyze(context.Background(), doc, nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))
}

func TestAnalyze_RenderFailure(t *testing.T) {
	h := newHarness(0, nil)
	h.renderer.err = errors.New("mupdf: cannot open")
	doc := h.load(domain.MediaTypePDF)

	_, err := h.orch.Analyze(context.Background(), doc, nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeRender))
	assert.Equal(t, 0, h.vision.calls())
}

func TestAnalyze_RenderingEventOnlyForPDF(t *testing.T) {
	for _, mt := range []domain.MediaType{domain.MediaTypePDF, domain.MediaTypeJPEG} {
		t.Run(mt.Label(), func(t *testing.T) {
			h := newHarness(1, ok("A1"))
			doc := h.load(mt)
			events := make(chan domain.StreamEvent, 16)

			_, err := h.orch.Analyze(context.Background(), doc, events)
			require.NoError(t, err)

			want := 0
			if mt.IsPDF() {
				want = 1
			}
			assert.Equal(t, want, countType(collect(events), domain.EventRendering))
		})
	}
}

func TestRun_TwoPagePDFThenFollowUp(t *testing.T) {
	h := newHarness(2, ok("A1", "A2"),
		chatReply{deltas: []string{"## Summary", "\n* total **$10**"}},
		chatReply{deltas: []string{"The total ", "is $10."}},
	)
	h.load(domain.MediaTypePDF)

	summary, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)
	assert.Equal(t, "## Summary\n* total **$10**", summary)

	analysis, has := h.session.Analysis()
	require.True(t, has)
	assert.Equal(t, "Page 1:\nA1\n\nPage 2:\nA2", analysis)
	assert.Equal(t, []session.Turn{{Role: domain.RoleAssistant, Content: summary}}, h.session.History())

	summaryReq := h.chat.requests[0]
	require.Len(t, summaryReq, 2)
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleSystem, Content: SummaryPrompt}, summaryReq[0])
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: analysis}, summaryReq[1])

	answer, err := h.orch.AnswerFollowUp(context.Background(), h.session, "What is the total?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The total is $10.", answer)

	followReq := h.chat.requests[1]
	require.Len(t, followReq, 2)
	assert.Equal(t, domain.RoleSystem, followReq[0].Role)
	assert.Equal(t, "Previous analysis: "+analysis+"\n\nProvide a helpful, detailed response to the question.", followReq[0].Content)
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "What is the total?"}, followReq[1])

	assert.Equal(t, []session.Turn{
		{Role: domain.RoleAssistant, Content: summary},
		{Role: domain.RoleUser, Content: "What is the total?"},
		{Role: domain.RoleAssistant, Content: "The total is $10."},
	}, h.session.History())
}

func TestRun_SingleJPEG(t *testing.T) {
	h := newHarness(1, ok("A1"), chatReply{deltas: []string{"S"}})
	h.load(domain.MediaTypeJPEG)

	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	analysis, _ := h.session.Analysis()
	assert.Equal(t, "A1", analysis)
}

func TestRun_EventSequence(t *testing.T) {
	h := newHarness(2, ok("A1", "A2"), chatReply{deltas: []string{"S1", "S2"}})
	h.load(domain.MediaTypePDF)
	events := make(chan domain.StreamEvent, 64)

	_, err := h.orch.Run(context.Background(), h.session, events)
	require.NoError(t, err)

	evs := collect(events)
	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventRendering,
		domain.EventPageProcessing,
		domain.EventPageComplete,
		domain.EventPageProcessing,
		domain.EventPageComplete,
		domain.EventAnalysisComplete,
		domain.EventSummaryStart,
		domain.EventSummaryDelta,
		domain.EventSummaryDelta,
		domain.EventSummaryComplete,
		domain.EventComplete,
	}, eventTypes(evs))

	for _, ev := range evs {
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestRun_RenderFailureLeavesSessionEmpty(t *testing.T) {
	h := newHarness(0, nil)
	h.renderer.err = domain.RenderError("corrupt", nil)
	h.load(domain.MediaTypePDF)
	events := make(chan domain.StreamEvent, 16)

	_, err := h.orch.Run(context.Background(), h.session, events)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeRender))
	assertUntouched(t, h.session)
	assert.Equal(t, 0, h.chat.calls())

	evs := collect(events)
	assert.Equal(t, domain.EventError, evs[len(evs)-1].Type)
}

func TestRun_SummarizationFailure(t *testing.T) {
	tests := []struct {
		name  string
		reply chatReply
	}{
		{name: "stream error after partial output", reply: chatReply{deltas: []string{"## Part"}, err: errBoom}},
		{name: "empty summary", reply: chatReply{deltas: []string{"  ", "\n"}}},
		{name: "no deltas", reply: chatReply{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(1, ok("A1"), tt.reply)
			h.load(domain.MediaTypePNG)

			_, err := h.orch.Run(context.Background(), h.session, nil)
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeSummarization))
			assertUntouched(t, h.session)
		})
	}
}

func TestRun_FailureKeepsPreviousCycle(t *testing.T) {
	h := newHarness(1, []visionResult{{text: "A1"}, {err: errBoom}}, chatReply{deltas: []string{"S"}})
	h.load(domain.MediaTypePNG)

	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	// re-running on the same document fails at extraction
	_, err = h.orch.Run(context.Background(), h.session, nil)
	require.Error(t, err)

	analysis, has := h.session.Analysis()
	require.True(t, has)
	assert.Equal(t, "A1", analysis)
	assert.Len(t, h.session.History(), 1)
}

func TestRun_NoDocument(t *testing.T) {
	h := newHarness(1, ok("A1"))

	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	assert.Equal(t, 0, h.renderer.calls)
}

func TestRun_CancelledDuringSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(1, ok("A1"), chatReply{deltas: []string{"partial"}, hook: cancel})
	h.load(domain.MediaTypePNG)

	_, err := h.orch.Run(ctx, h.session, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assertUntouched(t, h.session)
}

func TestRun_CancelledBeforePages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newHarness(2, ok("A1", "A2"))
	h.load(domain.MediaTypePDF)

	_, err := h.orch.Run(ctx, h.session, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.vision.calls())
	assertUntouched(t, h.session)
}

func TestAnswerFollowUp_RequiresAnalysis(t *testing.T) {
	h := newHarness(1, ok("A1"))
	h.load(domain.MediaTypePNG)

	_, err := h.orch.AnswerFollowUp(context.Background(), h.session, "What is the total?", nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	assert.Equal(t, 0, h.chat.calls(), "no chat request without analysis")
	assert.Empty(t, h.session.History())
}

func TestAnswerFollowUp_EmptyQuestion(t *testing.T) {
	h := newHarness(1, ok("A1"), chatReply{deltas: []string{"S"}})
	h.load(domain.MediaTypePNG)
	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := h.orch.AnswerFollowUp(context.Background(), h.session, q, nil)
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	}
	assert.Equal(t, 1, h.chat.calls())
	assert.Len(t, h.session.History(), 1)
}

func TestAnswerFollowUp_FailureAppendsNothing(t *testing.T) {
	h := newHarness(1, ok("A1"),
		chatReply{deltas: []string{"S"}},
		chatReply{deltas: []string{"half an ans"}, err: errBoom},
	)
	h.load(domain.MediaTypePNG)
	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	events := make(chan domain.StreamEvent, 16)
	_, err = h.orch.AnswerFollowUp(context.Background(), h.session, "q?", events)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeFollowUp))
	assert.Len(t, h.session.History(), 1)

	evs := collect(events)
	assert.Equal(t, domain.EventError, evs[len(evs)-1].Type)
}

func TestAnswerFollowUp_HistoryNotResent(t *testing.T) {
	h := newHarness(1, ok("A1"),
		chatReply{deltas: []string{"S"}},
		chatReply{deltas: []string{"one"}},
		chatReply{deltas: []string{"two"}},
	)
	h.load(domain.MediaTypePNG)
	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	_, err = h.orch.AnswerFollowUp(context.Background(), h.session, "first?", nil)
	require.NoError(t, err)
	_, err = h.orch.AnswerFollowUp(context.Background(), h.session, "second?", nil)
	require.NoError(t, err)

	assert.Len(t, h.chat.requests[2], 2)
	assert.Len(t, h.session.History(), 5)
}

func TestLoadDocument_ResetsState(t *testing.T) {
	h := newHarness(1, ok("A1"), chatReply{deltas: []string{"S"}})
	doc := h.load(domain.MediaTypePNG)
	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	assert.False(t, h.orch.LoadDocument(h.session, doc), "same document is not a new upload")
	assert.True(t, h.session.Grounded())

	assert.True(t, h.orch.LoadDocument(h.session, domain.NewDocument("other", domain.MediaTypePNG, []byte("x"))))
	assertUntouched(t, h.session)
}

func TestClear(t *testing.T) {
	h := newHarness(1, ok("A1"), chatReply{deltas: []string{"S"}})
	h.load(domain.MediaTypePNG)
	_, err := h.orch.Run(context.Background(), h.session, nil)
	require.NoError(t, err)

	h.orch.Clear(h.session)

	assert.Nil(t, h.session.Document())
	assertUntouched(t, h.session)
}
