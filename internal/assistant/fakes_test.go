package assistant

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/spherical/doc-assistant/internal/domain"
)

var errBoom = errors.New("boom")

type fakeRenderer struct {
	pages []domain.PageImage
	err   error
	calls int
}

func (f *fakeRenderer) Render(ctx context.Context, doc *domain.Document) ([]domain.PageImage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func pagesOf(n int) []domain.PageImage {
	pages := make([]domain.PageImage, n)
	for i := range pages {
		pages[i] = domain.PageImage{PageNumber: i + 1, Image: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	}
	return pages
}

type visionResult struct {
	text string
	err  error
}

// fakeVision answers calls in order from results.
type fakeVision struct {
	mu      sync.Mutex
	results []visionResult
	prompts []string
	urls    []string
}

func (f *fakeVision) AnalyzeImage(ctx context.Context, prompt, imageDataURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.urls = append(f.urls, imageDataURL)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if i >= len(f.results) {
		return "", errBoom
	}
	return f.results[i].text, f.results[i].err
}

func (f *fakeVision) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type chatReply struct {
	deltas []string
	err    error
	// hook runs after deltas are sent and before returning
	hook func()
}

// fakeChat answers streaming calls in order from replies.
type fakeChat struct {
	mu       sync.Mutex
	replies  []chatReply
	requests [][]domain.ChatMessage
}

func (f *fakeChat) StreamChat(ctx context.Context, messages []domain.ChatMessage, deltaCh chan<- string) error {
	f.mu.Lock()
	i := len(f.requests)
	f.requests = append(f.requests, messages)
	f.mu.Unlock()

	if i >= len(f.replies) {
		return errBoom
	}
	reply := f.replies[i]

	for _, d := range reply.deltas {
		select {
		case deltaCh <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if reply.hook != nil {
		reply.hook()
	}
	return reply.err
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func collect(events chan domain.StreamEvent) []domain.StreamEvent {
	close(events)
	var out []domain.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []domain.StreamEvent) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func countType(events []domain.StreamEvent, t domain.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
