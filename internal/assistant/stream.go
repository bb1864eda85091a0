package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/spherical/doc-assistant/internal/domain"
)

// streamChat runs one streaming completion, forwarding each delta as an
// event of deltaType, and returns the accumulated text.
func (o *Orchestrator) streamChat(ctx context.Context, messages []domain.ChatMessage, events chan<- domain.StreamEvent, deltaType domain.EventType) (string, error) {
	deltaCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		errCh <- o.chat.StreamChat(ctx, messages, deltaCh)
		close(deltaCh)
	}()

	var text strings.Builder
	for delta := range deltaCh {
		text.WriteString(delta)
		o.emit(ctx, events, domain.StreamEvent{
			Type:    deltaType,
			Payload: delta,
		})
		o.pace(ctx)
	}

	if err := <-errCh; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return text.String(), nil
}

// pace sleeps for the typing delay unless ctx ends first
func (o *Orchestrator) pace(ctx context.Context) {
	if o.opts.TypingDelay <= 0 {
		return
	}
	timer := time.NewTimer(o.opts.TypingDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// emit delivers an event, giving up when ctx is done
func (o *Orchestrator) emit(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) {
	if events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// emitError emits an error event
func (o *Orchestrator) emitError(ctx context.Context, events chan<- domain.StreamEvent, err error) {
	o.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventError,
		Payload: err.Error(),
	})
}
