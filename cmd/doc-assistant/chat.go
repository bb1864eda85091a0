package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/doc-assistant/pkg/docassist"
)

const (
	cmdAnalysis = "/analysis"
	cmdClear    = "/clear"
	cmdQuit     = "/quit"
)

// chatSession drives one document through analysis and the question loop.
type chatSession struct {
	ui        *UI
	assistant *docassist.Assistant
	session   *docassist.Session
}

func newChatSession(ui *UI, assistant *docassist.Assistant) *chatSession {
	return &chatSession{ui: ui, assistant: assistant, session: assistant.NewSession()}
}

// Load reads path into the session.
func (c *chatSession) Load(path string) error {
	doc, err := c.assistant.LoadFile(c.session, path)
	if err != nil {
		return err
	}
	c.ui.Info("Loaded %s (%s, %s)", doc.Name, doc.MediaType, formatBytes(len(doc.Data)))
	return nil
}

// Analyze runs the analysis cycle and prints the streamed summary.
func (c *chatSession) Analyze(ctx context.Context) error {
	st := c.assistant.Analyze(ctx, c.session)
	r := &analysisRenderer{ui: c.ui}
	for ev := range st.Events {
		r.handle(ev)
	}
	r.stop()

	if _, err := st.Wait(); err != nil {
		return err
	}
	return nil
}

// Ask answers one follow-up question, streaming the answer.
func (c *chatSession) Ask(ctx context.Context, question string) error {
	st := c.assistant.Ask(ctx, c.session, question)
	streamed := false
	for ev := range st.Events {
		if ev.Type == docassist.EventAnswerDelta {
			c.ui.Text(payloadText(ev))
			streamed = true
		}
	}
	if streamed {
		c.ui.Newline()
	}

	_, err := st.Wait()
	return err
}

// Loop reads questions from in until /quit, /clear or end of input.
func (c *chatSession) Loop(ctx context.Context, in io.Reader) error {
	c.ui.Info("Ask a follow-up question, or use %s, %s or %s", cmdAnalysis, cmdClear, cmdQuit)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		c.ui.Prompt()
		if !scanner.Scan() {
			c.ui.Newline()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdClear:
			c.assistant.Clear(c.session)
			c.ui.Success("Chat cleared")
			return nil
		case cmdAnalysis:
			if analysis, ok := c.session.Analysis(); ok {
				c.ui.Section("Analysis")
				c.ui.Text(analysis)
				c.ui.Newline()
			} else {
				c.ui.Warning("No analysis available")
			}
			continue
		}

		if err := c.Ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.ui.Error("%v", err)
		}
	}
}

// analysisRenderer turns analysis events into a progress bar, a spinner and
// streamed summary text.
type analysisRenderer struct {
	ui        *UI
	bar       *progressbar.ProgressBar
	spin      *spinner.Spinner
	streaming bool
}

func (r *analysisRenderer) handle(ev docassist.StreamEvent) {
	switch ev.Type {
	case docassist.EventRendering:
		r.startSpinner(payloadText(ev))
	case docassist.EventPageProcessing:
		r.stopSpinner()
		if r.bar == nil {
			r.bar = r.ui.NewProgressBar(ev.TotalPages, "Analyzing pages")
		}
	case docassist.EventPageComplete:
		if r.bar != nil {
			_ = r.bar.Set(ev.PageNumber)
		}
	case docassist.EventPageError:
		if r.bar != nil {
			_ = r.bar.Set(ev.PageNumber)
		}
		r.ui.Warning("%s", payloadText(ev))
	case docassist.EventAnalysisComplete:
		r.finishBar()
		if stats, ok := ev.Payload.(docassist.AnalysisStats); ok {
			r.ui.Success("Analyzed %d of %d pages in %s", stats.SuccessfulPages, stats.TotalPages, FormatDuration(stats.Duration))
		}
	case docassist.EventSummaryStart:
		r.startSpinner("Generating summary...")
	case docassist.EventSummaryDelta:
		if !r.streaming {
			r.stopSpinner()
			r.ui.Section("Summary")
			r.streaming = true
		}
		r.ui.Text(payloadText(ev))
	case docassist.EventSummaryComplete:
		r.stopSpinner()
		if r.streaming {
			r.ui.Newline()
		}
	case docassist.EventError:
		// The failure itself is reported by the caller from Wait.
		r.stop()
	case docassist.EventComplete:
		r.ui.Success("%s", payloadText(ev))
	}
}

func (r *analysisRenderer) startSpinner(message string) {
	r.stopSpinner()
	r.spin = r.ui.NewSpinner(message)
	r.spin.Start()
}

func (r *analysisRenderer) stopSpinner() {
	if r.spin != nil {
		r.spin.Stop()
		r.spin = nil
	}
}

func (r *analysisRenderer) finishBar() {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

func (r *analysisRenderer) stop() {
	r.stopSpinner()
	r.finishBar()
}

func payloadText(ev docassist.StreamEvent) string {
	if s, ok := ev.Payload.(string); ok {
		return s
	}
	return fmt.Sprint(ev.Payload)
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
