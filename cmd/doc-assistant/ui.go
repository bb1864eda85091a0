package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI provides user-friendly terminal output.
type UI struct {
	out     io.Writer
	errOut  io.Writer
	noColor bool
}

// NewUI creates a UI writing results to out and progress to errOut.
func NewUI(out, errOut io.Writer, noColor bool) *UI {
	if noColor {
		color.NoColor = true
	}
	return &UI{out: out, errOut: errOut, noColor: noColor}
}

func (ui *UI) colored(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if ui.noColor {
		c.DisableColor()
	}
	return c
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.colored(color.FgGreen).Fprintf(ui.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message to the error stream.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.colored(color.FgRed).Fprintf(ui.errOut, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.colored(color.FgYellow).Fprintf(ui.out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.colored(color.FgCyan).Fprintf(ui.out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	fmt.Fprintln(ui.out)
	ui.colored(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", title)
	fmt.Fprintln(ui.out)
}

// Prompt prints the question prompt without a trailing newline.
func (ui *UI) Prompt() {
	ui.colored(color.FgBlue, color.Bold).Fprint(ui.out, "> ")
}

// Text writes streamed model output as is.
func (ui *UI) Text(s string) {
	fmt.Fprint(ui.out, s)
}

// Newline prints a newline.
func (ui *UI) Newline() {
	fmt.Fprintln(ui.out)
}

// NewProgressBar creates a page progress bar on the error stream.
func (ui *UI) NewProgressBar(total int, description string) *progressbar.ProgressBar {
	errOut := ui.errOut
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionEnableColorCodes(!ui.noColor),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// NewSpinner creates a stopped spinner with the given message. The spinner
// only animates when the error stream is a terminal.
func (ui *UI) NewSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(ui.errOut))
	s.Suffix = " " + message
	if !ui.noColor {
		_ = s.Color("cyan")
	}
	return s
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
