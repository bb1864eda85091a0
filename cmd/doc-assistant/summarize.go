package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/doc-assistant/pkg/docassist"
)

// newSummarizeCmd creates the summarize subcommand.
func newSummarizeCmd() *cobra.Command {
	var (
		outputPath   string
		withAnalysis bool
	)

	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Analyze a document and write its summary to a markdown file",
		Long: `Summarize runs the same analysis as chat without the question prompt and
writes the summary to a markdown file (default: <input-name>-summary.md).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ui := NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), noColor || !IsTerminal())

			assistant, err := docassist.NewWithConfig(cfg, logger)
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = defaultOutputPath(args[0])
			}
			return runSummarize(ctx, ui, assistant, args[0], outputPath, withAnalysis)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&withAnalysis, "with-analysis", false, "append the extracted page text to the output")
	return cmd
}

func runSummarize(ctx context.Context, ui *UI, assistant *docassist.Assistant, path, outputPath string, withAnalysis bool) error {
	chat := newChatSession(ui, assistant)
	if err := chat.Load(path); err != nil {
		return err
	}
	if err := chat.Analyze(ctx); err != nil {
		return err
	}

	// A successful cycle leaves the summary as the only assistant turn.
	history := chat.session.History()
	var out strings.Builder
	out.WriteString(history[0].Content)
	out.WriteString("\n")

	if withAnalysis {
		analysis, _ := chat.session.Analysis()
		out.WriteString("\n---\n\n## Extracted content\n\n")
		out.WriteString(analysis)
		out.WriteString("\n")
	}

	if err := os.WriteFile(outputPath, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	ui.Success("Summary written to %s", outputPath)
	return nil
}

func defaultOutputPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return base + "-summary.md"
}
