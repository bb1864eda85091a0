// Package main provides the interactive document assistant CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/doc-assistant/internal/config"
	"github.com/spherical/doc-assistant/internal/observability"
	"github.com/spherical/doc-assistant/pkg/docassist"
)

const version = "0.1.0"

var (
	// Global flags
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "doc-assistant",
		Short: "Analyze a PDF or image and chat about its contents",
		Long: `doc-assistant renders each page of a document, extracts its content with a
vision model, streams a markdown summary and then answers follow-up questions
grounded in the extracted text.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      "console",
				Output:      os.Stderr,
				ServiceName: "doc-assistant",
			})
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(newChatCmd())
	root.AddCommand(newSummarizeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

// newChatCmd creates the chat subcommand.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <file>",
		Short: "Analyze a document and ask follow-up questions",
		Long: `Chat loads a PDF, PNG or JPEG, analyzes every page, prints a streamed
summary and then opens a question prompt.

Prompt commands:
  /analysis  print the extracted page text
  /clear     discard the document and exit
  /quit      exit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ui := NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), noColor || !IsTerminal())

			assistant, err := docassist.NewWithConfig(cfg, logger)
			if err != nil {
				return err
			}

			return runChat(ctx, ui, assistant, args[0])
		},
	}
}

func runChat(ctx context.Context, ui *UI, assistant *docassist.Assistant, path string) error {
	chat := newChatSession(ui, assistant)
	if err := chat.Load(path); err != nil {
		return err
	}

	if err := chat.Analyze(ctx); err != nil {
		return err
	}

	return chat.Loop(ctx, os.Stdin)
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "doc-assistant v%s\n", version)
		},
	}
}
