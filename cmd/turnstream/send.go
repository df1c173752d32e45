// ABOUTME: send command: runs a single turn and prints it as it streams
// ABOUTME: Optionally writes the final transcript as an HTML document

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/transcript"
)

type sendFlags struct {
	session      string
	mock         bool
	scenario     string
	deepThinking bool
	searchFirst  bool
	htmlPath     string
	width        int
	noTranscript bool
}

func newSendCmd(root *rootOptions) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send one message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			a, err := newApp(root.cfg, root.logger, appOptions{mock: f.mock, scenario: f.scenario})
			if err != nil {
				return err
			}
			defer a.Close()

			return runSend(ctx, a, cmd.OutOrStdout(), strings.Join(args, " "), f)
		},
	}

	cmd.Flags().StringVar(&f.session, "session", "", "session ID (default from config)")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "use the scripted mock source")
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "mock scenario to play")
	cmd.Flags().BoolVar(&f.deepThinking, "deep-thinking", false, "ask the backend for deep thinking mode")
	cmd.Flags().BoolVar(&f.searchFirst, "search-before-planning", false, "ask the backend to search before planning")
	cmd.Flags().StringVar(&f.htmlPath, "html", "", "write the final transcript as HTML to this file")
	cmd.Flags().IntVar(&f.width, "width", 0, "transcript wrap width (default terminal width)")
	cmd.Flags().BoolVar(&f.noTranscript, "no-transcript", false, "skip the rendered transcript after the turn")

	return cmd
}

func runSend(ctx context.Context, a *app, out io.Writer, text string, f *sendFlags) error {
	printer := newTurnPrinter(out, a.store.Get())
	unsubscribe := a.store.Subscribe(printer.OnSnapshot)
	defer unsubscribe()

	result := a.service.RunTurn(ctx, messaging.NewUserMessage(text), a.params(f.session, f.deepThinking, f.searchFirst))
	printer.Finish()

	switch result.Outcome {
	case conversation.Cancelled:
		color.New(color.FgYellow).Fprintln(out, "turn cancelled")
	case conversation.Failed:
		return fmt.Errorf("turn failed: %w", result.Err)
	}

	snap := a.store.Get()
	if !f.noTranscript {
		width := f.width
		if width <= 0 {
			width = terminalWidth()
		}
		rendered, err := transcript.Terminal(snap, width)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}

	if f.htmlPath != "" {
		doc, err := transcript.HTML(snap, "turnstream: "+text)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.htmlPath, doc, 0644); err != nil {
			return fmt.Errorf("writing transcript: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "transcript written to %s\n", f.htmlPath)
	}

	return nil
}
