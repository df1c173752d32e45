// ABOUTME: replay command: lists recorded turns or re-runs one through the processor
// ABOUTME: Replays read from the ledger and are not recorded again

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/turnstream/internal/ledger"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/transcript"
)

func newReplayCmd(root *rootOptions) *cobra.Command {
	var (
		session string
		limit   int
		width   int
	)

	cmd := &cobra.Command{
		Use:   "replay [turn-id]",
		Short: "Re-run a recorded turn, or list recorded turns",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			if root.cfg.Ledger.Path == "" {
				return errNoLedger
			}
			l, err := ledger.Open(root.cfg.Ledger.Path, root.logger)
			if err != nil {
				return fmt.Errorf("opening ledger: %w", err)
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return listTurns(ctx, l, out, session, limit)
			}
			return replayTurn(ctx, root, l, out, args[0], width)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "only list turns of this session")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of turns to list")
	cmd.Flags().IntVar(&width, "width", 0, "transcript wrap width (default terminal width)")
	return cmd
}

func listTurns(ctx context.Context, l *ledger.Ledger, out io.Writer, session string, limit int) error {
	turns, err := l.ListTurns(ctx, session, limit)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(out, "no recorded turns")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, t := range turns {
		outcome := t.Outcome
		if outcome == "" {
			outcome = "running"
		}
		fmt.Fprintf(out, "%s  %-9s  %s  ", t.ID, outcome, t.StartedAt.Local().Format(time.DateTime))
		gray.Fprintf(out, "[%s] ", t.SessionID)
		fmt.Fprintln(out, t.UserMessage)
	}
	return nil
}

func replayTurn(ctx context.Context, root *rootOptions, l *ledger.Ledger, out io.Writer, turnID string, width int) error {
	turn, err := l.GetTurn(ctx, turnID)
	if err != nil {
		return fmt.Errorf("turn %s: %w", turnID, err)
	}

	a, err := newApp(root.cfg, root.logger, appOptions{source: l.ReplaySource(turnID), noLedger: true})
	if err != nil {
		return err
	}
	defer a.Close()

	printer := newTurnPrinter(out, a.store.Get())
	unsubscribe := a.store.Subscribe(printer.OnSnapshot)
	defer unsubscribe()

	_, err = a.service.SendMessage(ctx, messaging.NewUserMessage(turn.UserMessage), a.params(turn.SessionID, false, false))
	printer.Finish()
	if err != nil {
		return fmt.Errorf("replaying turn: %w", err)
	}

	if width <= 0 {
		width = terminalWidth()
	}
	rendered, err := transcript.Terminal(a.store.Get(), width)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	return nil
}
