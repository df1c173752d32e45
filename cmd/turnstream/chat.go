// ABOUTME: chat command: interactive loop over one conversation
// ABOUTME: Ctrl-C cancels the running turn; at the prompt it exits

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/server"
)

type chatFlags struct {
	session      string
	mock         bool
	scenario     string
	deepThinking bool
	searchFirst  bool
	listen       string
}

func newChatCmd(root *rootOptions) *cobra.Command {
	f := &chatFlags{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively; Ctrl-C cancels the running turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(root.cfg, root.logger, appOptions{mock: f.mock, scenario: f.scenario})
			if err != nil {
				return err
			}
			defer a.Close()

			var served chan error
			if f.listen != "" {
				cfg := server.Config{Store: a.store, Logger: a.logger}
				if a.registry != nil {
					cfg.Gatherer = a.registry
				}
				srv := server.New(cfg)
				served = make(chan error, 1)
				go func() { served <- srv.Run(ctx, f.listen) }()
				color.New(color.FgHiBlack).Fprintf(cmd.OutOrStdout(), "snapshots at http://%s/api/snapshots\n", f.listen)
			}

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			s := &chatSession{
				app:        a,
				in:         cmd.InOrStdin(),
				out:        cmd.OutOrStdout(),
				interrupts: interrupts,
				params:     a.params(f.session, f.deepThinking, f.searchFirst),
			}
			err = s.run(ctx)

			cancel()
			if served != nil {
				if serveErr := <-served; serveErr != nil && err == nil {
					err = serveErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&f.session, "session", "", "session ID (default from config)")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "use the scripted mock source")
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "default mock scenario")
	cmd.Flags().BoolVar(&f.deepThinking, "deep-thinking", false, "ask the backend for deep thinking mode")
	cmd.Flags().BoolVar(&f.searchFirst, "search-before-planning", false, "ask the backend to search before planning")
	cmd.Flags().StringVar(&f.listen, "listen", "", "serve the snapshot feed on this address")

	return cmd
}

// chatSession is one interactive conversation.
type chatSession struct {
	app        *app
	in         io.Reader
	out        io.Writer
	interrupts <-chan os.Signal
	params     conversation.Params
}

func (s *chatSession) run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	lines := readLines(s.in, done)
	prompt := color.New(color.FgGreen, color.Bold)

	fmt.Fprintln(s.out, "Type a message. /clear empties the conversation, /quit exits.")

	for {
		prompt.Fprint(s.out, "> ")

		select {
		case <-ctx.Done():
			return nil
		case <-s.interrupts:
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/clear":
				s.app.service.ClearMessages()
				color.New(color.FgHiBlack).Fprintln(s.out, "conversation cleared")
				continue
			}
			if err := s.turn(ctx, line); err != nil {
				return err
			}
		}
	}
}

// turn runs one message. An interrupt cancels only this turn.
func (s *chatSession) turn(ctx context.Context, text string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-s.interrupts:
			cancel()
		case <-done:
		}
	}()

	printer := newTurnPrinter(s.out, s.app.store.Get())
	unsubscribe := s.app.store.Subscribe(printer.OnSnapshot)
	result := s.app.service.RunTurn(turnCtx, messaging.NewUserMessage(text), s.params)
	unsubscribe()
	close(done)
	printer.Finish()

	switch result.Outcome {
	case conversation.Cancelled:
		if ctx.Err() != nil {
			return nil
		}
		color.New(color.FgYellow).Fprintln(s.out, "turn cancelled")
	case conversation.Failed:
		if errors.Is(result.Err, conversation.ErrTurnInProgress) {
			return result.Err
		}
		color.New(color.FgRed).Fprintf(s.out, "turn failed: %v\n", result.Err)
	}
	return nil
}

// readLines feeds lines from r until EOF or until done is closed.
func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
