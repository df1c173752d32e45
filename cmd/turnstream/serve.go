// ABOUTME: serve command: runs the scripted chat-stream backend over HTTP
// ABOUTME: Point transport.url at it to exercise the live client end to end

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/turnstream/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve mock scenarios as a chat-stream backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			if addr == "" {
				addr = root.cfg.Server.Addr
			}

			// Served turns are not processed locally, so no ledger
			a, err := newApp(root.cfg, root.logger, appOptions{noLedger: true})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)
			cyan := color.New(color.FgCyan)

			cyan.Fprintf(out, "turnstream %s\n\n", version)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Chat stream: http://%s/api/chat/stream\n", addr)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Scenarios:   %s\n", strings.Join(a.mock.Names(), ", "))
			if a.registry != nil {
				green.Fprint(out, "    ▶ ")
				fmt.Fprintf(out, "Metrics:     http://%s/metrics\n", addr)
			}
			fmt.Fprintln(out)

			cfg := server.Config{Source: a.mock, Logger: a.logger}
			if a.registry != nil {
				cfg.Gatherer = a.registry
			}
			return server.New(cfg).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
