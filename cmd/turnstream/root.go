// ABOUTME: Root cobra command: config resolution and logger setup
// ABOUTME: Every subcommand reads the loaded config from the shared rootOptions

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2389/turnstream/internal/config"
	"github.com/2389/turnstream/internal/logging"
)

// rootOptions holds state shared by all subcommands.
type rootOptions struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "turnstream",
		Short:         "Stream multi-agent chat turns into a live conversation",
		Long:          `turnstream sends a message to a multi-agent chat backend, folds the streamed events into a conversation, and renders it as it changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $TURNSTREAM_CONFIG or $XDG_CONFIG_HOME/turnstream/config.yaml)")

	cmd.AddCommand(
		newSendCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
		newReplayCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run:   func(*cobra.Command, []string) { printVersion() },
		},
	)

	return cmd
}

// load resolves and loads the config, then installs the logger. A missing
// file is only an error when the path was given explicitly.
func (o *rootOptions) load() error {
	path, explicit := getConfigPath(o.configPath)

	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	o.cfg = cfg
	o.logger = logging.New(cfg.Logging)
	slog.SetDefault(o.logger)
	o.logger.Debug("config loaded", "path", path, "explicit", explicit)
	return nil
}

// getConfigPath returns the config file path and whether the user chose it.
// Priority: --config flag > TURNSTREAM_CONFIG env var > XDG_CONFIG_HOME/turnstream/config.yaml > ~/.config/turnstream/config.yaml
func getConfigPath(flag string) (string, bool) {
	if flag != "" {
		return flag, true
	}
	if envPath := os.Getenv("TURNSTREAM_CONFIG"); envPath != "" {
		return envPath, true
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml", false // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "turnstream", "config.yaml"), false
}
