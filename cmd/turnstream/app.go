// ABOUTME: Wires config into a store, sources, metrics, ledger and the turn service
// ABOUTME: Shared by send, chat, serve and replay

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/turnstream/internal/config"
	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/ledger"
	"github.com/2389/turnstream/internal/metrics"
	"github.com/2389/turnstream/internal/mock"
	"github.com/2389/turnstream/internal/transport"
)

// errNoLedger is returned by commands that need recorded turns.
var errNoLedger = errors.New("ledger.path is not configured")

// appOptions are per-command overrides of the loaded config.
type appOptions struct {
	mock     bool
	scenario string
	// source replaces both the live and the mock source when set.
	source event.Source
	// noLedger skips recording even when a ledger is configured.
	noLedger bool
}

// app is a fully wired turnstream instance.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *conversation.Store
	service  *conversation.Service
	mock     *mock.Source
	registry *prometheus.Registry
	ledger   *ledger.Ledger
}

func newApp(cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  conversation.NewStore(logger),
	}

	mockSrc, err := newMockSource(cfg.Mock, opts.scenario, logger)
	if err != nil {
		return nil, err
	}
	a.mock = mockSrc

	mockMode := (cfg.Mock.Enabled || opts.mock) && opts.source == nil
	svcOpts := []conversation.Option{
		conversation.WithLogger(logger),
		conversation.WithMockSource(mockSrc),
		conversation.WithMockMode(mockMode),
	}

	switch {
	case opts.source != nil:
		svcOpts = append(svcOpts, conversation.WithSource(opts.source))
	case cfg.Transport.URL != "":
		svcOpts = append(svcOpts, conversation.WithSource(transport.NewClient(transport.Config{
			URL:     cfg.Transport.URL,
			Token:   cfg.Transport.Token,
			Timeout: cfg.Transport.Timeout,
			Logger:  logger,
		})))
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		svcOpts = append(svcOpts, conversation.WithMetrics(metrics.New(a.registry)))
	}

	if cfg.Ledger.Path != "" && !opts.noLedger {
		l, err := ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		a.ledger = l
		svcOpts = append(svcOpts, conversation.WithRecorder(l))
	}

	a.service = conversation.New(a.store, svcOpts...)
	return a, nil
}

// newMockSource builds the scripted source from config. A scenario named on
// the command line wins over the configured default.
func newMockSource(cfg config.MockConfig, scenario string, logger *slog.Logger) (*mock.Source, error) {
	opts := []mock.Option{
		mock.WithLogger(logger),
		mock.WithDelay(cfg.Delay),
		mock.WithFreshIDs(cfg.FreshIDs),
	}

	if cfg.ScenarioFile != "" {
		scenarios, err := mock.LoadScenarios(cfg.ScenarioFile)
		if err != nil {
			return nil, fmt.Errorf("loading scenarios: %w", err)
		}
		opts = append(opts, mock.WithScenarios(scenarios...))
	}

	name := cfg.Default
	if scenario != "" {
		name = scenario
	}
	if name != "" {
		opts = append(opts, mock.WithDefault(name))
	}

	src := mock.NewSource(opts...)
	if name != "" && !slices.Contains(src.Names(), name) {
		return nil, fmt.Errorf("%w: %s (have %v)", mock.ErrUnknownScenario, name, src.Names())
	}
	return src, nil
}

// params builds per-turn parameters, letting a non-empty session flag win.
func (a *app) params(session string, deepThinking, searchFirst bool) conversation.Params {
	if session == "" {
		session = a.cfg.Session.ID
	}
	return conversation.Params{
		SessionID:            session,
		DeepThinkingMode:     deepThinking || a.cfg.Session.DeepThinkingMode,
		SearchBeforePlanning: searchFirst || a.cfg.Session.SearchBeforePlanning,
	}
}

// Close releases the ledger and the store's watchers.
func (a *app) Close() error {
	a.store.Close()
	if a.ledger != nil {
		return a.ledger.Close()
	}
	return nil
}
