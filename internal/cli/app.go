package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/shiksha/internal/config"
	"github.com/roach88/shiksha/internal/connectivity"
	"github.com/roach88/shiksha/internal/engine"
	"github.com/roach88/shiksha/internal/progression"
	"github.com/roach88/shiksha/internal/remote"
	"github.com/roach88/shiksha/internal/store"
)

// app is everything a command needs, opened from the config.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine

	// probe is nil when no remote is configured.
	probe *connectivity.Probe
}

// openApp loads the config and opens the store and engine. Logs below level
// are dropped unless --verbose is set.
func openApp(opts *RootOptions, cmd *cobra.Command, level slog.Level) (*app, error) {
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	engineOpts := append(cfg.EngineOptions(), engine.WithLogger(logger))
	if cfg.Rules != "" {
		rules, err := progression.LoadRules(cfg.Rules)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load rules", err)
		}
		engineOpts = append(engineOpts, engine.WithRules(rules))
	}

	var (
		adapter remote.Adapter
		port    connectivity.Port
		probe   *connectivity.Probe
	)
	if cfg.Remote.BaseURL != "" {
		h, err := remote.NewHTTPAdapter(remote.HTTPConfig{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout.Std(),
			Logger:  logger,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid remote", err)
		}
		probeURL := cfg.Remote.ProbeURL
		if probeURL == "" {
			probeURL = cfg.Remote.BaseURL
		}
		probe, err = connectivity.NewProbe(connectivity.ProbeConfig{
			URL:      probeURL,
			Interval: cfg.Remote.ProbeInterval.Std(),
			Logger:   logger,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid probe", err)
		}
		adapter, port = h, probe
	} else {
		port = connectivity.NewManual(false)
	}

	logger.Debug("opening database", "path", cfg.Database)
	var st *store.Store
	if cfg.Database == ":memory:" {
		st, err = store.OpenMemory(store.WithLogger(logger))
	} else {
		st, err = store.Open(cfg.Database, store.WithLogger(logger))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng, err := engine.New(st, adapter, port, engineOpts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	return &app{cfg: cfg, logger: logger, store: st, engine: eng, probe: probe}, nil
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// requestError turns engine input errors into a failure exit.
func requestError(err error) error {
	if engine.IsUnknownEntry(err) || engine.IsSessionNotFound(err) || engine.IsInvalidInput(err) {
		return WrapExitError(ExitFailure, "request rejected", err)
	}
	return fmt.Errorf("unexpected error: %w", err)
}
