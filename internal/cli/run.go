package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync scheduler until interrupted",
		Long: `Open the local store and keep it synchronized with the backend.

A pass runs on start, on every sync interval, after each recorded
completion and whenever connectivity returns. Without remote.base_url
in the config the device stays offline and nothing is sent.

Example:
  shiksha run --config /etc/shiksha.yaml
  shiksha run --db ./device.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(rootOpts, cmd)
		},
	}
}

func runDevice(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer a.Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a.logger.Info("engine starting", "db", a.cfg.Database, "remote", a.cfg.Remote.BaseURL)
	fmt.Fprintln(cmd.OutOrStdout(), "Sync engine started. Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	if a.probe != nil {
		g.Go(func() error { return a.probe.Run(gctx) })
	}
	g.Go(func() error { return a.engine.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	a.logger.Info("engine stopped gracefully")
	return nil
}
