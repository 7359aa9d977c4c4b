package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shiksha/internal/engine"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Check connectivity, then drain the outbox and refresh priority content once.

Example:
  shiksha sync
  shiksha sync --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if a.probe != nil {
				a.probe.Check(ctx)
			}
			res, err := a.engine.SyncNow(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "sync failed", err)
			}
			return rootOpts.formatter(cmd).Render(res, func(w io.Writer) error {
				return writePass(w, res)
			})
		},
	}
}

func writePass(w io.Writer, res engine.PassResult) error {
	switch {
	case res.Offline:
		_, err := fmt.Fprintln(w, "Offline: nothing sent.")
		return err
	case res.Coalesced:
		_, err := fmt.Fprintln(w, "A pass is already running.")
		return err
	}
	parts := []string{
		fmt.Sprintf("synced %d", res.Synced),
		fmt.Sprintf("failed %d", res.Failed),
		fmt.Sprintf("permanent %d", res.Permanent),
	}
	if res.Reset > 0 {
		parts = append(parts, fmt.Sprintf("reset %d", res.Reset))
	}
	if res.Pruned > 0 {
		parts = append(parts, fmt.Sprintf("pruned %d", res.Pruned))
	}
	fmt.Fprintf(w, "Pass complete: %s\n", strings.Join(parts, ", "))
	if res.Aborted {
		fmt.Fprintln(w, "Connectivity lost during the pass; remaining items wait for the next one.")
	}
	if r := res.Refresh; r != nil {
		fmt.Fprintf(w, "Content: %d entries updated, %d assets fetched, %d incomplete\n", len(r.Updated), r.AssetsFetched, len(r.Incomplete))
	}
	return nil
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show connectivity, last sync and outbox counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.engine.Status(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "status failed", err)
			}
			return rootOpts.formatter(cmd).Render(st, func(w io.Writer) error {
				online := "offline"
				if st.Online {
					online = "online"
				}
				fmt.Fprintf(w, "Connectivity: %s\n", online)
				fmt.Fprintf(w, "Last pass:    %s\n", formatTime(st.LastPassAt))
				fmt.Fprintf(w, "Last sync:    %s\n", formatTime(st.LastSyncAt))
				fmt.Fprintf(w, "Outbox:       %d pending, %d syncing, %d failed (%d permanent), %d synced\n",
					st.Outbox.Pending, st.Outbox.Syncing, st.Outbox.Failed, st.Outbox.Permanent, st.Outbox.Synced)
				for _, e := range st.LastErrors {
					fmt.Fprintf(w, "  error: %s\n", e)
				}
				return nil
			})
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
