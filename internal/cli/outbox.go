package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/shiksha/internal/model"
)

// NewOutboxCommand creates the outbox command group.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the upload queue",
	}
	cmd.AddCommand(newOutboxListCommand(rootOpts))
	cmd.AddCommand(newOutboxFailedCommand(rootOpts))
	cmd.AddCommand(newOutboxRetryCommand(rootOpts))
	return cmd
}

func newOutboxListCommand(rootOpts *RootOptions) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List outbox items in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch s := model.OutboxState(state); s {
			case "", model.OutboxPending, model.OutboxSyncing, model.OutboxSynced, model.OutboxFailed:
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid state %q", state))
			}

			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.store.ListOutbox(cmd.Context(), model.OutboxState(state))
			if err != nil {
				return WrapExitError(ExitFailure, "list failed", err)
			}
			return rootOpts.formatter(cmd).Render(items, func(w io.Writer) error {
				return writeOutbox(w, items)
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "only items in this state (pending|syncing|synced|failed)")
	return cmd
}

func newOutboxFailedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "failed",
		Short:         "List failed items with their last error",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.engine.FailedItems(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "list failed", err)
			}
			return rootOpts.formatter(cmd).Render(items, func(w io.Writer) error {
				return writeOutbox(w, items)
			})
		},
	}
}

func newOutboxRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Requeue failed items, including permanent ones",
		Long: `Move failed items back to pending with their attempt count cleared.

Permanent items are only ever retried this way. Run "shiksha outbox failed"
to find their ids.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.engine.RetryFailed(cmd.Context(), id); err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("retry %s", id), err)
				}
			}
			return rootOpts.formatter(cmd).Render(map[string]any{"requeued": args}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Requeued %d item(s).\n", len(args))
				return err
			})
		},
	}
}

func writeOutbox(w io.Writer, items []model.OutboxItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "Outbox is empty.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTUDENT\tSTATE\tATTEMPTS\tLAST ERROR")
	for _, it := range items {
		state := string(it.State)
		if it.Permanent {
			state += " (permanent)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", it.ID, it.Kind, it.StudentID, state, it.Attempts, it.LastError)
	}
	return tw.Flush()
}
