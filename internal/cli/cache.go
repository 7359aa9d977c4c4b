package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached content",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Show cache usage against its budget",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.engine.Cache().Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "stats failed", err)
			}
			return rootOpts.formatter(cmd).Render(st, func(w io.Writer) error {
				fmt.Fprintf(w, "Used:       %s of %s (evicts above %s)\n",
					formatBytes(st.UsedBytes), formatBytes(st.LimitBytes), formatBytes(st.ThresholdBytes))
				fmt.Fprintf(w, "Assets:     %d (%s, %d pinned)\n", st.Assets, formatBytes(st.AssetBytes), st.RetainedAssets)
				fmt.Fprintf(w, "Curriculum: %d (%s)\n", st.Curriculum, formatBytes(st.CurriculumBytes))
				fmt.Fprintf(w, "Incomplete entries: %d\n", st.IncompleteEntries)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Drop all cached assets and curriculum",
		Long: `Drop every cached asset and curriculum record, pinned ones included.
Progress, achievements and the outbox are untouched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Cache().Reset(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "reset failed", err)
			}
			return rootOpts.formatter(cmd).Success("Cache cleared.")
		},
	})

	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
