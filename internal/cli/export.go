package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shiksha/internal/store"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <student>",
		Short: "Write a student's history as a JSON bundle",
		Long: `Write a student's progress and achievements as a JSON bundle that
"shiksha import" can restore on this or another device.

Example:
  shiksha export asha -o asha.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			bundle, err := a.store.Export(cmd.Context(), args[0], time.Now())
			if err != nil {
				return WrapExitError(ExitFailure, "export failed", err)
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output file", err)
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(bundle); err != nil {
				return WrapExitError(ExitFailure, "failed to write bundle", err)
			}
			if output != "" {
				rootOpts.formatter(cmd).VerboseLog("wrote %d progress records and %d achievements to %s",
					len(bundle.Progress), len(bundle.Achievements), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle.json>",
		Short: "Restore a bundle written by export",
		Long: `Restore a student's history. Records already present are skipped, so
importing the same bundle twice changes nothing. New records are queued for
upload like locally recorded ones.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read bundle", err)
			}
			var bundle store.Bundle
			if err := json.Unmarshal(data, &bundle); err != nil {
				return WrapExitError(ExitCommandError, "invalid bundle", err)
			}

			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.store.Import(cmd.Context(), bundle, time.Now())
			if err != nil {
				return WrapExitError(ExitFailure, "import failed", err)
			}
			return rootOpts.formatter(cmd).Render(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Imported %d progress records and %d achievements for %s.\n",
					res.Progress, res.Achievements, bundle.StudentID)
				return err
			})
		},
	}
}
