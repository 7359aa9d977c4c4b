package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shiksha/internal/engine"
	"github.com/roach88/shiksha/internal/progression"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	ID        string
	Student   string
	Entry     string
	Score     int
	TimeSpent int
	Hints     int
	Mistakes  int
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a completed game",
		Long: `Record a completion locally and queue it for upload.

The entry must be in the local catalog. Passing the same --id twice records
the completion once.

Example:
  shiksha record --student asha --entry maths-addition --score 80 --time 120`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordCompletion(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (generated when empty)")
	cmd.Flags().StringVar(&opts.Student, "student", "", "student id (required)")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "catalog entry id (required)")
	cmd.Flags().IntVar(&opts.Score, "score", 0, "score 0-100")
	cmd.Flags().IntVar(&opts.TimeSpent, "time", 0, "seconds spent")
	cmd.Flags().IntVar(&opts.Hints, "hints", 0, "hints used")
	cmd.Flags().IntVar(&opts.Mistakes, "mistakes", 0, "mistakes made")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("entry")

	return cmd
}

func recordCompletion(opts *RecordOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.RecordCompletion(cmd.Context(), engine.Completion{
		ID:           opts.ID,
		StudentID:    opts.Student,
		EntryID:      opts.Entry,
		Score:        opts.Score,
		TimeSpentSec: opts.TimeSpent,
		HintsUsed:    opts.Hints,
		Mistakes:     opts.Mistakes,
	})
	if err != nil {
		return requestError(err)
	}

	return opts.formatter(cmd).Render(res, func(w io.Writer) error {
		if res.Duplicate {
			fmt.Fprintf(w, "Already recorded as %s (%d XP).\n", res.Record.ID, res.Record.XPEarned)
			return nil
		}
		fmt.Fprintf(w, "Recorded %s: +%d XP\n", res.Record.ID, res.Record.XPEarned)
		if res.Diff.LeveledUp {
			fmt.Fprintf(w, "Level up! %d -> %d (%s)\n", res.Diff.PreviousLevel, res.Diff.Level, res.Snapshot.Title)
		}
		if len(res.Diff.NewlyUnlocked) > 0 {
			fmt.Fprintf(w, "Unlocked: %s\n", strings.Join(res.Diff.NewlyUnlocked, ", "))
		}
		for _, ev := range res.Achievements {
			fmt.Fprintf(w, "Achievement: %s\n", ev.AchievementID)
		}
		return nil
	})
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "snapshot <student>",
		Short:         "Show a student's XP, level, streaks and unlocks",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.engine.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "snapshot failed", err)
			}
			return rootOpts.formatter(cmd).Render(snap, func(w io.Writer) error {
				return writeSnapshot(w, args[0], snap)
			})
		},
	}
}

func writeSnapshot(w io.Writer, student string, snap progression.Snapshot) error {
	fmt.Fprintf(w, "%s: level %d %s, %d XP (%d to next level)\n",
		student, snap.Level, snap.Title, snap.TotalXP, snap.XPToNextLevel)
	fmt.Fprintf(w, "Games: %d completed, %d distinct, average score %d\n",
		snap.GamesCompleted, snap.UniqueEntries, snap.ScoreAverage)
	fmt.Fprintf(w, "Streak: %d current, %d longest\n", snap.CurrentStreak, snap.LongestStreak)
	for _, sp := range snap.Subjects {
		fmt.Fprintf(w, "  %-16s level %d, %d XP, mastery %d%%\n", sp.Subject, sp.Level, sp.XP, sp.Mastery)
	}
	if len(snap.Achievements) > 0 {
		fmt.Fprintf(w, "Achievements: %s\n", strings.Join(snap.Achievements, ", "))
	}
	fmt.Fprintf(w, "Unlocked: %d, locked: %d\n", len(snap.Unlocked), len(snap.Locked))
	return nil
}

// NewRecommendCommand creates the recommend command.
func NewRecommendCommand(rootOpts *RootOptions) *cobra.Command {
	var classLevel, limit int

	cmd := &cobra.Command{
		Use:           "recommend <student>",
		Short:         "Suggest unlocked entries to play next",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.engine.Recommend(cmd.Context(), args[0], classLevel, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "recommend failed", err)
			}
			return rootOpts.formatter(cmd).Render(recs, func(w io.Writer) error {
				if len(recs) == 0 {
					_, err := fmt.Fprintln(w, "Nothing to recommend.")
					return err
				}
				for i, r := range recs {
					fmt.Fprintf(w, "%d. %s (score %d)\n", i+1, r.EntryID, r.Score)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&classLevel, "class", 0, "student's class level (0 = any)")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum suggestions")
	return cmd
}
