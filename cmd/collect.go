package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

var (
	collectSince  time.Duration
	collectStaged bool
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect events since the last commit",
	Long: `Run every enabled collector over the window since the last commit (or the
configured lookback when the repository has no commits), store the results and
print a per-collector summary.

Use --since to collect an explicit window instead, and --staged to also
record the currently staged changes as diff events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			events []internal.Event
			staged []internal.Event
		)
		var steps []internal.ProgressStep
		if collectStaged {
			steps = append(steps, internal.ProgressStep{
				Message: "Recording staged changes",
				Fn: func(ctx context.Context) error {
					var serr error
					staged, serr = a.manager.CollectStaged(ctx)
					return serr
				},
			})
		}
		steps = append(steps, internal.ProgressStep{
			Message: "Collecting events",
			Fn: func(ctx context.Context) error {
				var cerr error
				if collectSince > 0 {
					end := time.Now().UnixMilli()
					events, cerr = a.manager.CollectWindow(ctx, end-collectSince.Milliseconds(), end)
				} else {
					events, cerr = a.manager.Collect(ctx)
				}
				return cerr
			},
		})
		if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
			return err
		}

		if collectStaged {
			fmt.Fprintf(cmd.OutOrStdout(), "Staged: %s files\n", humanize.Comma(int64(len(staged))))
		}
		printCollectStats(cmd, a.manager.LastStats(), len(events))
		return nil
	},
}

func printCollectStats(cmd *cobra.Command, stats *internal.CollectStats, windowCount int) {
	out := cmd.OutOrStdout()
	if stats == nil {
		fmt.Fprintf(out, "%d events in window\n", windowCount)
		return
	}

	fmt.Fprintln(out, sectionStyle.Render("Collection"))
	fmt.Fprintf(out, "Window: %s → now\n", humanize.Time(time.UnixMilli(stats.Start)))

	names := make([]string, 0, len(stats.Collected))
	for name := range stats.Collected {
		names = append(names, name)
	}
	sort.Strings(names)
	failed := make(map[string]bool, len(stats.Failed))
	for _, name := range stats.Failed {
		failed[name] = true
	}
	for _, name := range names {
		if failed[name] {
			fmt.Fprintf(out, "  %s %-22s failed\n", errorStyle.Render("✗"), name)
			continue
		}
		fmt.Fprintf(out, "  %s %-22s %s\n", successStyle.Render("✓"), name, humanize.Comma(int64(stats.Collected[name])))
	}

	if stats.StoreErr != nil {
		fmt.Fprintln(out, warningStyle.Render("⚠  Events could not be stored: "+stats.StoreErr.Error()))
	} else {
		fmt.Fprintf(out, "Stored %s events\n", humanize.Comma(int64(stats.Stored)))
	}
	fmt.Fprintf(out, "%s events in window\n", humanize.Comma(int64(windowCount)))
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().DurationVar(&collectSince, "since", 0, "Collect this far back instead of since the last commit (e.g. 2h)")
	collectCmd.Flags().BoolVar(&collectStaged, "staged", false, "Also record staged changes as diff events")
}
