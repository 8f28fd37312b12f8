package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

var (
	timelineSince  time.Duration
	timelineFile   string
	timelineSource string
	timelineLimit  int
	timelineWidth  int
)

// timelineCmd represents the timeline command
var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show recorded events since the last commit",
	Long: `Show the stored events for this repository in time order. The window starts
at the last commit unless --since is given. Run 'devtrail collect' first to
refresh the log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		start, end := a.manager.ResolveWindow(ctx)
		if timelineSince > 0 {
			start = end - timelineSince.Milliseconds()
		}

		var events []internal.Event
		if timelineFile != "" {
			events, err = a.store.FindByFile(timelineFile, start, end)
		} else {
			events, err = a.store.FindByRepo(a.repoRoot, start, end)
		}
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}
		events = filterBySource(events, timelineSource)

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintf(out, "No events since %s\n", humanize.Time(time.UnixMilli(start)))
			return nil
		}
		if timelineLimit > 0 && len(events) > timelineLimit {
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("… %d older events omitted", len(events)-timelineLimit)))
			events = events[len(events)-timelineLimit:]
		}

		now := time.Now()
		for _, ev := range events {
			printEvent(out, ev, now, timelineWidth)
		}
		return nil
	},
}

func filterBySource(events []internal.Event, source string) []internal.Event {
	if source == "" {
		return events
	}
	out := events[:0:0]
	for _, ev := range events {
		if string(ev.Source) == source {
			out = append(out, ev)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(timelineCmd)
	timelineCmd.Flags().DurationVar(&timelineSince, "since", 0, "Look back this far instead of to the last commit (e.g. 3h)")
	timelineCmd.Flags().StringVar(&timelineFile, "file", "", "Only events touching this repository-relative path")
	timelineCmd.Flags().StringVar(&timelineSource, "source", "", "Only events from this source (claude, cursor, cli, git)")
	timelineCmd.Flags().IntVarP(&timelineLimit, "limit", "n", 200, "Show at most this many of the newest events (0 for all)")
	timelineCmd.Flags().IntVar(&timelineWidth, "width", 160, "Truncate event text to this many characters (0 for no limit)")
}
