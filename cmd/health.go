package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

var healthVerbose bool

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:     "health",
	Aliases: []string{"healthcheck"},
	Short:   "Check which activity sources devtrail can read",
	Long: `Check the health of every enabled collector for this repository:
  • Claude Code transcript directory and session count
  • Cursor workspace and session count
  • Shell command log freshness
  • Git repository access

Also reports the event store location, size and per-source event counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("Collectors"))
		health := a.manager.HealthCheck()
		names := make([]string, 0, len(health))
		for name := range health {
			names = append(names, name)
		}
		sort.Strings(names)

		healthy := 0
		for _, name := range names {
			h := health[name]
			if h.OK {
				healthy++
				fmt.Fprintf(out, "  %s %-22s %s\n", successStyle.Render("✓"), name, h.Reason)
			} else {
				fmt.Fprintf(out, "  %s %-22s %s\n", warningStyle.Render("⚠"), name, h.Reason)
			}
			if healthVerbose {
				for k, v := range h.Counts {
					fmt.Fprintf(out, "      %s: %s\n", k, humanize.Comma(int64(v)))
				}
			}
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, sectionStyle.Render("Event store"))
		fmt.Fprintf(out, "  Path: %s\n", a.store.Path())
		if info, err := os.Stat(a.store.Path()); err == nil {
			fmt.Fprintf(out, "  Size: %s\n", humanize.Bytes(uint64(info.Size())))
		}
		counts, err := a.store.CountBySource()
		if err != nil {
			return fmt.Errorf("failed to count events: %w", err)
		}
		total := 0
		for _, source := range []internal.Source{internal.SourceClaude, internal.SourceCursor, internal.SourceCLI, internal.SourceGit} {
			total += counts[source]
			fmt.Fprintf(out, "  %-7s %s\n", source, humanize.Comma(int64(counts[source])))
		}
		fmt.Fprintf(out, "  Total:  %s\n\n", humanize.Comma(int64(total)))

		switch {
		case healthy == len(names):
			fmt.Fprintln(out, successStyle.Render("✓ All collectors healthy"))
		case healthy > 0:
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠ %d of %d collectors healthy", healthy, len(names))))
		default:
			fmt.Fprintln(out, errorStyle.Render("✗ No collector can read its source"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthVerbose, "details", false, "Show per-collector counts")
}
