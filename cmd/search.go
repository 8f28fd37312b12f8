package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchSource string
	searchAll    bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over recorded events",
	Long: `Search recorded event text. Words are matched as phrases and results are
ordered by relevance. By default only events of the current repository are
shown; use --all to search every repository.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args, " ")
		// Over-fetch so repository and source filters still fill the page.
		results, err := a.store.SearchText(query, searchLimit*4)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		results = filterBySource(results, searchSource)

		out := cmd.OutOrStdout()
		now := time.Now()
		shown := 0
		for _, ev := range results {
			if !searchAll && ev.Repo != a.repoRoot {
				continue
			}
			if shown == searchLimit {
				break
			}
			printEvent(out, ev, now, 240)
			shown++
		}
		if shown == 0 {
			fmt.Fprintf(out, "No events found for %q\n", query)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "Only events from this source (claude, cursor, cli, git)")
	searchCmd.Flags().BoolVar(&searchAll, "all", false, "Search every repository, not just the current one")
}
