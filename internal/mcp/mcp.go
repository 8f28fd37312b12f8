// Package mcp exposes the event log over the Model Context Protocol so a
// coding agent can search and replay recent developer activity.
//
//	devtrail mcp   → stdio server with events_search, events_timeline,
//	                 events_collect and collector_health
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/devtrail/internal"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverInstructions = `devtrail records what happened in this repository: editor and agent ` +
	`conversations, shell commands, commits and staged changes, in one time-ordered log. ` +
	`Use events_timeline to see what happened since the last commit, events_search to ` +
	`find earlier discussion of a topic, events_collect to refresh the log and ` +
	`collector_health to check which sources are available.`

// Store is the read side of the event log the tools query.
type Store interface {
	FindByRepo(repo string, start, end int64) ([]internal.Event, error)
	FindByFile(file string, start, end int64) ([]internal.Event, error)
	SearchText(query string, limit int) ([]internal.Event, error)
}

// Collector refreshes the log and reports source health.
type Collector interface {
	RepoRoot() string
	ResolveWindow(ctx context.Context) (int64, int64)
	Collect(ctx context.Context) ([]internal.Event, error)
	HealthCheck() map[string]internal.Health
	LastStats() *internal.CollectStats
}

// NewServer creates an MCP server with every tool registered.
func NewServer(store Store, collector Collector, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"devtrail",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
		server.WithRecovery(),
	)
	registerTools(srv, store, collector)
	return srv
}

func registerTools(srv *server.MCPServer, store Store, collector Collector) {
	srv.AddTool(
		mcp.NewTool("events_search",
			mcp.WithDescription("Full-text search over recorded events (conversations, commands, commits, diffs). Returns the best matches first."),
			mcp.WithTitleAnnotation("Search Events"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Words to search for"),
			),
			mcp.WithString("source",
				mcp.Description("Only return events from this source: claude, cursor, cli or git"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Max results (default: 20, max: 100)"),
			),
		),
		handleSearch(store),
	)

	srv.AddTool(
		mcp.NewTool("events_timeline",
			mcp.WithDescription("Time-ordered events for this repository. Defaults to everything since the last commit."),
			mcp.WithTitleAnnotation("Event Timeline"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
			mcp.WithNumber("since_minutes",
				mcp.Description("Look back this many minutes instead of to the last commit"),
			),
			mcp.WithString("file",
				mcp.Description("Only events touching this repository-relative path"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Max events, newest kept (default: 100)"),
			),
		),
		handleTimeline(store, collector),
	)

	srv.AddTool(
		mcp.NewTool("events_collect",
			mcp.WithDescription("Run every enabled collector over the window since the last commit and store the results."),
			mcp.WithTitleAnnotation("Collect Events"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		handleCollect(collector),
	)

	srv.AddTool(
		mcp.NewTool("collector_health",
			mcp.WithDescription("Report which activity sources are available for this repository."),
			mcp.WithTitleAnnotation("Collector Health"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		),
		handleHealth(collector),
	)
}

func handleSearch(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, _ := req.GetArguments()["query"].(string)
		source, _ := req.GetArguments()["source"].(string)
		limit := clamp(intArg(req, "limit", 20), 1, 100)

		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		results, err := store.SearchText(query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Search error: %s. Try simpler keywords.", err)), nil
		}
		if source != "" {
			results = filterSource(results, internal.Source(source))
		}
		if len(results) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No events found for: %q", query)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d events:\n\n", len(results))
		for i, ev := range results {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, formatEvent(ev, 300))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleTimeline(store Store, collector Collector) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		file, _ := req.GetArguments()["file"].(string)
		limit := clamp(intArg(req, "limit", 100), 1, 1000)

		start, end := collector.ResolveWindow(ctx)
		if minutes := intArg(req, "since_minutes", 0); minutes > 0 {
			start = end - (time.Duration(minutes) * time.Minute).Milliseconds()
		}

		var (
			events []internal.Event
			err    error
		)
		if file != "" {
			events, err = store.FindByFile(file, start, end)
		} else {
			events, err = store.FindByRepo(collector.RepoRoot(), start, end)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Timeline error: %s", err)), nil
		}
		if len(events) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No events since %s.", humanize.Time(time.UnixMilli(start)))), nil
		}

		omitted := 0
		if len(events) > limit {
			omitted = len(events) - limit
			events = events[omitted:]
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d events since %s", len(events)+omitted, humanize.Time(time.UnixMilli(start)))
		if omitted > 0 {
			fmt.Fprintf(&b, " (oldest %d omitted)", omitted)
		}
		b.WriteString(":\n\n")
		for _, ev := range events {
			b.WriteString(formatEvent(ev, 500))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleCollect(collector Collector) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		events, err := collector.Collect(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Collect error: %s", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Collected window now holds %d events.\n", len(events))
		if stats := collector.LastStats(); stats != nil {
			names := make([]string, 0, len(stats.Collected))
			for name := range stats.Collected {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&b, "- %s: %d\n", name, stats.Collected[name])
			}
			if len(stats.Failed) > 0 {
				fmt.Fprintf(&b, "Failed: %s\n", strings.Join(stats.Failed, ", "))
			}
			if stats.StoreErr != nil {
				fmt.Fprintf(&b, "Storage error: %s\n", stats.StoreErr)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleHealth(collector Collector) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := collector.HealthCheck()
		names := make([]string, 0, len(health))
		for name := range health {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		for _, name := range names {
			h := health[name]
			status := "ok"
			if !h.OK {
				status = "unavailable"
			}
			fmt.Fprintf(&b, "%s: %s (%s)\n", name, status, h.Reason)
		}
		if b.Len() == 0 {
			b.WriteString("No collectors enabled.\n")
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func formatEvent(ev internal.Event, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s/%s", time.UnixMilli(ev.TS).Format(time.RFC3339), ev.Source, ev.Kind)
	if ev.Actor != "" {
		fmt.Fprintf(&b, " (%s)", ev.Actor)
	}
	if ev.File != "" {
		fmt.Fprintf(&b, " %s", ev.File)
	}
	fmt.Fprintf(&b, "\n    %s\n", truncate(ev.Text, max))
	return b.String()
}

func filterSource(events []internal.Event, source internal.Source) []internal.Event {
	out := events[:0:0]
	for _, ev := range events {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
