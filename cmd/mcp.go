package cmd

import (
	"fmt"

	"github.com/iksnae/devtrail/internal"
	"github.com/iksnae/devtrail/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the event log to coding agents over MCP (stdio)",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing:
  events_search     full-text search over recorded events
  events_timeline   events since the last commit
  events_collect    refresh the log
  collector_health  source availability

Example client configuration:
  {"mcpServers": {"devtrail": {"command": "devtrail", "args": ["mcp"]}}}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		// stdout belongs to the protocol.
		internal.SetLogOutput(cmd.ErrOrStderr())
		srv := mcp.NewServer(a.store, a.manager, version)
		if err := server.ServeStdio(srv); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
