package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

var (
	logExitCode int
	logDuration int64
	logCWD      string
)

// logCommandCmd is called by the shell hook after every command.
var logCommandCmd = &cobra.Command{
	Use:    "log-command [flags] -- <command line>",
	Short:  "Append a shell command to the command log",
	Hidden: true,
	Args:   cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		failOpen("log-command", func() error {
			return runLogCommand(cmd.Context(), strings.Join(args, " "))
		})
		return nil
	},
}

func runLogCommand(ctx context.Context, line string) error {
	cwd := logCWD
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cwd = wd
	}

	// Per-repository config may relocate the log.
	repoRoot, err := repoRootFor(ctx, cwd)
	if err != nil {
		repoRoot = ""
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return err
	}
	if !cfg.Enabled || !cfg.Connectors.CLI.Enabled() {
		return nil
	}
	path, err := internal.CLILogPath(cfg)
	if err != nil {
		return err
	}
	return internal.AppendCommand(path, internal.CommandEntry{
		TS:       time.Now().UnixMilli(),
		Cmd:      line,
		ExitCode: logExitCode,
		Duration: logDuration,
		CWD:      cwd,
	})
}

func init() {
	rootCmd.AddCommand(logCommandCmd)
	logCommandCmd.Flags().IntVar(&logExitCode, "exit-code", 0, "Exit status of the command")
	logCommandCmd.Flags().Int64Var(&logDuration, "duration", 0, "Run time in seconds")
	logCommandCmd.Flags().StringVar(&logCWD, "cwd", "", "Directory the command ran in (default: current directory)")
}
