package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	repoPath string
	version  string = "dev"
	commit   string = "unknown"
	date     string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devtrail",
	Short: "Record AI conversations, shell commands and commits as one event log",
	Long: `devtrail turns local developer activity into one ordered, queryable event log
per repository.

Sources:
  • Claude Code transcripts (~/.claude/projects)
  • Cursor editor conversations (workspace and global state databases)
  • Shell commands recorded by the devtrail shell hook
  • Git commits and staged changes

Quick Start:
  devtrail init                 # write .devtrail.yml and print hook snippets
  devtrail collect              # gather everything since the last commit
  devtrail timeline             # show what happened since the last commit
  devtrail search "deadlock"    # full-text search over recorded events`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", "", "Repository to work on (default: the repository containing the current directory)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

var errNotRepo = errors.New("not inside a git repository")

// app bundles what most commands need: the repository, its config, the
// event store and a collector manager.
type app struct {
	repoRoot string
	cfg      *internal.Config
	store    *internal.EventStore
	manager  *internal.CollectorManager
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			internal.LogWarn("Failed to close event store: %v", err)
		}
	}
}

// resolveRepo returns the repository root for --repo or the working directory.
func resolveRepo(ctx context.Context) (string, error) {
	dir := repoPath
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	return repoRootFor(ctx, dir)
}

// repoRootFor returns the repository root containing dir.
func repoRootFor(ctx context.Context, dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	resolver := internal.NewGitRepoResolver(internal.NewGitRunner(internal.DefaultConfig().RetryPolicy()), nil)
	root, err := resolver.Resolve(ctx, abs)
	if err != nil {
		return "", err
	}
	if root == "" {
		return "", fmt.Errorf("%w: %s", errNotRepo, abs)
	}
	return root, nil
}

// loadConfig loads the repository config and applies its log level unless
// --verbose was given.
func loadConfig(repoRoot string) (*internal.Config, error) {
	cfg, err := internal.LoadConfig(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !verbose && cfg.LogLevel != "" {
		internal.SetLogLevel(internal.ParseLogLevel(cfg.LogLevel))
	}
	return cfg, nil
}

// openApp resolves the repository, loads config and opens the event store.
func openApp(ctx context.Context) (*app, error) {
	repoRoot, err := resolveRepo(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}
	store, err := internal.OpenEventStore(internal.DefaultStorePath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	internal.LogDebug("Repository %s, store %s", repoRoot, store.Path())

	return &app{
		repoRoot: repoRoot,
		cfg:      cfg,
		store:    store,
		manager:  internal.NewCollectorManager(repoRoot, cfg, store),
	}, nil
}
