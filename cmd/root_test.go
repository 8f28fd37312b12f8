package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iksnae/devtrail/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCommand executes rootCmd with args after resetting every flag to its
// default, returning combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// setupRepo isolates HOME and the data directory and returns a git
// repository with one commit.
func setupRepo(t *testing.T) (repo, dataDir string) {
	t.Helper()
	home := testutil.CreateTempDir(t)
	dataDir = filepath.Join(home, "data")
	t.Setenv("HOME", home)
	t.Setenv("DEVTRAIL_HOME", dataDir)
	t.Setenv("DEVTRAIL_ENABLED", "")
	t.Setenv("DEVTRAIL_TRAILER", "")

	repo = testutil.InitGitRepo(t)
	testutil.GitCommit(t, repo, "README.md", "# demo\n", "initial commit")
	return repo, dataDir
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{
			name: "version flag",
			args: []string{"--version"},
			want: "dev (commit: unknown",
		},
		{
			name: "help flag",
			args: []string{"--help"},
			want: "devtrail collect",
		},
		{
			name:    "unknown command",
			args:    []string{"nonexistent-command"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want it to contain %q", out, tt.want)
			}
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"collect", "timeline", "search", "health", "export", "hook", "log-command", "mcp", "init", "cache"}
	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestOpenApp_NotARepository(t *testing.T) {
	testutil.RequireGit(t)
	t.Setenv("HOME", testutil.CreateTempDir(t))
	_, err := runCommand(t, "timeline", "--repo", testutil.CreateTempDir(t))
	if err == nil || !strings.Contains(err.Error(), "not inside a git repository") {
		t.Errorf("timeline outside a repository error = %v", err)
	}
}
