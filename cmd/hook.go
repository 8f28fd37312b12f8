package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

// trailerMarker identifies a commit message that already carries context.
const trailerMarker = "AI-Context (devtrail)"

// hookCmd groups the git hook entry points. Every subcommand exits 0 no
// matter what goes wrong so a commit is never blocked.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Entry points for git hooks",
	Long: `Entry points called from git hooks. They always exit successfully; failures
are logged at debug level (use --verbose or DEVTRAIL_DEBUG=1 to see them).

  .git/hooks/post-commit:  devtrail hook post-commit
  .git/hooks/commit-msg:   devtrail hook commit-msg "$1"`,
}

var postCommitCmd = &cobra.Command{
	Use:   "post-commit",
	Short: "Record the new commit and the activity that led to it",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		failOpen("post-commit", func() error {
			return runPostCommit(cmd.Context())
		})
		return nil
	},
}

var commitMsgCmd = &cobra.Command{
	Use:   "commit-msg <message-file>",
	Short: "Record staged changes and append a context trailer to the commit message",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		failOpen("commit-msg", func() error {
			if len(args) == 0 {
				return fmt.Errorf("missing commit message file")
			}
			return runCommitMsg(cmd.Context(), args[0])
		})
		return nil
	},
}

// failOpen runs fn, logging instead of returning any error or panic.
func failOpen(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			internal.LogDebug("%s hook panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		internal.LogDebug("%s hook: %v", name, err)
	}
}

func runPostCommit(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.cfg.Enabled {
		return nil
	}
	if _, err := a.manager.Collect(ctx); err != nil {
		return err
	}
	// The commit just made is the new anchor.
	a.manager.ForgetAnchor()
	return nil
}

func runCommitMsg(ctx context.Context, msgFile string) error {
	data, err := os.ReadFile(msgFile)
	if err != nil {
		return err
	}
	msg := string(data)
	if strings.Contains(msg, trailerMarker) {
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.cfg.Enabled {
		return nil
	}

	// Amended and empty commits stage nothing but still get a trailer.
	staged, err := a.manager.CollectStaged(ctx)
	if err != nil {
		internal.LogDebug("Failed to store staged changes: %v", err)
	}
	events, err := a.manager.Collect(ctx)
	if err != nil {
		return err
	}
	if !a.cfg.CommitTrailer {
		return nil
	}

	trailer := buildTrailer(events, staged)
	if trailer == "" {
		return nil
	}
	info, err := os.Stat(msgFile)
	if err != nil {
		return err
	}
	return os.WriteFile(msgFile, []byte(strings.TrimRight(msg, "\n")+"\n\n"+trailer), info.Mode().Perm())
}

// buildTrailer summarizes the activity window for a commit message. It
// returns "" when nothing but the staged files would be reported.
func buildTrailer(events, staged []internal.Event) string {
	conversations := map[internal.Source]int{}
	var totalConversations, commands, failed int
	var lastPrompt string
	for _, ev := range events {
		switch ev.Kind {
		case internal.KindConversation:
			if internal.IsToolRelated(ev.Text) {
				continue
			}
			conversations[ev.Source]++
			totalConversations++
			if ev.Actor == internal.ActorUser {
				lastPrompt = ev.Text
			}
		case internal.KindCommand:
			commands++
			if ok, isBool := ev.Metadata["success"].(bool); isBool && !ok {
				failed++
			}
		}
	}
	if totalConversations == 0 && commands == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("---\n" + trailerMarker + "\n")
	if totalConversations > 0 {
		sources := make([]string, 0, len(conversations))
		for source := range conversations {
			sources = append(sources, string(source))
		}
		sort.Strings(sources)
		parts := make([]string, len(sources))
		for i, source := range sources {
			parts[i] = fmt.Sprintf("%s %d", source, conversations[internal.Source(source)])
		}
		fmt.Fprintf(&b, "Conversations: %d (%s)\n", totalConversations, strings.Join(parts, ", "))
	}
	if commands > 0 {
		fmt.Fprintf(&b, "Commands: %d", commands)
		if failed > 0 {
			fmt.Fprintf(&b, " (%d failed)", failed)
		}
		b.WriteString("\n")
	}

	files := make([]string, 0, len(staged))
	for _, ev := range staged {
		if ev.File != "" {
			files = append(files, ev.File)
		}
	}
	if len(files) > 0 {
		shown := files
		if len(shown) > 5 {
			shown = shown[:5]
		}
		fmt.Fprintf(&b, "Files: %s", strings.Join(shown, ", "))
		if extra := len(files) - len(shown); extra > 0 {
			fmt.Fprintf(&b, " (+%d more)", extra)
		}
		b.WriteString("\n")
	}
	if lastPrompt != "" {
		fmt.Fprintf(&b, "Last prompt: %q\n", oneLine(lastPrompt, 100))
	}
	b.WriteString("---\n")
	return b.String()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "…"
	}
	return s
}

func init() {
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(postCommitCmd)
	hookCmd.AddCommand(commitMsgCmd)
}
