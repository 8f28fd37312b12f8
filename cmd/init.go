package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/devtrail/internal"
	"github.com/spf13/cobra"
)

var initShell string

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .devtrail.yml and print hook snippets",
	Long: `Write a commented .devtrail.yml into the repository root (an existing file is
left untouched) and print the snippets that connect devtrail to git and to
your shell. devtrail never edits your hooks or shell rc files itself.

  devtrail init --shell zsh >> ~/.zshrc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		binary, err := os.Executable()
		if err != nil {
			binary = "devtrail"
		}

		if initShell != "" {
			script, err := internal.ShellHookScript(initShell, binary)
			if err != nil {
				return err
			}
			fmt.Fprint(out, script)
			return nil
		}

		repoRoot, err := resolveRepo(cmd.Context())
		if err != nil {
			return err
		}
		path, created, err := internal.WriteDefaultConfig(repoRoot)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintln(out, successStyle.Render("✓ Wrote "+path))
		} else {
			fmt.Fprintln(out, infoStyle.Render("ℹ Keeping existing "+path))
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render("Git hooks"))
		fmt.Fprintf(out, "  .git/hooks/post-commit:\n    #!/bin/sh\n    %q hook post-commit || true\n", binary)
		fmt.Fprintf(out, "  .git/hooks/commit-msg:\n    #!/bin/sh\n    %q hook commit-msg \"$1\" || true\n", binary)
		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render("Shell command capture"))
		fmt.Fprintln(out, "  devtrail init --shell zsh >> ~/.zshrc")
		fmt.Fprintln(out, "  devtrail init --shell bash >> ~/.bashrc")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initShell, "shell", "", "Print the command capture hook for this shell (zsh, bash) instead")
}
