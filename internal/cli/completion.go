package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

// shellCompletion describes how to generate and where to install the
// completion script for one shell.
type shellCompletion struct {
	generate func(w io.Writer) error
	// target returns the install path under home; nil when --install is
	// not supported.
	target  func(home string) string
	loadCmd string
}

var shellCompletions = map[string]shellCompletion{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "bash-completion", "completions", "apm")
		},
		loadCmd: `eval "$(apm completion bash)"`,
	},
	"zsh": {
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_apm")
		},
		loadCmd: `eval "$(apm completion zsh)"`,
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		target: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions", "apm.fish")
		},
		loadCmd: "apm completion fish | source",
	},
	"powershell": {
		generate: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
		loadCmd:  "apm completion powershell | Out-String | Invoke-Expression",
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for apm",
	Long: `Print or install the shell completion script for apm.

Supported shells: bash, zsh, fish, powershell

  apm completion bash --install
  eval "$(apm completion zsh)"`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false, "Install completions into your shell's completion directory")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	sc, ok := shellCompletions[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
	}

	if !completionInstall {
		// Hints go to stderr so the script can be piped.
		fmt.Fprintf(cmd.ErrOrStderr(), "# To load completions in your current session:\n#   %s\n", sc.loadCmd)
		return sc.generate(cmd.OutOrStdout())
	}

	if sc.target == nil {
		return fmt.Errorf("automatic install is not supported for %s; add %q to your profile", args[0], sc.loadCmd)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target := sc.target(home)
	if err := writeCompletionFile(target, sc.generate); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s completions installed to %s\n", args[0], target)
	return nil
}

// writeCompletionFile creates target and its directory and writes the
// script into it, propagating close errors.
func writeCompletionFile(target string, generate func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}

	writeErr := generate(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}
