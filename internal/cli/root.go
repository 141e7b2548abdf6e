package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/logging"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var logLevelFlag string

var rootCmd = &cobra.Command{
	Use:   "apm",
	Short: "Personal task backlog manager",
	Long: `apm keeps a personal task backlog in a single JSON file.

It allocates short T#### IDs, validates task records, analyzes dependencies
between tasks, archives finished work and accepts JSON Patch documents
produced by assistants.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("log-level") {
			return nil
		}
		switch logLevelFlag {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("invalid --log-level %q (use debug, info, warn or error)", logLevelFlag)
		}
		if Logger != nil {
			Logger.SetLevel(logging.ParseLevel(logLevelFlag))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "apm %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Console log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
