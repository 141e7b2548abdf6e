package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateBacklogCmd = &cobra.Command{
	Use:   "validate-backlog [path]",
	Short: "Validate a backlog file",
	Long: `Validate a backlog file: the {"tasks": [...]} envelope, every task record,
ID and permanent ID uniqueness, and dependency references.

With no argument the configured backlog is validated. Dangling references are
reported as warnings unless validation.strict_references is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		report, err := Backlog.Validate(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, w := range report.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		for _, e := range report.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		if !report.Valid() {
			return fmt.Errorf("%s: %w", report.Path, report.Err())
		}
		fmt.Fprintf(out, "%s is valid\n", report.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateBacklogCmd)
}
