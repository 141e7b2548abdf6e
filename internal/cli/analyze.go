package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Split tasks into executable and blocked",
	Long: `Analyze dependencies between tasks. A task is executable when it is not Done
and every MUST prerequisite is Done and every human dependency is approved.
Each blocked task is listed with the reasons keeping it blocked.

Exits with an error when the dependency graph contains a cycle.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		report, err := Backlog.Analyze()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if analyzeJSON {
			return printJSON(out, report)
		}

		fmt.Fprintf(out, "Executable (%d):\n", len(report.Executable))
		for _, id := range report.Executable {
			fmt.Fprintf(out, "  %s\n", id)
		}
		fmt.Fprintf(out, "Blocked (%d):\n", len(report.Blocked))
		for _, b := range report.Blocked {
			fmt.Fprintf(out, "  %s\n", b.TaskID)
			for _, r := range b.Reasons {
				fmt.Fprintf(out, "    - %s\n", describeReason(r))
			}
		}
		if len(report.Dangling) > 0 {
			fmt.Fprintf(out, "Unknown prerequisites: %s\n", joinOrDash(report.Dangling))
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output the analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
