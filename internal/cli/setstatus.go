package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

var setStatusCmd = &cobra.Command{
	Use:   "set-status <id> <status>",
	Short: "Change a task's status",
	Long: `Change a task's status to one of: Open, "In Progress", Blocked, Done.

Only the canonical spelling is accepted; use migrate to convert legacy files.`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return completeTaskIDs()(cmd, args, toComplete)
		}
		return completeStatuses(cmd, args, toComplete)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		status, err := models.ParseTaskStatus(args[1])
		if err != nil {
			return fmt.Errorf("%w: %w", err, core.ErrMalformedInput)
		}
		task, err := Backlog.SetStatus(args[0], status)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", task.ID, task.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setStatusCmd)
}
