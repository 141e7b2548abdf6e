package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/pkg/models"
)

var markDoneCmd = &cobra.Command{
	Use:   "mark-done <id>...",
	Short: "Mark tasks Done",
	Long: `Mark one or more tasks Done and stamp their completion time.

IDs may be given as T0014, t14 or 14. Nothing is written if any ID is unknown.`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusDone),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		done, err := Backlog.MarkDone(args...)
		if err != nil {
			return err
		}
		for _, t := range done {
			fmt.Fprintf(cmd.OutOrStdout(), "%s marked Done: %s\n", t.ID, t.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(markDoneCmd)
}
