package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mergeTasksCmd = &cobra.Command{
	Use:   "merge-tasks <id1> <id2>",
	Short: "Merge the second task into the first",
	Long: `Merge two tasks. The result keeps the first task's IDs; titles, descriptions,
labels and dependencies are combined and merge_history records both
originals. References to the second task are redirected to the first.`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		merged, err := Backlog.MergeTasks(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged into %s: %s\n", merged.ID, merged.Title)
		return nil
	},
}

var dedupeIDsCmd = &cobra.Command{
	Use:   "dedupe-ids",
	Short: "Give fresh IDs to tasks that share one",
	Long: `Find tasks sharing a temporary or permanent ID. The first holder keeps it;
later ones receive a fresh T#### ID or a new UUID.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		repl, err := Backlog.DedupeIDs()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(repl) == 0 {
			fmt.Fprintln(out, "No duplicate IDs found.")
			return nil
		}
		for _, r := range repl {
			fmt.Fprintf(out, "%s %s -> %s (%s)\n", r.Kind, r.Old, r.New, r.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeTasksCmd, dedupeIDsCmd)
}
