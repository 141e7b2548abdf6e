package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
)

var showTasksFormat string

var showTasksCmd = &cobra.Command{
	Use:   "show-tasks <id>...",
	Short: "Print tasks in text, markdown or JSON",
	Long: `Print the tasks matching the given IDs. IDs may be given as T0014, t14 or 14.
Subtasks of projects are matched too.`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}
		if !validFormat(showTasksFormat) {
			return fmt.Errorf("invalid --format %q (use json, markdown or text): %w", showTasksFormat, core.ErrMalformedInput)
		}

		tasks, err := Backlog.FindTasks(args...)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return fmt.Errorf("no task matches %v: %w", args, core.ErrNotFound)
		}
		for _, t := range tasks {
			out, err := formatTask(t, showTasksFormat)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return nil
	},
}

func init() {
	showTasksCmd.Flags().StringVar(&showTasksFormat, "format", formatText, "Output format (json, markdown, text)")
	rootCmd.AddCommand(showTasksCmd)
}
