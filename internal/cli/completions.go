package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// completeTaskIDs returns a completion function that lists task IDs with
// their titles, optionally skipping tasks in the given statuses.
func completeTaskIDs(excludeStatuses ...models.TaskStatus) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if Backlog == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		tasks, err := Backlog.Tasks()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		exclude := make(map[models.TaskStatus]bool)
		for _, s := range excludeStatuses {
			exclude[s] = true
		}

		var ids []string
		for _, task := range core.FlattenTasks(tasks) {
			if exclude[task.Status] {
				continue
			}
			if toComplete == "" || strings.HasPrefix(task.ID, strings.ToUpper(toComplete)) {
				ids = append(ids, task.ID+"\t"+task.Title)
			}
		}

		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeStatuses completes the canonical status values.
func completeStatuses(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 1 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	out := make([]string, 0, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out = append(out, string(s))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
