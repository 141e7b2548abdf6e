package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

var (
	addTaskType         string
	addTaskLabels       []string
	addTaskAssignableTo []string
	addTaskDue          string
	addTaskAppointment  string
	addTaskMust         []string
)

var addTaskCmd = &cobra.Command{
	Use:   "add-task <title> <description>",
	Short: "Add a new Open task with the lowest free ID",
	Long: `Add a new task to the backlog. The task gets the lowest T#### ID not held
by any live or archived task and a fresh permanent UUID.

--due and --appointment accept YYYY-MM-DD or a weekday name.
--must adds a blocking dependency on an existing task.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		nt := core.NewTask{
			Title:           args[0],
			Description:     args[1],
			Type:            models.TaskType(addTaskType),
			Labels:          addTaskLabels,
			AssignableTo:    addTaskAssignableTo,
			DueDate:         addTaskDue,
			AppointmentDate: addTaskAppointment,
		}
		if len(addTaskMust) > 0 {
			deps := &models.Dependencies{}
			for _, id := range addTaskMust {
				deps.Must = append(deps.Must, models.TaskDependency{TaskID: id, Reason: "added with --must"})
			}
			nt.Dependencies = deps
		}

		task, err := Backlog.AddTask(nt)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", task.ID, task.Title)
		return nil
	},
}

func init() {
	addTaskCmd.Flags().StringVar(&addTaskType, "type", string(models.TaskTypeTask), "Task type (task or project)")
	addTaskCmd.Flags().StringSliceVar(&addTaskLabels, "label", nil, "Label to attach (repeatable)")
	addTaskCmd.Flags().StringSliceVar(&addTaskAssignableTo, "assignable-to", nil, "Who may do the task, e.g. human or ai (repeatable)")
	addTaskCmd.Flags().StringVar(&addTaskDue, "due", "", "Due date (YYYY-MM-DD or weekday)")
	addTaskCmd.Flags().StringVar(&addTaskAppointment, "appointment", "", "Appointment date (YYYY-MM-DD or weekday)")
	addTaskCmd.Flags().StringSliceVar(&addTaskMust, "must", nil, "ID of a task that must be Done first (repeatable)")
	rootCmd.AddCommand(addTaskCmd)
}
