package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var expiredDate string

var expiredCmd = &cobra.Command{
	Use:   "expired",
	Short: "List tasks past their due date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		target, err := parseDateFlag("date", expiredDate)
		if err != nil {
			return err
		}
		tasks, err := Backlog.Expired(target)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintf(out, "No tasks overdue as of %s.\n", target.Format(time.DateOnly))
			return nil
		}
		for _, t := range tasks {
			fmt.Fprintf(out, "%s  due %s  [%s]  %s\n", t.ID, t.DueDate, t.Status, t.Title)
		}
		return nil
	},
}

func init() {
	expiredCmd.Flags().StringVar(&expiredDate, "date", "", "Reference date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(expiredCmd)
}
