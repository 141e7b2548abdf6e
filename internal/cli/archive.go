package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var archiveDate string

var archiveTasksCmd = &cobra.Command{
	Use:   "archive-tasks",
	Short: "Move Done tasks into the dated archive file",
	Long: `Move Done tasks out of the backlog into <archive_dir>/YYYY-MM-DD.json.

Done tasks whose due date is before the archive date stay in the backlog and
are listed for review. A backup is taken before the backlog is rewritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		target, err := parseDateFlag("date", archiveDate)
		if err != nil {
			return err
		}
		res, err := Backlog.Archive(target)
		if err != nil {
			return fmt.Errorf("archiving tasks: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, t := range res.RetainedOverdue {
			fmt.Fprintf(out, "kept %s %q: Done but overdue (due %s), review before archiving\n", t.ID, t.Title, t.DueDate)
		}
		if len(res.Archived) == 0 {
			fmt.Fprintf(out, "No tasks to archive for %s.\n", res.Date.Format(time.DateOnly))
			return nil
		}
		fmt.Fprintf(out, "Archived %d task(s) to %s\n", len(res.Archived), res.ArchivePath)
		for _, t := range res.Archived {
			fmt.Fprintf(out, "  %s %s\n", t.ID, t.Title)
		}
		if res.BackupPath != "" {
			fmt.Fprintf(out, "Backup: %s\n", res.BackupPath)
		}
		return nil
	},
}

func init() {
	archiveTasksCmd.Flags().StringVar(&archiveDate, "date", "", "Archive date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(archiveTasksCmd)
}
