package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the backlog to a timestamped backup file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		path, err := Backlog.Backup()
		if err != nil {
			return fmt.Errorf("backing up: %w", err)
		}
		if path == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No backlog to back up.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
