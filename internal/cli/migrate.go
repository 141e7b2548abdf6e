package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateForce bool

var migrateCmd = &cobra.Command{
	Use:   "migrate <legacy.yaml>",
	Short: "Import a legacy YAML backlog",
	Long: `Import a YAML backlog into the JSON backlog, mapping legacy status
spellings (todo, doing, completed, ...) onto Open, In Progress, Blocked and
Done. The existing backlog is backed up and replaced; --force is needed when
that would drop many existing tasks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		res, err := Backlog.Migrate(args[0], migrateForce)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d task(s)\n", res.Imported)
		if len(res.Normalized) > 0 {
			fmt.Fprintf(out, "Normalized status: %s\n", joinOrDash(res.Normalized))
		}
		if res.BackupPath != "" {
			fmt.Fprintf(out, "Backup: %s\n", res.BackupPath)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Replace the backlog even if many tasks would disappear")
	rootCmd.AddCommand(migrateCmd)
}
