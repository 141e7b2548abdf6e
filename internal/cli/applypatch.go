package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
)

var applyPatchForce bool

var applyPatchCmd = &cobra.Command{
	Use:   "apply-patch <patch.json>",
	Short: "Apply an RFC 6902 JSON Patch to the backlog",
	Long: `Apply a JSON Patch document to the backlog. Values may use ID_PLACEHOLDER,
which receives a fresh ID per occurrence, or ID_PLACEHOLDER_<n>, which
receives one fresh ID per distinct n so new tasks can refer to each other.

The patch is applied all or nothing. The result is validated before it is
written. A patch that removes more tasks than the guard allows needs --force.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("patch file %s: %w", args[0], core.ErrNotFound)
			}
			return fmt.Errorf("reading patch %s: %w", args[0], err)
		}
		res, err := Backlog.ApplyPatch(data, applyPatchForce)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Applied %d operation(s)\n", res.Operations)
		if len(res.AssignedIDs) > 0 {
			fmt.Fprintf(out, "Assigned IDs: %s\n", joinOrDash(res.AssignedIDs))
		}
		names := make([]string, 0, len(res.Named))
		for name := range res.Named {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %s_%s -> %s\n", core.IDPlaceholder, name, res.Named[name])
		}
		if res.BackupPath != "" {
			fmt.Fprintf(out, "Backup: %s\n", res.BackupPath)
		}
		return nil
	},
}

func init() {
	applyPatchCmd.Flags().BoolVar(&applyPatchForce, "force", false, "Apply even if the patch removes many tasks")
	rootCmd.AddCommand(applyPatchCmd)
}
