package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
)

var (
	similarThreshold float64
	similarApply     bool
)

var similarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Find tasks with similar titles or descriptions",
	Long: `Compare every pair of tasks by title and by description. Pairs whose ratio is
above the threshold are listed. With --apply each task records the other in
its similar_tasks list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}
		if similarThreshold < 0 || similarThreshold > 1 {
			return fmt.Errorf("--threshold must be between 0 and 1: %w", core.ErrMalformedInput)
		}

		pairs, err := Backlog.Similar(similarThreshold, similarApply)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(pairs) == 0 {
			fmt.Fprintln(out, "No similar tasks found.")
			return nil
		}
		for _, p := range pairs {
			fmt.Fprintf(out, "%s ~ %s (%s)\n", p.A, p.B, p.Note())
		}
		if similarApply {
			fmt.Fprintf(out, "Recorded %d pair(s) in similar_tasks.\n", len(pairs))
		}
		return nil
	},
}

func init() {
	similarCmd.Flags().Float64Var(&similarThreshold, "threshold", 0, "Similarity threshold in (0,1]; 0 uses the configured value")
	similarCmd.Flags().BoolVar(&similarApply, "apply", false, "Record the pairs in each task's similar_tasks")
	rootCmd.AddCommand(similarCmd)
}
