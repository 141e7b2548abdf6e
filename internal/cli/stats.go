package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/pkg/models"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the backlog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		st, err := Backlog.Stats()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statsJSON {
			return printJSON(out, st)
		}

		fmt.Fprintf(out, "Tasks: %d (archived: %d)\n", st.Total, st.Archived)
		fmt.Fprintln(out, "\nBy status:")
		for _, s := range models.AllStatuses {
			fmt.Fprintf(out, "  %-12s %d\n", s, st.ByStatus[string(s)])
		}
		fmt.Fprintln(out, "\nBy type:")
		types := make([]string, 0, len(st.ByType))
		for t := range st.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "  %-12s %d\n", t, st.ByType[t])
		}
		if len(st.Labels) > 0 {
			fmt.Fprintln(out, "\nLabels:")
			for _, l := range st.Labels {
				fmt.Fprintf(out, "  %-12s %d\n", l.Label, l.Count)
			}
		}
		fmt.Fprintf(out, "\nID pool: %d/%d used (%.1f%%)\n", st.Pool.Used, st.Pool.Total, st.Pool.Usage*100)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output stats as JSON")
	rootCmd.AddCommand(statsCmd)
}
