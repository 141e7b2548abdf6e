package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
)

var graphOutput string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the dependency graph as Graphviz DOT",
	Long: `Render the dependency graph in DOT. Cyclic graphs are rendered too so the
cycle can be inspected.

Convert to an image with Graphviz, e.g. apm graph | dot -Tpng -o graph.png`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		g, err := Backlog.Graph()
		if err != nil {
			return err
		}
		dot := core.RenderDOT(g)
		if graphOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), dot)
			return nil
		}
		if err := os.WriteFile(graphOutput, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("writing graph to %s: %w", graphOutput, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", graphOutput)
		return nil
	},
}

func init() {
	graphCmd.Flags().StringVarP(&graphOutput, "output", "o", "", "Write DOT to this file instead of stdout")
	rootCmd.AddCommand(graphCmd)
}
