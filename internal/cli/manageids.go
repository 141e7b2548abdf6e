package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
)

// poolWarnUsage is the pool usage at which manage-ids starts warning.
const poolWarnUsage = 0.5

var idsNextCount int

var manageIDsCmd = &cobra.Command{
	Use:   "manage-ids",
	Short: "Inspect and allocate T#### task IDs",
	Long: `Inspect the temporary ID pool. IDs held by live tasks, archived tasks and
merge history are all treated as used, so an ID is never handed out twice.`,
}

var idsNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the lowest free IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}
		if idsNextCount < 1 {
			return fmt.Errorf("--count must be at least 1: %w", core.ErrMalformedInput)
		}

		ids, err := Backlog.NextIDs(idsNextCount)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return warnPoolUsage()
	},
}

var idsReleaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Report whether an ID can be reused",
	Long: `Report whether an ID is free. An ID becomes free only once no live task,
archived task or merge history entry holds it; this command never deletes
anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		alloc, err := Backlog.Allocator()
		if err != nil {
			return err
		}
		res := alloc.Release(args[0])
		out := cmd.OutOrStdout()
		switch {
		case !res.Valid:
			return fmt.Errorf("invalid ID %q (expected T0000-T9999): %w", res.ID, core.ErrMalformedInput)
		case res.InUse:
			fmt.Fprintf(out, "%s is still in use by %q; complete and archive the task first\n", res.ID, res.Title)
		default:
			fmt.Fprintf(out, "%s is not in use\n", res.ID)
		}
		return nil
	},
}

var idsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how much of the ID pool is used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		alloc, err := Backlog.Allocator()
		if err != nil {
			return err
		}
		st := alloc.Status()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Total IDs:     %d\n", st.Total)
		fmt.Fprintf(out, "Used IDs:      %d\n", st.Used)
		fmt.Fprintf(out, "Available IDs: %d\n", st.Available)
		fmt.Fprintf(out, "Usage:         %.1f%%\n", st.Usage*100)
		if ignored := alloc.Ignored(); len(ignored) > 0 {
			fmt.Fprintf(out, "Ignored malformed IDs: %s\n", joinOrDash(ignored))
		}
		return warnPoolUsage()
	},
}

var idsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List used IDs with their task titles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		alloc, err := Backlog.Allocator()
		if err != nil {
			return err
		}
		for _, id := range alloc.Used() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, alloc.Title(id))
		}
		return nil
	},
}

// warnPoolUsage logs a warning once half the pool is gone.
func warnPoolUsage() error {
	if Logger == nil {
		return nil
	}
	alloc, err := Backlog.Allocator()
	if err != nil {
		return err
	}
	if st := alloc.Status(); st.Usage >= poolWarnUsage {
		Logger.Warn("ID pool is filling up; archive finished tasks", "used", st.Used, "total", st.Total, "usage", fmt.Sprintf("%.1f%%", st.Usage*100))
	}
	return nil
}

func init() {
	idsNextCmd.Flags().IntVar(&idsNextCount, "count", 1, "How many IDs to print")
	manageIDsCmd.AddCommand(idsNextCmd, idsReleaseCmd, idsStatusCmd, idsListCmd)
	rootCmd.AddCommand(manageIDsCmd)
}
