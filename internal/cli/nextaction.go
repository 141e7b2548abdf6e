package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/integration"
	"github.com/nishio/ai-project-manager/internal/logging"
)

var (
	nextActionDryRun bool
	nextActionModel  string
)

var nextActionCmd = &cobra.Command{
	Use:   "next-action",
	Short: "Ask the configured LLM which tasks to do today",
	Long: `Build a compact prompt from up to five executable Open tasks, ordered by
their earliest due or appointment date, and ask the configured model to
propose what to do today.

Prompts estimated above the token budget are refused. --dry-run prints the
prompt without sending it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backlog == nil {
			return fmt.Errorf("backlog service not initialized")
		}

		tasks, err := Backlog.Tasks()
		if err != nil {
			return err
		}
		var analysis *core.Analysis
		report, err := Backlog.Analyze()
		switch {
		case err == nil:
			analysis = &report.Analysis
		case errors.Is(err, core.ErrCyclicDependency):
			if Logger != nil {
				Logger.Warn("dependency cycle; blocked tasks are not filtered", "err", err)
			}
		default:
			return err
		}

		prompt, err := core.BuildNextActionPrompt(tasks, analysis)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if prompt.Candidates == 0 {
			fmt.Fprintln(out, "No executable Open tasks.")
			return nil
		}
		if Logger != nil {
			Logger.Info("next-action prompt", "candidates", prompt.Candidates, "included", prompt.Included, "tokens", prompt.EstimatedTokens)
		}
		if nextActionDryRun {
			fmt.Fprintln(out, prompt.Prompt)
			return nil
		}
		llm, err := completerFor(nextActionModel)
		if err != nil {
			return err
		}

		answer, err := llm.Complete(cmd.Context(), core.NextActionSystemPrompt, prompt.Prompt)
		if err != nil {
			return fmt.Errorf("asking for next action: %w", err)
		}
		fmt.Fprintln(out, answer)
		return nil
	},
}

// completerFor returns the configured LLM client, or a client for model when
// one is given.
func completerFor(model string) (integration.Completer, error) {
	if model == "" {
		if LLM == nil {
			return nil, fmt.Errorf("LLM client not initialized (check llm.host in %s)", core.ConfigFileName)
		}
		return LLM, nil
	}
	if Config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	logger := Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return integration.NewOllamaCompleter(integration.OllamaConfig{
		Host:       Config.LLM.Host,
		Model:      model,
		Timeout:    time.Duration(Config.LLM.TimeoutSeconds) * time.Second,
		MaxRetries: Config.LLM.MaxRetries,
	}, logger)
}

func init() {
	nextActionCmd.Flags().StringVar(&nextActionModel, "model", "", "Model to ask instead of llm.model")
	nextActionCmd.Flags().BoolVar(&nextActionDryRun, "dry-run", false, "Print the prompt instead of sending it")
	rootCmd.AddCommand(nextActionCmd)
}
