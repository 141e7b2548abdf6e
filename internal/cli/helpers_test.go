package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/logging"
	"github.com/nishio/ai-project-manager/internal/observability"
	"github.com/nishio/ai-project-manager/internal/storage"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// cliEnv is a backlog in a temp directory wired into the package-level
// service vars for the duration of a test.
type cliEnv struct {
	dir    string
	paths  models.StorePaths
	store  storage.BacklogStore
	events observability.EventLog
}

func newCLIEnv(t *testing.T, tasks ...models.Task) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	paths := models.StorePaths{
		BacklogPath: filepath.Join(dir, "tasks", "backlog.json"),
		ArchiveDir:  filepath.Join(dir, "tasks", "archive"),
		BackupDir:   filepath.Join(dir, "tasks", "backup"),
		EventLog:    filepath.Join(dir, ".apm_events.jsonl"),
	}
	store := storage.NewBacklogStore(paths, logging.Discard())
	if len(tasks) > 0 {
		if err := store.Save(tasks); err != nil {
			t.Fatalf("seeding backlog: %v", err)
		}
	}
	events, err := observability.NewJSONLEventLog(paths.EventLog)
	if err != nil {
		t.Fatalf("opening event log: %v", err)
	}

	origBacklog, origConfig, origLogger, origLLM := Backlog, Config, Logger, LLM
	origEvents, origAlerts, origMetrics, origNotifier := EventLog, AlertEngine, MetricsCalc, Notifier
	t.Cleanup(func() {
		_ = events.Close()
		Backlog, Config, Logger, LLM = origBacklog, origConfig, origLogger, origLLM
		EventLog, AlertEngine, MetricsCalc, Notifier = origEvents, origAlerts, origMetrics, origNotifier
	})

	Logger = logging.Discard()
	Config = core.DefaultConfig(dir)
	Backlog = core.NewBacklogService(store, observability.NewRecorder(events), Logger, core.ServiceOptions{
		MaxUnexplainedRemovals: 5,
		SimilarityThreshold:    core.DefaultSimilarityThreshold,
	})
	EventLog = events
	MetricsCalc = observability.NewMetricsCalculator(events)
	AlertEngine = nil
	Notifier = nil
	LLM = nil

	return &cliEnv{dir: dir, paths: paths, store: store, events: events}
}

// tasks reads the backlog back from disk.
func (e *cliEnv) tasks(t *testing.T) []models.Task {
	t.Helper()
	tasks, err := e.store.Load()
	if err != nil {
		t.Fatalf("loading backlog: %v", err)
	}
	return tasks
}

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so values set by one test
// do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func seedTasks() []models.Task {
	return []models.Task{
		{
			ID:          "T0000",
			Title:       "Renew passport",
			Status:      models.StatusDone,
			Type:        models.TaskTypeTask,
			Description: "Photo booth first",
		},
		{
			ID:          "T0001",
			Title:       "Plan trip",
			Status:      models.StatusOpen,
			Type:        models.TaskTypeProject,
			Description: "Summer holiday",
			Labels:      []string{"travel"},
			Subtasks: []models.Task{{
				ID:          "T0002",
				Title:       "Reserve hotel",
				Status:      models.StatusOpen,
				Type:        models.TaskTypeTask,
				Description: "Near the station",
				Labels:      []string{"travel"},
				Dependencies: &models.Dependencies{
					Must: []models.TaskDependency{{TaskID: "T0003", Reason: "need dates"}},
				},
			}},
		},
		{
			ID:          "T0003",
			Title:       "Agree dates",
			Status:      models.StatusBlocked,
			Type:        models.TaskTypeTask,
			Description: "Check with the team",
			Dependencies: &models.Dependencies{
				Human: []models.HumanDependency{{Assignee: "alice", Action: "confirm leave", Status: models.HumanWaiting, Reason: "HR"}},
			},
		},
	}
}
