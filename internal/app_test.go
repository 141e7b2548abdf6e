package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nishio/ai-project-manager/internal/cli"
	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/logging"
	"github.com/nishio/ai-project-manager/internal/storage"
	"github.com/nishio/ai-project-manager/pkg/models"
)

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(HomeEnv, "")
	t.Chdir(subDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, tmpDir, core.ConfigFileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, "")
	t.Chdir(tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, tmpDir)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Config.Paths.BacklogPath != filepath.Join(tmpDir, "tasks", "backlog.json") {
		t.Errorf("backlog path = %q", app.Config.Paths.BacklogPath)
	}
	if app.Backlog == nil || app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil || app.LLM == nil {
		t.Errorf("expected every service wired: %+v", app)
	}
	if app.Notifier != nil {
		t.Error("no notifier without a webhook")
	}
	if cli.Backlog != app.Backlog || cli.Config != app.Config {
		t.Error("cli vars not wired")
	}

	if _, err := app.Backlog.AddTask(core.NewTask{Title: "first", Description: ""}); err != nil {
		t.Fatal(err)
	}
	events, err := os.ReadFile(filepath.Join(tmpDir, ".apm_events.jsonl"))
	if err != nil || !strings.Contains(string(events), `"task.created"`) {
		t.Errorf("expected task.created in event log, got %q, %v", events, err)
	}
}

func TestNewApp_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := `paths:
  backlog: data/tasks.json
notifications:
  slack:
    webhook_url: https://hooks.slack.example/T000
alerts:
  blocked_hours: 24
`
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if app.Config.Paths.BacklogPath != filepath.Join(tmpDir, "data", "tasks.json") {
		t.Errorf("backlog path = %q", app.Config.Paths.BacklogPath)
	}
	if app.Notifier == nil {
		t.Error("expected a Slack notifier")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("similarity:\n  threshold: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(tmpDir); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected invalid configuration error, got %v", err)
	}
}

func TestBacklogSnapshot(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBacklogStore(models.StorePaths{
		BacklogPath: filepath.Join(dir, "backlog.json"),
		ArchiveDir:  filepath.Join(dir, "archive"),
		BackupDir:   filepath.Join(dir, "backup"),
	}, logging.Discard())
	tasks := []models.Task{
		{ID: "T0000", Title: "done", Status: models.StatusDone, Type: models.TaskTypeTask, DueDate: "2025-01-01"},
		{ID: "T0001", Title: "late", Status: models.StatusOpen, Type: models.TaskTypeTask, DueDate: "2025-03-01"},
		{ID: "T0002", Title: "stuck", Status: models.StatusBlocked, Type: models.TaskTypeTask,
			Dependencies: &models.Dependencies{Human: []models.HumanDependency{{Assignee: "bob", Action: "sign", Status: models.HumanWaiting}}}},
	}
	if err := store.Save(tasks); err != nil {
		t.Fatal(err)
	}
	backlog := core.NewBacklogService(store, nil, logging.Discard(), core.ServiceOptions{MaxUnexplainedRemovals: 5})
	now := func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }

	snap, err := backlogSnapshot(backlog, now)()
	if err != nil {
		t.Fatal(err)
	}
	if snap.PoolUsed != 3 || snap.PoolTotal != core.PoolSize || snap.OpenTasks != 2 {
		t.Errorf("unexpected counts %+v", snap)
	}
	if len(snap.Overdue) != 1 || snap.Overdue[0].ID != "T0001" {
		t.Errorf("overdue = %+v", snap.Overdue)
	}
	if len(snap.HumanWaiting) != 1 || snap.HumanWaiting[0].Assignee != "bob" {
		t.Errorf("human waiting = %+v", snap.HumanWaiting)
	}
	if len(snap.Blocked) != 1 || snap.Blocked[0] != "T0002" {
		t.Errorf("blocked = %v", snap.Blocked)
	}
}

func TestBacklogSnapshot_Cycle(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBacklogStore(models.StorePaths{
		BacklogPath: filepath.Join(dir, "backlog.json"),
		ArchiveDir:  filepath.Join(dir, "archive"),
		BackupDir:   filepath.Join(dir, "backup"),
	}, logging.Discard())
	tasks := []models.Task{
		{ID: "T0001", Title: "a", Status: models.StatusOpen, Type: models.TaskTypeTask,
			Dependencies: &models.Dependencies{
				Must:  []models.TaskDependency{{TaskID: "T0002"}},
				Human: []models.HumanDependency{{Assignee: "carol", Action: "approve", Status: models.HumanWaiting}},
			}},
		{ID: "T0002", Title: "b", Status: models.StatusOpen, Type: models.TaskTypeTask,
			Dependencies: &models.Dependencies{Must: []models.TaskDependency{{TaskID: "T0001"}}}},
	}
	if err := store.Save(tasks); err != nil {
		t.Fatal(err)
	}
	backlog := core.NewBacklogService(store, nil, logging.Discard(), core.ServiceOptions{MaxUnexplainedRemovals: 5})

	snap, err := backlogSnapshot(backlog, time.Now)()
	if err != nil {
		t.Fatalf("a cycle should not fail the snapshot: %v", err)
	}
	if len(snap.HumanWaiting) != 1 || snap.HumanWaiting[0].TaskID != "T0001" {
		t.Errorf("human waiting = %+v", snap.HumanWaiting)
	}
}
