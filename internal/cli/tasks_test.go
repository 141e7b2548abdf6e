package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

func TestTaskCommands_NotInitialized(t *testing.T) {
	orig := Backlog
	defer func() { Backlog = orig }()
	Backlog = nil

	for _, args := range [][]string{
		{"add-task", "a", "b"},
		{"mark-done", "T0001"},
		{"set-status", "T0001", "Open"},
		{"show-tasks", "T0001"},
		{"validate-backlog"},
		{"analyze"},
		{"stats"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := runCLI(t, args...)
			if err == nil || !strings.Contains(err.Error(), "not initialized") {
				t.Errorf("expected not initialized error, got %v", err)
			}
		})
	}
}

func TestAddTask(t *testing.T) {
	env := newCLIEnv(t, seedTasks()...)

	out, err := runCLI(t, "add-task", "Buy adapter", "Type C plug",
		"--label", "travel", "--label", "shopping", "--assignable-to", "human", "--due", "2025-06-01", "--must", "T0003")
	if err != nil {
		t.Fatalf("add-task: %v", err)
	}
	if !strings.Contains(out, "Added T0004: Buy adapter") {
		t.Errorf("unexpected output %q", out)
	}

	tasks := env.tasks(t)
	added := tasks[len(tasks)-1]
	if added.ID != "T0004" || added.Status != models.StatusOpen || added.Type != models.TaskTypeTask {
		t.Errorf("unexpected task %+v", added)
	}
	if added.PermanentID == "" {
		t.Error("expected a permanent ID")
	}
	if strings.Join(added.Labels, ",") != "travel,shopping" || added.DueDate != "2025-06-01" {
		t.Errorf("flags not applied: %+v", added)
	}
	if added.Dependencies == nil || len(added.Dependencies.Must) != 1 || added.Dependencies.Must[0].TaskID != "T0003" {
		t.Errorf("expected must dependency on T0003, got %+v", added.Dependencies)
	}

	// Flags do not leak into the next invocation.
	if _, err := runCLI(t, "add-task", "Pack", "Bags"); err != nil {
		t.Fatal(err)
	}
	tasks = env.tasks(t)
	if last := tasks[len(tasks)-1]; last.ID != "T0005" || len(last.Labels) != 0 || last.Dependencies != nil {
		t.Errorf("unexpected second task %+v", last)
	}
}

func TestAddTask_InvalidDate(t *testing.T) {
	env := newCLIEnv(t, seedTasks()...)

	_, err := runCLI(t, "add-task", "Bad", "date", "--due", "someday")
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(env.tasks(t)) != 3 {
		t.Error("invalid task must not be written")
	}
}

func TestMarkDone(t *testing.T) {
	env := newCLIEnv(t, seedTasks()...)

	out, err := runCLI(t, "mark-done", "2", "t1")
	if err != nil {
		t.Fatalf("mark-done: %v", err)
	}
	if !strings.Contains(out, "T0002 marked Done") || !strings.Contains(out, "T0001 marked Done") {
		t.Errorf("unexpected output %q", out)
	}
	tasks := env.tasks(t)
	if tasks[1].Status != models.StatusDone || tasks[1].Subtasks[0].Status != models.StatusDone {
		t.Errorf("tasks not marked done: %+v", tasks[1])
	}
	if tasks[1].CompletionTime == "" {
		t.Error("expected completion time")
	}
}

func TestMarkDone_UnknownIDWritesNothing(t *testing.T) {
	env := newCLIEnv(t, seedTasks()...)

	_, err := runCLI(t, "mark-done", "T0001", "T0999")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if env.tasks(t)[1].Status != models.StatusOpen {
		t.Error("no task should change when one ID is unknown")
	}
}

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr error
	}{
		{"canonical", "In Progress", nil},
		{"blocked", "Blocked", nil},
		{"legacy spelling", "doing", core.ErrMalformedInput},
		{"unknown", "Someday", core.ErrMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t, seedTasks()...)
			out, err := runCLI(t, "set-status", "T0001", tt.status)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, "T0001 is now "+tt.status) {
				t.Errorf("unexpected output %q", out)
			}
			if got := env.tasks(t)[1].Status; string(got) != tt.status {
				t.Errorf("status = %s, want %s", got, tt.status)
			}
		})
	}
}

func TestShowTasks_Formats(t *testing.T) {
	newCLIEnv(t, seedTasks()...)

	tests := []struct {
		format string
		want   string
	}{
		{"text", "Title: Reserve hotel\nID: T0002\nStatus: Open\nDescription: Near the station\n"},
		{"markdown", "## Reserve hotel\n\n- ID: T0002\n- Status: Open\n- Description: Near the station\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := runCLI(t, "show-tasks", "2", "--format", tt.format)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestShowTasks_JSON(t *testing.T) {
	newCLIEnv(t, seedTasks()...)

	out, err := runCLI(t, "show-tasks", "T0003", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var task models.Task
	if err := json.Unmarshal([]byte(out), &task); err != nil {
		t.Fatalf("output is not a task: %v\n%s", err, out)
	}
	if task.ID != "T0003" || task.Dependencies == nil || len(task.Dependencies.Human) != 1 {
		t.Errorf("unexpected task %+v", task)
	}
	if !strings.Contains(out, "\n  \"id\"") {
		t.Errorf("expected two-space indentation:\n%s", out)
	}
}

func TestShowTasks_Errors(t *testing.T) {
	newCLIEnv(t, seedTasks()...)

	if _, err := runCLI(t, "show-tasks", "T0042"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := runCLI(t, "show-tasks", "T0001", "--format", "yaml"); !errors.Is(err, core.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestFormatTask_KeepsNonASCII(t *testing.T) {
	task := models.Task{ID: "T0007", Title: "牛乳を買う", Status: models.StatusOpen, Type: models.TaskTypeTask, Description: "<2本>"}
	out, err := formatTask(task, formatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "牛乳を買う") || !strings.Contains(out, "<2本>") {
		t.Errorf("expected literal text, got %s", out)
	}
}
