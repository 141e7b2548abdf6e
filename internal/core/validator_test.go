package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/nishio/ai-project-manager/pkg/models"
)

func minimalTask(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       "Write the report",
		"status":      "Open",
		"type":        "task",
		"description": "",
	}
}

func TestValidateTask_Minimal(t *testing.T) {
	if errs := ValidateTask(minimalTask("T0001")); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateTask_MissingFields(t *testing.T) {
	errs := ValidateTask(map[string]any{})
	if len(errs) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(errs), errs)
	}
	for i, f := range []string{"id", "title", "status", "type", "description"} {
		if errs[i] != "Missing required field: "+f {
			t.Errorf("errs[%d] = %q", i, errs[i])
		}
	}
}

func TestValidateTask_FieldRules(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  string
	}{
		{"short id", "id", "T12", "Task T12 - invalid temporary ID format (must be TXXXX)"},
		{"numeric id", "id", 12.0, "Task 12 - invalid temporary ID format (must be TXXXX)"},
		{"bad status", "status", "done", "Task T0001 - invalid status (must be Open/In Progress/Done/Blocked)"},
		{"bad type", "type", "epic", "Task T0001 - invalid type (must be task/project)"},
		{"bad uuid", "permanent_id", "not-a-uuid", "Task T0001 - invalid permanent_id format (must be UUID)"},
		{"labels not list", "labels", "urgent", "Task T0001 - labels must be a list"},
		{"assignable_to not list", "assignable_to", "human", "Task T0001 - assignable_to must be a list"},
		{"bad due date", "due_date", "2025/01/01", "Task T0001 - invalid date format: 2025/01/01 (must be YYYY-MM-DD or weekday)"},
		{"bad appointment", "appointment_date", "soon", "Task T0001 - invalid date format: soon (must be YYYY-MM-DD or weekday)"},
		{"bad visibility", "visibility", "team", "Task T0001 - visibility must be public or private"},
		{"bad security", "security_level", "secret", "Task T0001 - security_level must be normal/sensitive/confidential"},
		{"title not string", "title", 3.0, "Task T0001 - title must be a string"},
		{"subtasks not list", "subtasks", "none", "Task T0001 - subtasks must be a list"},
		{"dependencies not dict", "dependencies", []any{}, "Task T0001 - dependencies must be a dictionary"},
		{"similar not list", "similar_tasks", map[string]any{}, "Task T0001 - similar_tasks must be a list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := minimalTask("T0001")
			task[tt.field] = tt.value
			errs := ValidateTask(task)
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", errs)
			}
			if errs[0] != tt.want {
				t.Errorf("got %q, want %q", errs[0], tt.want)
			}
		})
	}
}

func TestValidateTask_AcceptedValues(t *testing.T) {
	task := minimalTask("T0001")
	task["permanent_id"] = "4b1c2d3e-5f60-4a7b-8c9d-0e1f2a3b4c5d"
	task["status"] = "In Progress"
	task["type"] = "project"
	task["labels"] = []any{"urgent"}
	task["assignable_to"] = []any{"human", "ai"}
	task["due_date"] = "2025-03-31"
	task["appointment_date"] = "Friday 10:00"
	task["visibility"] = "private"
	task["security_level"] = "confidential"
	task["subtasks"] = []any{}
	task["dependencies"] = map[string]any{
		"must":         []any{map[string]any{"task_id": "T0002", "reason": "needs data"}},
		"nice_to_have": []any{},
		"human": []any{map[string]any{
			"action": "approve", "assignee": "alice", "status": "waiting", "reason": "sign-off",
		}},
	}
	task["similar_tasks"] = []any{map[string]any{"task_id": "T0003", "similarity_score": 0.85, "note": "close"}}

	if errs := ValidateTask(task); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateTask_Dependencies(t *testing.T) {
	task := minimalTask("T0001")
	task["dependencies"] = map[string]any{
		"must": []any{
			map[string]any{"task_id": "T0002"},
			"T0003",
		},
		"nice_to_have": "T0004",
		"human": []any{map[string]any{
			"action": "approve", "assignee": "alice", "status": "pending", "reason": "x",
		}},
	}
	errs := ValidateTask(task)
	want := []string{
		"Task T0001 - dependencies.must[0] missing reason",
		"Task T0001 - dependencies.must[1] must be a dictionary",
		"Task T0001 - dependencies.nice_to_have must be a list",
		"Task T0001 - dependencies.human[0] invalid status (must be waiting/approved/rejected)",
	}
	if len(errs) != len(want) {
		t.Fatalf("got %v, want %v", errs, want)
	}
	for i := range want {
		if errs[i] != want[i] {
			t.Errorf("errs[%d] = %q, want %q", i, errs[i], want[i])
		}
	}
}

func TestValidateTask_SimilarityScoreRange(t *testing.T) {
	for _, score := range []any{-0.1, 1.5, "high"} {
		task := minimalTask("T0001")
		task["similar_tasks"] = []any{map[string]any{"task_id": "T0002", "similarity_score": score, "note": "n"}}
		errs := ValidateTask(task)
		if len(errs) != 1 || !strings.Contains(errs[0], "invalid similarity_score") {
			t.Errorf("score %v: got %v", score, errs)
		}
	}
}

func TestValidateTask_DoesNotModifyInput(t *testing.T) {
	task := minimalTask("bad")
	task["labels"] = "x"
	before := len(task)
	ValidateTask(task)
	if len(task) != before || task["labels"] != "x" {
		t.Error("ValidateTask modified its input")
	}
}

func TestIsValidDateValue(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2025-01-31", true},
		{"2025-02-30", false},
		{"月曜", true},
		{"金曜日", true},
		{"monday", true},
		{"Friday afternoon", true},
		{"tomorrow", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidDateValue(tt.in); got != tt.want {
			t.Errorf("IsValidDateValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateBacklog_NonObjectEntry(t *testing.T) {
	errs := ValidateBacklog([]any{minimalTask("T0001"), "oops"})
	if len(errs) != 1 || errs[0] != "Task at index 1 must be a dictionary" {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateBacklog_DuplicateIDs(t *testing.T) {
	a := minimalTask("T0001")
	a["title"] = "First"
	b := minimalTask("T0001")
	b["title"] = "Second"
	errs := ValidateBacklog([]any{a, b})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	want := `Duplicate temporary ID: T0001 ("First" and "Second")`
	if errs[0] != want {
		t.Errorf("got %q, want %q", errs[0], want)
	}
	if err := (&ValidationError{Errors: errs}); !errors.Is(err, ErrDuplicateID) {
		t.Error("duplicate validation error should match ErrDuplicateID")
	}
}

func TestValidateBacklog_DuplicatePermanentIDs(t *testing.T) {
	uuid := "4b1c2d3e-5f60-4a7b-8c9d-0e1f2a3b4c5d"
	a := minimalTask("T0001")
	a["permanent_id"] = uuid
	b := minimalTask("T0002")
	b["permanent_id"] = uuid
	errs := ValidateBacklog([]any{a, b})
	if len(errs) != 1 || !strings.HasPrefix(errs[0], "Duplicate permanent ID: "+uuid) {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateBacklog_Subtasks(t *testing.T) {
	child := minimalTask("T0001")
	bad := minimalTask("T0003")
	bad["status"] = "Later"
	parent := minimalTask("T0002")
	parent["type"] = "project"
	parent["subtasks"] = []any{child, bad, 42.0}
	errs := ValidateBacklog([]any{minimalTask("T0001"), parent})

	want := []string{
		"Task T0003 - invalid status (must be Open/In Progress/Done/Blocked)",
		"Task at index 1.subtasks.2 must be a dictionary",
		`Duplicate temporary ID: T0001 ("Write the report" and "Write the report")`,
	}
	if len(errs) != len(want) {
		t.Fatalf("got %v, want %v", errs, want)
	}
	for i := range want {
		if errs[i] != want[i] {
			t.Errorf("errs[%d] = %q, want %q", i, errs[i], want[i])
		}
	}
}

func TestValidateTasks_Typed(t *testing.T) {
	tasks := []models.Task{
		{ID: "T0001", Title: "A", Status: models.StatusOpen, Type: models.TaskTypeTask},
		{ID: "T0001", Title: "B", Status: "Someday", Type: models.TaskTypeTask},
	}
	errs, err := ValidateTasks(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected status and duplicate errors, got %v", errs)
	}
}

func TestFindDuplicateIDs(t *testing.T) {
	tasks := []models.Task{
		{ID: "T0001", Title: "A"},
		{ID: "T0002", Title: "B", Subtasks: []models.Task{{ID: "T0001", Title: "C"}}},
		{ID: "T0002", Title: "D"},
	}
	dups := FindDuplicateIDs(tasks)
	if len(dups) != 2 {
		t.Fatalf("expected 2 duplicates, got %d", len(dups))
	}
	if dups[0].ID != "T0001" || len(dups[0].Titles) != 2 || dups[0].Titles[1] != "C" {
		t.Errorf("unexpected first duplicate: %+v", dups[0])
	}
	if !errors.Is(dups[1], ErrDuplicateID) {
		t.Error("DuplicateIDError should unwrap to ErrDuplicateID")
	}
}

func TestCheckReferences(t *testing.T) {
	tasks := []models.Task{
		{ID: "T0001", Dependencies: &models.Dependencies{
			Must:       []models.TaskDependency{{TaskID: "T0002"}, {TaskID: "T0404"}},
			NiceToHave: []models.TaskDependency{{TaskID: "T0500"}},
		}},
		{ID: "T0002"},
	}
	known := CollectUsedIDs(tasks, nil)
	msgs := CheckReferences(tasks, known)
	want := []string{
		"Task T0001 - dependencies.must references unknown task T0404",
		"Task T0001 - dependencies.nice_to_have references unknown task T0500",
	}
	if len(msgs) != len(want) {
		t.Fatalf("got %v, want %v", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i], want[i])
		}
	}
}

func TestValidateEnvelope(t *testing.T) {
	if err := ValidateEnvelope(map[string]any{"tasks": []any{}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, doc := range []any{
		map[string]any{},
		map[string]any{"tasks": "none"},
		[]any{},
	} {
		err := ValidateEnvelope(doc)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("doc %v: expected *ValidationError, got %v", doc, err)
			continue
		}
		if !strings.HasPrefix(ve.Errors[0], "Invalid format:") {
			t.Errorf("doc %v: unexpected message %q", doc, ve.Errors[0])
		}
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("doc %v: expected ErrMalformedInput", doc)
		}
	}
}
