package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nishio/ai-project-manager/pkg/models"
)

const (
	duplicateTempPrefix = "Duplicate temporary ID:"
	duplicatePermPrefix = "Duplicate permanent ID:"
)

var requiredTaskFields = []string{"id", "title", "status", "type", "description"}

var (
	validStatuses       = []string{"Open", "In Progress", "Done", "Blocked"}
	validTypes          = []string{"task", "project"}
	validVisibilities   = []string{"public", "private"}
	validSecurityLevels = []string{"normal", "sensitive", "confidential"}
	validHumanStatuses  = []string{"waiting", "approved", "rejected"}
)

var weekdayPrefixes = []string{
	"月曜", "火曜", "水曜", "木曜", "金曜", "土曜", "日曜",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// ValidateTask checks one decoded task object and returns every problem
// found. An empty result means the task is valid. The input is not modified.
func ValidateTask(task map[string]any) []string {
	var errs []string
	for _, f := range requiredTaskFields {
		if _, ok := task[f]; !ok {
			errs = append(errs, "Missing required field: "+f)
		}
	}

	tid := "UNKNOWN"
	if raw, ok := task["id"]; ok {
		tid = fmt.Sprint(raw)
	}
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("Task %s - ", tid)+fmt.Sprintf(format, args...))
	}

	if raw, ok := task["id"]; ok {
		if s, isStr := raw.(string); !isStr || !IsValidID(s) {
			bad("invalid temporary ID format (must be TXXXX)")
		}
	}

	for _, f := range []string{"title", "description"} {
		if raw, ok := task[f]; ok {
			if _, isStr := raw.(string); !isStr {
				bad("%s must be a string", f)
			}
		}
	}

	if raw, ok := task["status"]; ok && !oneOf(raw, validStatuses) {
		bad("invalid status (must be Open/In Progress/Done/Blocked)")
	}
	if raw, ok := task["type"]; ok && !oneOf(raw, validTypes) {
		bad("invalid type (must be task/project)")
	}

	if raw, ok := task["permanent_id"]; ok {
		s, isStr := raw.(string)
		if !isStr || uuid.Validate(s) != nil {
			bad("invalid permanent_id format (must be UUID)")
		}
	}

	for _, f := range []string{"labels", "assignable_to"} {
		if raw, ok := task[f]; ok {
			if _, isList := raw.([]any); !isList {
				bad("%s must be a list", f)
			}
		}
	}

	if raw, ok := task["dependencies"]; ok {
		errs = append(errs, validateDependencies(raw, tid)...)
	}
	if raw, ok := task["similar_tasks"]; ok {
		errs = append(errs, validateSimilarTasks(raw, tid)...)
	}

	for _, f := range []string{"due_date", "appointment_date"} {
		raw, ok := task[f]
		if !ok {
			continue
		}
		s, isStr := raw.(string)
		if !isStr {
			bad("%s must be a string", f)
			continue
		}
		if !IsValidDateValue(s) {
			bad("invalid date format: %s (must be YYYY-MM-DD or weekday)", s)
		}
	}

	if raw, ok := task["visibility"]; ok && !oneOf(raw, validVisibilities) {
		bad("visibility must be public or private")
	}
	if raw, ok := task["security_level"]; ok && !oneOf(raw, validSecurityLevels) {
		bad("security_level must be normal/sensitive/confidential")
	}

	if raw, ok := task["subtasks"]; ok {
		if _, isList := raw.([]any); !isList {
			bad("subtasks must be a list")
		}
	}
	return errs
}

func validateDependencies(raw any, tid string) []string {
	deps, ok := raw.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("Task %s - dependencies must be a dictionary", tid)}
	}
	var errs []string
	for _, kind := range []string{"must", "nice_to_have", "human"} {
		rawList, present := deps[kind]
		if !present {
			continue
		}
		list, isList := rawList.([]any)
		if !isList {
			errs = append(errs, fmt.Sprintf("Task %s - dependencies.%s must be a list", tid, kind))
			continue
		}
		for i, rawDep := range list {
			prefix := fmt.Sprintf("Task %s - dependencies.%s[%d]", tid, kind, i)
			dep, isMap := rawDep.(map[string]any)
			if !isMap {
				errs = append(errs, prefix+" must be a dictionary")
				continue
			}
			required := []string{"task_id", "reason"}
			if kind == "human" {
				required = []string{"action", "assignee", "status", "reason"}
			}
			for _, f := range required {
				if _, has := dep[f]; !has {
					errs = append(errs, prefix+" missing "+f)
				}
			}
			if kind != "human" {
				continue
			}
			if st, has := dep["status"]; has && !oneOf(st, validHumanStatuses) {
				errs = append(errs, prefix+" invalid status (must be waiting/approved/rejected)")
			}
		}
	}
	return errs
}

func validateSimilarTasks(raw any, tid string) []string {
	list, ok := raw.([]any)
	if !ok {
		return []string{fmt.Sprintf("Task %s - similar_tasks must be a list", tid)}
	}
	var errs []string
	for i, rawEntry := range list {
		prefix := fmt.Sprintf("Task %s - similar_tasks[%d]", tid, i)
		entry, isMap := rawEntry.(map[string]any)
		if !isMap {
			errs = append(errs, prefix+" must be a dictionary")
			continue
		}
		if _, has := entry["task_id"]; !has {
			errs = append(errs, prefix+" missing task_id")
		}
		if _, has := entry["note"]; !has {
			errs = append(errs, prefix+" missing note")
		}
		if score, has := entry["similarity_score"]; has {
			f, isNum := toFloat(score)
			if !isNum || f < 0 || f > 1 {
				errs = append(errs, prefix+" invalid similarity_score (must be 0.0 <= score <= 1.0)")
			}
		}
	}
	return errs
}

// ValidateBacklog validates every entry of a decoded task list and checks
// that temporary and permanent IDs are unique. Subtasks of projects are
// validated and counted toward uniqueness as well.
func ValidateBacklog(tasks []any) []string {
	var errs []string
	records := make([]map[string]any, 0, len(tasks))
	var walk func(list []any, path string)
	walk = func(list []any, path string) {
		for i, raw := range list {
			task, ok := raw.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("Task at index %s%d must be a dictionary", path, i))
				continue
			}
			errs = append(errs, ValidateTask(task)...)
			records = append(records, task)
			if subs, isList := task["subtasks"].([]any); isList {
				walk(subs, fmt.Sprintf("%s%d.subtasks.", path, i))
			}
		}
	}
	walk(tasks, "")

	for _, dup := range findDuplicates(records, "id") {
		errs = append(errs, formatDuplicate(duplicateTempPrefix, dup)...)
	}
	for _, dup := range findDuplicates(records, "permanent_id") {
		errs = append(errs, formatDuplicate(duplicatePermPrefix, dup)...)
	}
	return errs
}

// ValidateTasks validates typed tasks by way of their JSON form so typed and
// raw callers share one rule set.
func ValidateTasks(tasks []models.Task) ([]string, error) {
	records, err := ToRecords(tasks)
	if err != nil {
		return nil, err
	}
	return ValidateBacklog(records), nil
}

// ToRecords converts typed tasks into the generic decoded form.
func ToRecords(tasks []models.Task) ([]any, error) {
	data, err := json.Marshal(models.BacklogFile{Tasks: tasks})
	if err != nil {
		return nil, fmt.Errorf("encoding tasks: %w", err)
	}
	var doc struct {
		Tasks []any `json:"tasks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding tasks: %w", err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []any{}
	}
	return doc.Tasks, nil
}

// FindDuplicateIDs reports every temporary ID held by more than one task,
// subtasks included, in order of first appearance.
func FindDuplicateIDs(tasks []models.Task) []*DuplicateIDError {
	return findTypedDuplicates(tasks, func(t models.Task) string { return t.ID })
}

// FindDuplicatePermanentIDs is FindDuplicateIDs for permanent IDs.
func FindDuplicatePermanentIDs(tasks []models.Task) []*DuplicateIDError {
	return findTypedDuplicates(tasks, func(t models.Task) string { return t.PermanentID })
}

func findTypedDuplicates(tasks []models.Task, key func(models.Task) string) []*DuplicateIDError {
	records := make([]map[string]any, 0, len(tasks))
	for _, t := range FlattenTasks(tasks) {
		rec := map[string]any{"title": t.Title}
		if k := key(t); k != "" {
			rec["key"] = k
		}
		records = append(records, rec)
	}
	return findDuplicates(records, "key")
}

func findDuplicates(records []map[string]any, field string) []*DuplicateIDError {
	byID := make(map[string]*DuplicateIDError)
	var order []string
	for _, rec := range records {
		id, ok := rec[field].(string)
		if !ok || id == "" {
			continue
		}
		title, _ := rec["title"].(string)
		entry, seen := byID[id]
		if !seen {
			entry = &DuplicateIDError{ID: id}
			byID[id] = entry
			order = append(order, id)
		}
		entry.Titles = append(entry.Titles, title)
	}
	var dups []*DuplicateIDError
	for _, id := range order {
		if len(byID[id].Titles) > 1 {
			dups = append(dups, byID[id])
		}
	}
	return dups
}

func formatDuplicate(prefix string, dup *DuplicateIDError) []string {
	msgs := make([]string, 0, len(dup.Titles)-1)
	for _, other := range dup.Titles[1:] {
		msgs = append(msgs, fmt.Sprintf("%s %s (%q and %q)", prefix, dup.ID, dup.Titles[0], other))
	}
	return msgs
}

// CheckReferences reports must and nice_to_have dependencies that point at
// IDs absent from known (live and archived tasks).
func CheckReferences(tasks []models.Task, known map[string]string) []string {
	var msgs []string
	for _, t := range FlattenTasks(tasks) {
		if t.Dependencies == nil {
			continue
		}
		check := func(kind string, deps []models.TaskDependency) {
			for _, d := range deps {
				if _, ok := known[d.TaskID]; !ok {
					msgs = append(msgs, fmt.Sprintf("Task %s - dependencies.%s references unknown task %s", t.ID, kind, d.TaskID))
				}
			}
		}
		check("must", t.Dependencies.Must)
		check("nice_to_have", t.Dependencies.NiceToHave)
	}
	return msgs
}

// IsValidDateValue reports whether s is an ISO date or starts with a weekday
// name (Japanese 月曜..日曜 or English, case-insensitive).
func IsValidDateValue(s string) bool {
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return true
	}
	lower := strings.ToLower(s)
	for _, day := range weekdayPrefixes {
		if strings.HasPrefix(lower, day) {
			return true
		}
	}
	return false
}

// ParseDueDate returns the calendar date of an ISO date string. Weekday
// shorthand and anything else unparseable reports false.
func ParseDueDate(s string) (time.Time, bool) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func oneOf(raw any, allowed []string) bool {
	s, ok := raw.(string)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
