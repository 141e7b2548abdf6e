package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TaskType distinguishes plain tasks from projects that carry subtasks.
type TaskType string

const (
	TaskTypeTask    TaskType = "task"
	TaskTypeProject TaskType = "project"
)

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "Open"
	StatusInProgress TaskStatus = "In Progress"
	StatusDone       TaskStatus = "Done"
	StatusBlocked    TaskStatus = "Blocked"
)

// AllStatuses lists the canonical statuses in lifecycle order.
var AllStatuses = []TaskStatus{StatusOpen, StatusInProgress, StatusBlocked, StatusDone}

// ParseTaskStatus accepts only the canonical spelling of a status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q (must be Open/In Progress/Done/Blocked)", s)
}

// NormalizeLegacyStatus maps the lower-case spellings written by older
// tooling onto the canonical enum. Canonical values pass through unchanged.
func NormalizeLegacyStatus(s string) (TaskStatus, bool) {
	if st, err := ParseTaskStatus(s); err == nil {
		return st, true
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "todo":
		return StatusOpen, true
	case "in progress", "in_progress", "doing":
		return StatusInProgress, true
	case "done", "closed", "completed":
		return StatusDone, true
	case "blocked":
		return StatusBlocked, true
	}
	return "", false
}

// Visibility controls whether a task may be shown outside the owner's tools.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// SecurityLevel classifies the sensitivity of a task's content.
type SecurityLevel string

const (
	SecurityNormal       SecurityLevel = "normal"
	SecuritySensitive    SecurityLevel = "sensitive"
	SecurityConfidential SecurityLevel = "confidential"
)

// HumanDependencyStatus is the state of a pending human action.
type HumanDependencyStatus string

const (
	HumanWaiting  HumanDependencyStatus = "waiting"
	HumanApproved HumanDependencyStatus = "approved"
	HumanRejected HumanDependencyStatus = "rejected"
)

// TaskDependency is a prerequisite on another task.
type TaskDependency struct {
	TaskID string `json:"task_id" yaml:"task_id"`
	Reason string `json:"reason" yaml:"reason"`
}

// HumanDependency is a prerequisite gated on a person doing something.
type HumanDependency struct {
	Action   string                `json:"action" yaml:"action"`
	Assignee string                `json:"assignee" yaml:"assignee"`
	Status   HumanDependencyStatus `json:"status" yaml:"status"`
	Reason   string                `json:"reason" yaml:"reason"`
}

// Dependencies groups the three independent kinds of prerequisites.
type Dependencies struct {
	Must       []TaskDependency  `json:"must,omitempty" yaml:"must,omitempty"`
	NiceToHave []TaskDependency  `json:"nice_to_have,omitempty" yaml:"nice_to_have,omitempty"`
	Human      []HumanDependency `json:"human,omitempty" yaml:"human,omitempty"`
}

// IsEmpty reports whether no dependency of any kind is declared.
func (d *Dependencies) IsEmpty() bool {
	return d == nil || (len(d.Must) == 0 && len(d.NiceToHave) == 0 && len(d.Human) == 0)
}

// SimilarTask is an advisory cross-link produced by similarity detection.
type SimilarTask struct {
	TaskID          string   `json:"task_id" yaml:"task_id"`
	SimilarityScore *float64 `json:"similarity_score,omitempty" yaml:"similarity_score,omitempty"`
	Note            string   `json:"note" yaml:"note"`
}

// MergedTaskRef identifies one of the tasks folded into a merged task.
type MergedTaskRef struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// MergeHistory records where a merged task came from.
type MergeHistory struct {
	MergedAt      string          `json:"merged_at" yaml:"merged_at"`
	OriginalTasks []MergedTaskRef `json:"original_tasks" yaml:"original_tasks"`
}

// Task is a single backlog entry identified by a short T#### ID.
type Task struct {
	ID              string        `json:"id" yaml:"id"`
	PermanentID     string        `json:"permanent_id,omitempty" yaml:"permanent_id,omitempty"`
	Title           string        `json:"title" yaml:"title"`
	Status          TaskStatus    `json:"status" yaml:"status"`
	Type            TaskType      `json:"type,omitempty" yaml:"type,omitempty"`
	Description     string        `json:"description" yaml:"description"`
	Labels          []string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	AssignableTo    []string      `json:"assignable_to,omitempty" yaml:"assignable_to,omitempty"`
	Dependencies    *Dependencies `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	SimilarTasks    []SimilarTask `json:"similar_tasks,omitempty" yaml:"similar_tasks,omitempty"`
	DueDate         string        `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	AppointmentDate string        `json:"appointment_date,omitempty" yaml:"appointment_date,omitempty"`
	Visibility      Visibility    `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	SecurityLevel   SecurityLevel `json:"security_level,omitempty" yaml:"security_level,omitempty"`
	Subtasks        []Task        `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
	CompletionTime  string        `json:"completion_time,omitempty" yaml:"completion_time,omitempty"`
	MergeHistory    *MergeHistory `json:"merge_history,omitempty" yaml:"merge_history,omitempty"`

	// Extra holds keys this type does not model so they survive a rewrite.
	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

// IsProject reports whether the task is a project that may carry subtasks.
func (t *Task) IsProject() bool {
	return t.Type == TaskTypeProject
}

// IsDone reports whether the task has reached the Done status.
func (t *Task) IsDone() bool {
	return t.Status == StatusDone
}

// HasLabel reports whether the task carries the given label.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AssignableToHuman reports whether a person may carry out the task.
func (t *Task) AssignableToHuman() bool {
	for _, a := range t.AssignableTo {
		if a == "human" {
			return true
		}
	}
	return false
}

// taskFields is Task without its methods, used to avoid recursion in the
// JSON hooks below.
type taskFields Task

var knownTaskKeys = map[string]bool{
	"id": true, "permanent_id": true, "title": true, "status": true, "type": true,
	"description": true, "labels": true, "assignable_to": true, "dependencies": true,
	"similar_tasks": true, "due_date": true, "appointment_date": true, "visibility": true,
	"security_level": true, "subtasks": true, "completion_time": true, "merge_history": true,
}

// UnmarshalJSON decodes the modelled fields and keeps everything else in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	var fields taskFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if knownTaskKeys[k] {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[k] = v
	}
	*t = Task(fields)
	return nil
}

// MarshalJSON writes the modelled fields in declaration order followed by
// any Extra keys sorted by name. HTML characters are not escaped.
func (t Task) MarshalJSON() ([]byte, error) {
	base, err := encodeNoEscape(taskFields(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		if !knownTaskKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(bytes.TrimSuffix(base, []byte("}")))
	for _, k := range keys {
		name, err := encodeNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(t.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BacklogFile is the on-disk shape of the backlog and of every archive file.
type BacklogFile struct {
	Tasks []Task `json:"tasks" yaml:"tasks"`
}
