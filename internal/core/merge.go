package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nishio/ai-project-manager/pkg/models"
)

const mergedDescriptionSeparator = "\n\n=== Merged task description ===\n"

// MergeTaskPair folds t2 into t1. The result keeps t1's ID, permanent ID,
// status and type; merge_history records both originals so t2's ID stays
// reserved.
func MergeTaskPair(t1, t2 models.Task, mergedAt time.Time) models.Task {
	merged := t1
	merged.Title = t1.Title + " + " + t2.Title
	merged.Description = t1.Description + mergedDescriptionSeparator + t2.Description
	if merged.PermanentID == "" {
		merged.PermanentID = t2.PermanentID
	}
	if merged.DueDate == "" {
		merged.DueDate = t2.DueDate
	}
	if merged.AppointmentDate == "" {
		merged.AppointmentDate = t2.AppointmentDate
	}
	merged.Labels = unionStrings(t1.Labels, t2.Labels)
	merged.AssignableTo = unionStrings(t1.AssignableTo, t2.AssignableTo)
	merged.Dependencies = mergeDependencies(t1.Dependencies, t2.Dependencies, t1.ID, t2.ID)
	merged.Subtasks = append(append([]models.Task(nil), t1.Subtasks...), t2.Subtasks...)

	var similar []models.SimilarTask
	seen := map[string]bool{t1.ID: true, t2.ID: true}
	for _, st := range append(append([]models.SimilarTask(nil), t1.SimilarTasks...), t2.SimilarTasks...) {
		if seen[st.TaskID] {
			continue
		}
		seen[st.TaskID] = true
		similar = append(similar, st)
	}
	merged.SimilarTasks = similar

	var originals []models.MergedTaskRef
	for _, t := range []models.Task{t1, t2} {
		if t.MergeHistory != nil {
			originals = append(originals, t.MergeHistory.OriginalTasks...)
		}
	}
	originals = append(originals,
		models.MergedTaskRef{ID: t1.ID, Title: t1.Title},
		models.MergedTaskRef{ID: t2.ID, Title: t2.Title},
	)
	merged.MergeHistory = &models.MergeHistory{
		MergedAt:      mergedAt.UTC().Format(time.RFC3339),
		OriginalTasks: originals,
	}

	if t1.Extra != nil || t2.Extra != nil {
		merged.Extra = make(map[string]json.RawMessage, len(t1.Extra)+len(t2.Extra))
		for k, v := range t2.Extra {
			merged.Extra[k] = v
		}
		for k, v := range t1.Extra {
			merged.Extra[k] = v
		}
	}
	return merged
}

func unionStrings(a, b []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeDependencies(a, b *models.Dependencies, selfIDs ...string) *models.Dependencies {
	if a.IsEmpty() && b.IsEmpty() {
		return nil
	}
	self := make(map[string]bool)
	for _, id := range selfIDs {
		self[id] = true
	}
	var out models.Dependencies
	for _, d := range []*models.Dependencies{a, b} {
		if d == nil {
			continue
		}
		out.Must = appendTaskDeps(out.Must, d.Must, self)
		out.NiceToHave = appendTaskDeps(out.NiceToHave, d.NiceToHave, self)
		out.Human = append(out.Human, d.Human...)
	}
	if out.IsEmpty() {
		return nil
	}
	return &out
}

func appendTaskDeps(dst, src []models.TaskDependency, skip map[string]bool) []models.TaskDependency {
	for _, d := range src {
		if skip[d.TaskID] {
			continue
		}
		dup := false
		for _, existing := range dst {
			if existing.TaskID == d.TaskID {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, d)
		}
	}
	return dst
}

// removeTask drops the first task with id, searching subtasks as well.
func removeTask(tasks []models.Task, id string) ([]models.Task, bool) {
	for i := range tasks {
		if tasks[i].ID == id {
			return append(tasks[:i:i], tasks[i+1:]...), true
		}
		if subs, ok := removeTask(tasks[i].Subtasks, id); ok {
			tasks[i].Subtasks = subs
			return tasks, true
		}
	}
	return tasks, false
}

// redirectReferences points dependencies on from at to instead and drops
// similar_tasks entries naming from.
func redirectReferences(tasks []models.Task, from, to string) {
	for i := range tasks {
		t := &tasks[i]
		if t.Dependencies != nil && t.ID != to {
			self := map[string]bool{t.ID: true}
			t.Dependencies.Must = appendTaskDeps(nil, redirect(t.Dependencies.Must, from, to), self)
			t.Dependencies.NiceToHave = appendTaskDeps(nil, redirect(t.Dependencies.NiceToHave, from, to), self)
		}
		var similar []models.SimilarTask
		for _, st := range t.SimilarTasks {
			if st.TaskID != from {
				similar = append(similar, st)
			}
		}
		t.SimilarTasks = similar
		redirectReferences(t.Subtasks, from, to)
	}
}

func redirect(deps []models.TaskDependency, from, to string) []models.TaskDependency {
	out := make([]models.TaskDependency, len(deps))
	for i, d := range deps {
		if d.TaskID == from {
			d.TaskID = to
		}
		out[i] = d
	}
	return out
}

func (s *backlogService) MergeTasks(id1, id2 string) (*models.Task, error) {
	id1, id2 = resolveQuery(id1), resolveQuery(id2)
	if id1 == id2 {
		return nil, fmt.Errorf("merging: cannot merge %s with itself: %w", id1, ErrMalformedInput)
	}
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	updated := cloneTasks(live)
	t1, t2 := findTask(updated, id1), findTask(updated, id2)
	if t1 == nil {
		return nil, fmt.Errorf("merging: task %s: %w", id1, ErrNotFound)
	}
	if t2 == nil {
		return nil, fmt.Errorf("merging: task %s: %w", id2, ErrNotFound)
	}

	merged := MergeTaskPair(*t1, *t2, s.now())
	*t1 = merged
	updated, _ = removeTask(updated, id2)
	if findTask(updated, id1) == nil {
		return nil, fmt.Errorf("merging: %s is nested inside %s: %w", id1, id2, ErrMalformedInput)
	}
	redirectReferences(updated, id2, id1)
	merged = *findTask(updated, id1)

	if _, err := s.write(live, updated, map[string]bool{id2: true}, false); err != nil {
		return nil, fmt.Errorf("merging: %w", err)
	}
	s.logger.Info("tasks merged", "kept", id1, "merged", id2)
	s.logEvent(EventTaskMerged, map[string]any{"task_id": id1, "merged_id": id2, "title": merged.Title})
	return &merged, nil
}

func (s *backlogService) DedupeIDs() ([]IDReplacement, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	alloc := s.allocatorFor(live, archived)
	updated := cloneTasks(live)

	replacements := []IDReplacement{}
	seenTemp := make(map[string]bool)
	seenPerm := make(map[string]bool)
	// Archived IDs are reserved: a live task reusing one is a duplicate too.
	for _, t := range FlattenTasks(archived) {
		seenTemp[t.ID] = true
		if t.PermanentID != "" {
			seenPerm[t.PermanentID] = true
		}
	}

	var walk func(tasks []models.Task) error
	walk = func(tasks []models.Task) error {
		for i := range tasks {
			t := &tasks[i]
			if t.ID != "" && seenTemp[t.ID] {
				newID, err := alloc.Assign()
				if err != nil {
					return err
				}
				replacements = append(replacements, IDReplacement{Kind: "temporary", Old: t.ID, New: newID, Title: t.Title})
				t.ID = newID
			}
			seenTemp[t.ID] = true
			if t.PermanentID != "" && seenPerm[t.PermanentID] {
				newID := s.newUUID()
				replacements = append(replacements, IDReplacement{Kind: "permanent", Old: t.PermanentID, New: newID, Title: t.Title})
				t.PermanentID = newID
			}
			if t.PermanentID != "" {
				seenPerm[t.PermanentID] = true
			}
			if err := walk(t.Subtasks); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(updated); err != nil {
		return nil, fmt.Errorf("reassigning IDs: %w", err)
	}
	if len(replacements) == 0 {
		return replacements, nil
	}

	renamed := make(map[string]bool)
	for _, r := range replacements {
		if r.Kind == "temporary" {
			renamed[r.Old] = true
		}
	}
	if _, err := s.write(live, updated, renamed, false); err != nil {
		return nil, fmt.Errorf("reassigning IDs: %w", err)
	}
	for _, r := range replacements {
		s.logger.Info("ID reassigned", "kind", r.Kind, "old", r.Old, "new", r.New, "title", r.Title)
	}
	s.logEvent(EventIDsReassigned, map[string]any{"count": len(replacements)})
	return replacements, nil
}
