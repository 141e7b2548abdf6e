package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/nishio/ai-project-manager/pkg/models"
)

// IDPlaceholder is replaced by a fresh task ID wherever it appears as a
// string value in a patch.
const IDPlaceholder = "ID_PLACEHOLDER"

// Numbered placeholders (ID_PLACEHOLDER_1, ID_PLACEHOLDER_a) share one ID
// per suffix so a new task can be referenced from another within a patch.
var numberedPlaceholder = regexp.MustCompile(`^ID_PLACEHOLDER_([A-Za-z0-9]+)$`)

// PatchResult describes an applied patch.
type PatchResult struct {
	Operations  int               `json:"operations"`
	AssignedIDs []string          `json:"assigned_ids"`
	Named       map[string]string `json:"named,omitempty"`
	BackupPath  string            `json:"backup_path,omitempty"`
}

// ResolvePlaceholders replaces placeholder IDs in the values of patch
// operations with IDs from alloc, reserving each one. It returns the
// rewritten patch and the IDs in assignment order.
func ResolvePlaceholders(patch []byte, alloc *IDAllocator) ([]byte, *PatchResult, error) {
	var ops []map[string]any
	if err := json.Unmarshal(patch, &ops); err != nil {
		return nil, nil, fmt.Errorf("parsing patch: %v: %w", err, ErrMalformedInput)
	}

	res := &PatchResult{Operations: len(ops), AssignedIDs: []string{}, Named: map[string]string{}}
	var resolve func(v any) (any, error)
	resolve = func(v any) (any, error) {
		switch x := v.(type) {
		case string:
			if x == IDPlaceholder {
				id, err := alloc.Assign()
				if err != nil {
					return nil, err
				}
				res.AssignedIDs = append(res.AssignedIDs, id)
				return id, nil
			}
			if m := numberedPlaceholder.FindStringSubmatch(x); m != nil {
				if id, ok := res.Named[m[1]]; ok {
					return id, nil
				}
				id, err := alloc.Assign()
				if err != nil {
					return nil, err
				}
				res.Named[m[1]] = id
				res.AssignedIDs = append(res.AssignedIDs, id)
				return id, nil
			}
			return x, nil
		case map[string]any:
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			// "id" first so a task's own placeholder is numbered before the
			// ones in its dependencies.
			sort.Slice(keys, func(i, j int) bool {
				if (keys[i] == "id") != (keys[j] == "id") {
					return keys[i] == "id"
				}
				return keys[i] < keys[j]
			})
			for _, k := range keys {
				val := x[k]
				r, err := resolve(val)
				if err != nil {
					return nil, err
				}
				x[k] = r
			}
			return x, nil
		case []any:
			for i, val := range x {
				r, err := resolve(val)
				if err != nil {
					return nil, err
				}
				x[i] = r
			}
			return x, nil
		}
		return v, nil
	}

	for i, op := range ops {
		if _, ok := op["op"].(string); !ok {
			return nil, nil, fmt.Errorf("patch operation %d has no op: %w", i, ErrMalformedInput)
		}
		val, ok := op["value"]
		if !ok {
			continue
		}
		r, err := resolve(val)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving placeholders: %w", err)
		}
		op["value"] = r
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ops); err != nil {
		return nil, nil, fmt.Errorf("encoding patch: %w", err)
	}
	return buf.Bytes(), res, nil
}

// ApplyPatchToTasks applies a resolved RFC 6902 patch to a copy of the
// {"tasks": [...]} document and validates the result. Nothing is returned
// unless every operation succeeds and the result is a valid backlog.
func ApplyPatchToTasks(tasks []models.Task, patch []byte) ([]models.Task, error) {
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("decoding patch: %v: %w", err, ErrMalformedInput)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	doc, err := json.Marshal(models.BacklogFile{Tasks: tasks})
	if err != nil {
		return nil, fmt.Errorf("encoding backlog: %w", err)
	}
	patched, err := decoded.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("applying patch: %v: %w", err, ErrMalformedInput)
	}

	var raw any
	if err := json.Unmarshal(patched, &raw); err != nil {
		return nil, fmt.Errorf("decoding patched backlog: %v: %w", err, ErrMalformedInput)
	}
	records, err := TasksFromDocument(raw)
	if err != nil {
		return nil, err
	}
	if errs := ValidateBacklog(records); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	var bf models.BacklogFile
	if err := json.Unmarshal(patched, &bf); err != nil {
		return nil, fmt.Errorf("decoding patched backlog: %v: %w", err, ErrMalformedInput)
	}
	if bf.Tasks == nil {
		bf.Tasks = []models.Task{}
	}
	return bf.Tasks, nil
}

func (s *backlogService) ApplyPatch(patch []byte, force bool) (*PatchResult, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	resolved, res, err := ResolvePlaceholders(patch, s.allocatorFor(live, archived))
	if err != nil {
		return nil, err
	}
	updated, err := ApplyPatchToTasks(live, resolved)
	if err != nil {
		return nil, err
	}
	backup, err := s.write(live, updated, nil, force)
	if err != nil {
		return nil, fmt.Errorf("applying patch: %w", err)
	}
	res.BackupPath = backup

	s.logger.Info("patch applied", "operations", res.Operations, "assigned", len(res.AssignedIDs))
	s.logEvent(EventBacklogPatched, map[string]any{
		"operations":   res.Operations,
		"assigned_ids": res.AssignedIDs,
		"tasks_before": len(live),
		"tasks_after":  len(updated),
	})
	return res, nil
}
