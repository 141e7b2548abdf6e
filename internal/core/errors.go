package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nishio/ai-project-manager/internal/storage"
)

// Sentinel errors for the backlog error taxonomy. Typed errors below unwrap
// to one of these so callers can classify with errors.Is.
var (
	ErrNotFound             = storage.ErrNotFound
	ErrMalformedInput       = storage.ErrMalformedInput
	ErrPoolExhausted        = errors.New("no available IDs in the pool (all T0000-T9999 are used)")
	ErrCyclicDependency     = errors.New("cyclic dependency")
	ErrDuplicateID          = errors.New("duplicate ID")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// ValidationError carries every problem found by a validation pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed with %d errors:\n  - %s", len(e.Errors), strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrMalformedInput {
		return true
	}
	if target == ErrDuplicateID {
		for _, msg := range e.Errors {
			if strings.HasPrefix(msg, duplicateTempPrefix) || strings.HasPrefix(msg, duplicatePermPrefix) {
				return true
			}
		}
	}
	return false
}

// DuplicateIDError reports an ID that is held by more than one task.
type DuplicateIDError struct {
	ID     string
	Titles []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate ID %s held by %q", e.ID, e.Titles)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// CyclicDependencyError lists every elementary cycle in the dependency graph.
type CyclicDependencyError struct {
	Cycles [][]string
}

func (e *CyclicDependencyError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(append(append([]string{}, c...), c[0]), " -> ")
	}
	return fmt.Sprintf("dependency graph contains %d cycle(s): %s", len(e.Cycles), strings.Join(parts, "; "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// ConfirmationRequiredError is returned when a write would drop more tasks
// than the guard allows without an explicit --force.
type ConfirmationRequiredError struct {
	Missing   []string
	Threshold int
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("write would remove %d task(s) without explanation (%s), more than the allowed %d; re-run with --force after reviewing",
		len(e.Missing), strings.Join(e.Missing, ", "), e.Threshold)
}

func (e *ConfirmationRequiredError) Unwrap() error { return ErrConfirmationRequired }
