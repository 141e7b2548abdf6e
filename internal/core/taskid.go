package core

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/nishio/ai-project-manager/pkg/models"
)

const (
	// IDPrefix is the leading letter of every temporary task ID.
	IDPrefix = "T"
	// IDMin and IDMax bound the numeric part of a temporary task ID.
	IDMin = 0
	IDMax = 9999
	// PoolSize is the number of temporary IDs that can ever exist.
	PoolSize = IDMax - IDMin + 1
)

var taskIDPattern = regexp.MustCompile(`^T\d{4}$`)

// IsValidID reports whether id has the strict T#### form.
func IsValidID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// FormatID renders the temporary ID for slot n.
func FormatID(n int) string {
	return fmt.Sprintf("%s%04d", IDPrefix, n)
}

// PoolStatus summarises how much of the ID space is taken.
type PoolStatus struct {
	Total     int     `json:"total"`
	Used      int     `json:"used"`
	Available int     `json:"available"`
	Usage     float64 `json:"usage"`
}

// ReleaseResult describes an ID passed to Release. Release never frees
// anything by itself; the slot becomes free only once no live or archived
// task holds it.
type ReleaseResult struct {
	ID    string
	Valid bool
	InUse bool
	Title string
}

// IDAllocator hands out the lowest free T#### identifier. Next and NextBatch
// are pure: a caller that wants several IDs in sequence must Reserve each
// one (or use Assign / NextBatch) before asking again.
type IDAllocator struct {
	used    map[string]string
	ignored []string
}

// NewIDAllocator builds an allocator from the IDs currently in use.
// Malformed entries are kept out of the used set; see Ignored.
func NewIDAllocator(used []string) *IDAllocator {
	titles := make(map[string]string, len(used))
	for _, id := range used {
		titles[id] = ""
	}
	return NewIDAllocatorWithTitles(titles)
}

// NewIDAllocatorWithTitles is NewIDAllocator with the owning task title
// remembered for each ID, as returned by CollectUsedIDs.
func NewIDAllocatorWithTitles(used map[string]string) *IDAllocator {
	a := &IDAllocator{used: make(map[string]string, len(used))}
	for id, title := range used {
		if !IsValidID(id) {
			a.ignored = append(a.ignored, id)
			continue
		}
		a.used[id] = title
	}
	sort.Strings(a.ignored)
	return a
}

// Next returns the lowest-numbered ID not in use.
func (a *IDAllocator) Next() (string, error) {
	ids, err := a.NextBatch(1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// NextBatch returns the first n unused IDs in ascending order. It fails
// without returning a partial batch when fewer than n IDs are free.
func (a *IDAllocator) NextBatch(n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, n)
	for i := IDMin; i <= IDMax && len(ids) < n; i++ {
		candidate := FormatID(i)
		if _, taken := a.used[candidate]; !taken {
			ids = append(ids, candidate)
		}
	}
	if len(ids) < n {
		return nil, fmt.Errorf("allocating %d ID(s), %d available: %w", n, len(ids), ErrPoolExhausted)
	}
	return ids, nil
}

// Reserve marks id as used in memory.
func (a *IDAllocator) Reserve(id string) error {
	if !IsValidID(id) {
		return fmt.Errorf("reserving %q: invalid ID format (must be TXXXX): %w", id, ErrMalformedInput)
	}
	if _, ok := a.used[id]; !ok {
		a.used[id] = ""
	}
	return nil
}

// Assign returns the next free ID and reserves it.
func (a *IDAllocator) Assign() (string, error) {
	id, err := a.Next()
	if err != nil {
		return "", err
	}
	a.used[id] = ""
	return id, nil
}

// Release validates id and reports whether it is currently held.
func (a *IDAllocator) Release(id string) ReleaseResult {
	res := ReleaseResult{ID: id, Valid: IsValidID(id)}
	if !res.Valid {
		return res
	}
	res.Title, res.InUse = a.used[id]
	return res
}

// IsUsed reports whether id is held by a live or archived task.
func (a *IDAllocator) IsUsed(id string) bool {
	_, ok := a.used[id]
	return ok
}

// Title returns the title recorded for a used ID.
func (a *IDAllocator) Title(id string) string {
	return a.used[id]
}

// Used returns every used ID in ascending order.
func (a *IDAllocator) Used() []string {
	ids := make([]string, 0, len(a.used))
	for id := range a.used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ignored returns the malformed IDs left out of the used set.
func (a *IDAllocator) Ignored() []string {
	return append([]string(nil), a.ignored...)
}

// Status reports pool usage.
func (a *IDAllocator) Status() PoolStatus {
	used := len(a.used)
	return PoolStatus{
		Total:     PoolSize,
		Used:      used,
		Available: PoolSize - used,
		Usage:     float64(used) / float64(PoolSize),
	}
}

// CollectUsedIDs gathers every ID held by live tasks, archived tasks and
// merge history, mapped to a display title. Archived IDs stay reserved.
func CollectUsedIDs(live, archived []models.Task) map[string]string {
	used := make(map[string]string)
	record := func(tasks []models.Task, suffix string) {
		for _, t := range FlattenTasks(tasks) {
			if t.ID != "" {
				if _, seen := used[t.ID]; !seen {
					title := t.Title
					if title == "" {
						title = "Unknown"
					}
					used[t.ID] = title + suffix
				}
			}
			if t.MergeHistory == nil {
				continue
			}
			for _, orig := range t.MergeHistory.OriginalTasks {
				if _, seen := used[orig.ID]; !seen && orig.ID != "" {
					used[orig.ID] = orig.Title + " (Merged)"
				}
			}
		}
	}
	record(live, "")
	record(archived, " (Archived)")
	return used
}
