package core

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func drawUsedIDs(rt *rapid.T) []string {
	nums := rapid.SliceOfNDistinct(rapid.IntRange(0, 200), 0, 120, func(n int) int { return n }).Draw(rt, "used")
	ids := make([]string, len(nums))
	for i, n := range nums {
		ids[i] = FormatID(n)
	}
	return ids
}

// Next never returns an ID in use, and every smaller ID is taken.
func TestProperty_NextIsLowestFree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		used := drawUsedIDs(rt)
		a := NewIDAllocator(used)

		id, err := a.Next()
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if !IsValidID(id) {
			rt.Fatalf("Next returned malformed ID %q", id)
		}
		taken := make(map[string]bool, len(used))
		for _, u := range used {
			taken[u] = true
		}
		if taken[id] {
			rt.Fatalf("Next returned used ID %s", id)
		}
		for i := IDMin; FormatID(i) < id; i++ {
			if !taken[FormatID(i)] {
				rt.Fatalf("Next returned %s but %s is free", id, FormatID(i))
			}
		}
	})
}

// A batch is distinct, ascending, disjoint from the used set, and its first
// element is what Next would return.
func TestProperty_NextBatchDistinctAscending(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		used := drawUsedIDs(rt)
		n := rapid.IntRange(1, 50).Draw(rt, "n")
		a := NewIDAllocator(used)

		next, err := a.Next()
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		batch, err := a.NextBatch(n)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if len(batch) != n {
			rt.Fatalf("batch has %d IDs, want %d", len(batch), n)
		}
		if batch[0] != next {
			rt.Fatalf("batch starts with %s, Next returned %s", batch[0], next)
		}
		for i, id := range batch {
			if a.IsUsed(id) {
				rt.Fatalf("batch contains used ID %s", id)
			}
			if i > 0 && batch[i-1] >= id {
				rt.Fatalf("batch not strictly ascending at %d: %v", i, batch)
			}
		}
	})
}

// Assigning until the pool is exhausted hands out each free ID exactly once.
func TestProperty_AssignExhaustsPool(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keep := rapid.IntRange(0, 20).Draw(rt, "free")
		used := make([]string, 0, PoolSize)
		free := make(map[string]bool)
		for i := IDMin; i <= IDMax; i++ {
			if i < keep*7 && i%7 == 0 {
				free[FormatID(i)] = true
				continue
			}
			used = append(used, FormatID(i))
		}
		a := NewIDAllocator(used)

		for remaining := len(free); remaining > 0; remaining-- {
			id, err := a.Assign()
			if err != nil {
				rt.Fatalf("unexpected error with free IDs left: %v", err)
			}
			if !free[id] {
				rt.Fatalf("Assign returned %s which was not free", id)
			}
			delete(free, id)
		}
		if _, err := a.Assign(); !errors.Is(err, ErrPoolExhausted) {
			rt.Fatalf("expected ErrPoolExhausted, got %v", err)
		}
	})
}
