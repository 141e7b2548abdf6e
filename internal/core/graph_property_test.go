package core

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/nishio/ai-project-manager/pkg/models"
)

// Must edges that only point to earlier tasks never form a cycle.
func TestForwardOnlyDependenciesBuild(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(rt, "n")
		tasks := make([]models.Task, n)
		for i := 0; i < n; i++ {
			tk := task(fmt.Sprintf("T%04d", i), rapid.SampledFrom(models.AllStatuses).Draw(rt, fmt.Sprintf("status_%d", i)))
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("edge_%d_%d", i, j)) {
					tk = withMust(tk, fmt.Sprintf("T%04d", j))
				}
			}
			tasks[i] = tk
		}
		g, err := BuildGraph(tasks, nil)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if len(g.Cycles()) != 0 {
			rt.Fatalf("unexpected cycles: %v", g.Cycles())
		}
	})
}

// A task is blocked exactly when a must prerequisite is not Done or a human
// dependency is still waiting.
func TestBlockedIffUnmetPrerequisite(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		tasks := make([]models.Task, n)
		status := make(map[string]models.TaskStatus)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("T%04d", i)
			st := rapid.SampledFrom(models.AllStatuses).Draw(rt, fmt.Sprintf("status_%d", i))
			status[id] = st
			tasks[i] = task(id, st)
		}

		wantBlocked := make(map[string]bool)
		for i := range tasks {
			tk := tasks[i]
			for j := 0; j < i; j++ {
				dep := fmt.Sprintf("T%04d", j)
				switch rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("edge_%d_%d", i, j)) {
				case 1:
					tk = withMust(tk, dep)
					if status[dep] != models.StatusDone {
						wantBlocked[tk.ID] = true
					}
				case 2:
					if tk.Dependencies == nil {
						tk.Dependencies = &models.Dependencies{}
					}
					tk.Dependencies.NiceToHave = append(tk.Dependencies.NiceToHave, models.TaskDependency{TaskID: dep})
				}
			}
			if rapid.Bool().Draw(rt, fmt.Sprintf("human_%d", i)) {
				hs := rapid.SampledFrom([]models.HumanDependencyStatus{models.HumanWaiting, models.HumanApproved, models.HumanRejected}).Draw(rt, fmt.Sprintf("human_status_%d", i))
				if tk.Dependencies == nil {
					tk.Dependencies = &models.Dependencies{}
				}
				tk.Dependencies.Human = append(tk.Dependencies.Human, models.HumanDependency{Assignee: "alice", Action: "approve", Status: hs})
				if hs == models.HumanWaiting {
					wantBlocked[tk.ID] = true
				}
			}
			tasks[i] = tk
		}

		analysis := NewDependencyGraph(tasks, nil).Analyze()
		if len(analysis.Executable)+len(analysis.Blocked) != n {
			rt.Fatalf("every task must be classified once: %d executable, %d blocked", len(analysis.Executable), len(analysis.Blocked))
		}
		for _, b := range analysis.Blocked {
			if !wantBlocked[b.TaskID] {
				rt.Errorf("%s reported blocked by %+v", b.TaskID, b.Reasons)
			}
			if len(b.Reasons) == 0 {
				rt.Errorf("%s blocked without reasons", b.TaskID)
			}
		}
		for _, id := range analysis.Executable {
			if wantBlocked[id] {
				rt.Errorf("%s should be blocked", id)
			}
		}
	})
}
