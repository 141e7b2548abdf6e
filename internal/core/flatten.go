package core

import "github.com/nishio/ai-project-manager/pkg/models"

// FlattenTasks returns every task and nested subtask in depth-first order,
// each project listed before its subtasks.
func FlattenTasks(tasks []models.Task) []models.Task {
	var out []models.Task
	for _, t := range tasks {
		out = appendFlattened(out, t)
	}
	return out
}

func appendFlattened(out []models.Task, t models.Task) []models.Task {
	out = append(out, t)
	for _, sub := range t.Subtasks {
		out = appendFlattened(out, sub)
	}
	return out
}
