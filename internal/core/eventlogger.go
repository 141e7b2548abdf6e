package core

// Event types BacklogService records after each successful write. Every
// event carries "task_id" when it concerns a single task, which is what the
// alert engine keys blocked-task history on.
const (
	EventTaskCreated       = "task.created"
	EventTaskCompleted     = "task.completed"
	EventTaskStatusChanged = "task.status_changed"
	EventBacklogArchived   = "backlog.archived"
	EventBacklogPatched    = "backlog.patched"
	EventTaskMerged        = "task.merged"
	EventIDsReassigned     = "ids.reassigned"
)

// EventLogger receives backlog events. observability.Recorder implements it
// over the JSONL event log.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
