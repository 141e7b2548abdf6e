package observability

import (
	"fmt"
	"time"
)

// Metrics are counters derived from the event log over a time window.
type Metrics struct {
	TasksCreated   int            `json:"tasks_created"`
	TasksCompleted int            `json:"tasks_completed"`
	TasksArchived  int            `json:"tasks_archived"`
	PatchesApplied int            `json:"patches_applied"`
	TasksMerged    int            `json:"tasks_merged"`
	IDsReassigned  int            `json:"ids_reassigned"`
	StatusChanges  map[string]int `json:"status_changes"`
	TasksByType    map[string]int `json:"tasks_by_type"`
	CompletedByDay map[string]int `json:"completed_by_day"`
	EventCount     int            `json:"event_count"`
	OldestEvent    *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent    *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		StatusChanges:  make(map[string]int),
		TasksByType:    make(map[string]int),
		CompletedByDay: make(map[string]int),
		EventCount:     len(events),
	}
	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if taskType, ok := event.Data["type"].(string); ok {
				m.TasksByType[taskType]++
			}
		case "task.completed":
			m.TasksCompleted++
			m.CompletedByDay[event.Time.UTC().Format(time.DateOnly)]++
		case "task.status_changed":
			if status, ok := event.Data["new_status"].(string); ok {
				m.StatusChanges[status]++
			}
		case "backlog.archived":
			m.TasksArchived += intField(event.Data, "archived")
		case "backlog.patched":
			m.PatchesApplied++
		case "task.merged":
			m.TasksMerged++
		case "ids.reassigned":
			m.IDsReassigned += intField(event.Data, "count")
		}
	}
	return m, nil
}

// intField reads a count from decoded JSON, where numbers are float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
