package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionBlockedTooLong = "task_blocked_too_long"
	ConditionPoolUsage      = "id_pool_usage"
	ConditionOverdue        = "task_overdue"
	ConditionBacklogSize    = "backlog_too_large"
	ConditionHumanWaiting   = "human_approval_waiting"
)

// Alert represents a triggered alert condition. TaskID is set for alerts
// about a single task.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	TaskID      string        `json:"task_id,omitempty"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	PoolUsageWarn  float64 `yaml:"pool_usage_warn" json:"pool_usage_warn"`
	MaxBacklogSize int     `yaml:"max_backlog_size" json:"max_backlog_size"`
	BlockedHours   int     `yaml:"blocked_hours" json:"blocked_hours"`
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		PoolUsageWarn:  0.5,
		MaxBacklogSize: 500,
		BlockedHours:   72,
	}
}

// criticalPoolUsage escalates the pool alert to high severity.
const criticalPoolUsage = 0.9

// OverdueTask is an open task whose due date has passed.
type OverdueTask struct {
	ID      string
	Title   string
	DueDate string
}

// WaitingApproval is a human dependency still waiting on someone.
type WaitingApproval struct {
	TaskID   string
	Assignee string
	Action   string
}

// BacklogSnapshot is the live backlog state alerts are evaluated against.
type BacklogSnapshot struct {
	PoolUsage    float64
	PoolUsed     int
	PoolTotal    int
	OpenTasks    int
	Overdue      []OverdueTask
	HumanWaiting []WaitingApproval
	// Blocked lists the IDs of tasks whose status is currently Blocked.
	Blocked []string
}

// SnapshotFunc produces a fresh BacklogSnapshot.
type SnapshotFunc func() (*BacklogSnapshot, error)

// AlertEngine evaluates alert conditions.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	snapshot   SnapshotFunc
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine reading status history from
// eventLog and current state from snapshot.
func NewAlertEngine(eventLog EventLog, snapshot SnapshotFunc, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		snapshot:   snapshot,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate checks every condition and returns the triggered alerts ordered
// by severity, then ID.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()

	snap, err := ae.snapshot()
	if err != nil {
		return nil, fmt.Errorf("taking backlog snapshot: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkPoolUsage(snap, now)...)
	alerts = append(alerts, ae.checkOverdue(snap, now)...)
	alerts = append(alerts, ae.checkBacklogSize(snap, now)...)
	alerts = append(alerts, ae.checkHumanWaiting(snap, now)...)

	blocked, err := ae.checkBlockedTasks(snap, now)
	if err != nil {
		return nil, fmt.Errorf("checking blocked tasks: %w", err)
	}
	alerts = append(alerts, blocked...)

	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

func (ae *alertEngine) checkPoolUsage(snap *BacklogSnapshot, now time.Time) []Alert {
	if snap.PoolUsage < ae.thresholds.PoolUsageWarn {
		return nil
	}
	severity := SeverityMedium
	if snap.PoolUsage >= criticalPoolUsage {
		severity = SeverityHigh
	}
	return []Alert{{
		ID:          "id-pool-usage",
		Condition:   ConditionPoolUsage,
		Severity:    severity,
		Message:     fmt.Sprintf("ID pool is %.1f%% used (%d of %d)", snap.PoolUsage*100, snap.PoolUsed, snap.PoolTotal),
		TriggeredAt: now,
	}}
}

func (ae *alertEngine) checkOverdue(snap *BacklogSnapshot, now time.Time) []Alert {
	var alerts []Alert
	for _, t := range snap.Overdue {
		alerts = append(alerts, Alert{
			ID:          "overdue-" + t.ID,
			Condition:   ConditionOverdue,
			TaskID:      t.ID,
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("task %s %q was due %s", t.ID, t.Title, t.DueDate),
			TriggeredAt: now,
		})
	}
	return alerts
}

func (ae *alertEngine) checkBacklogSize(snap *BacklogSnapshot, now time.Time) []Alert {
	if ae.thresholds.MaxBacklogSize <= 0 || snap.OpenTasks <= ae.thresholds.MaxBacklogSize {
		return nil
	}
	return []Alert{{
		ID:          "backlog-size",
		Condition:   ConditionBacklogSize,
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("backlog has %d open tasks, exceeding threshold of %d", snap.OpenTasks, ae.thresholds.MaxBacklogSize),
		TriggeredAt: now,
	}}
}

func (ae *alertEngine) checkHumanWaiting(snap *BacklogSnapshot, now time.Time) []Alert {
	var alerts []Alert
	for _, w := range snap.HumanWaiting {
		who := w.Assignee
		if who == "" {
			who = "someone"
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("human-%s-%s", w.TaskID, w.Action),
			Condition:   ConditionHumanWaiting,
			TaskID:      w.TaskID,
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("task %s is waiting on %s to %s", w.TaskID, who, w.Action),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkBlockedTasks uses the last status change per task to find tasks that
// have stayed Blocked longer than the threshold.
func (ae *alertEngine) checkBlockedTasks(snap *BacklogSnapshot, now time.Time) ([]Alert, error) {
	if len(snap.Blocked) == 0 {
		return nil, nil
	}
	events, err := ae.eventLog.Read(EventFilter{Type: "task.status_changed"})
	if err != nil {
		return nil, err
	}

	type taskState struct {
		status    string
		changedAt time.Time
	}
	tasks := make(map[string]taskState)
	for _, event := range events {
		taskID := event.TaskID()
		newStatus, _ := event.Data["new_status"].(string)
		if taskID == "" || newStatus == "" {
			continue
		}
		tasks[taskID] = taskState{status: newStatus, changedAt: event.Time}
	}

	threshold := time.Duration(ae.thresholds.BlockedHours) * time.Hour
	var alerts []Alert
	for _, taskID := range snap.Blocked {
		state, ok := tasks[taskID]
		if !ok || state.status != "Blocked" || now.Sub(state.changedAt) <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "blocked-" + taskID,
			Condition:   ConditionBlockedTooLong,
			TaskID:      taskID,
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("task %s has been blocked for more than %d hours", taskID, ae.thresholds.BlockedHours),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	}
	return 3
}
