package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is one line of the event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"` // e.g. "task.created", "backlog.archived"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// TaskID returns the task the event is about, if any.
func (e Event) TaskID() string {
	id, _ := e.Data["task_id"].(string)
	return id
}

// EventFilter selects events on Read. Zero fields match everything.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   string
	Level  string
	TaskID string
}

// EventLog appends and reads events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog opens (creating if needed) the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read returns the events matching filter in file order. Malformed lines
// are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if filter.matches(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func (f EventFilter) matches(event Event) bool {
	if f.Since != nil && event.Time.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.Time.After(*f.Until) {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.Level != "" && event.Level != f.Level {
		return false
	}
	if f.TaskID != "" && event.TaskID() != f.TaskID {
		return false
	}
	return true
}

// Recorder turns domain events reported by the backlog service into
// EventLog entries.
type Recorder struct {
	log EventLog
	now func() time.Time
}

// NewRecorder wraps log.
func NewRecorder(log EventLog) *Recorder {
	return &Recorder{log: log, now: time.Now}
}

// LogEvent writes one event with a readable message derived from its type.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	return r.log.Write(Event{
		Time:    r.now().UTC(),
		Level:   levelFor(eventType),
		Type:    eventType,
		Message: describe(eventType, data),
		Data:    data,
	})
}

func levelFor(eventType string) string {
	if eventType == "ids.reassigned" {
		return LevelWarn
	}
	return LevelInfo
}

func describe(eventType string, data map[string]any) string {
	id, _ := data["task_id"].(string)
	switch eventType {
	case "task.created":
		return fmt.Sprintf("task %s created", id)
	case "task.completed":
		return fmt.Sprintf("task %s completed", id)
	case "task.status_changed":
		return fmt.Sprintf("task %s moved to %v", id, data["new_status"])
	case "task.merged":
		return fmt.Sprintf("task %v merged into %s", data["merged_id"], id)
	case "backlog.archived":
		return fmt.Sprintf("%v task(s) archived", data["archived"])
	case "backlog.patched":
		return fmt.Sprintf("patch with %v operation(s) applied", data["operations"])
	case "ids.reassigned":
		return fmt.Sprintf("%v duplicate ID(s) reassigned", data["count"])
	}
	return eventType
}
