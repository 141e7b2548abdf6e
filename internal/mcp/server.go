// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the backlog as tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/observability"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// Server wraps the backlog service and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	backlog     core.BacklogService
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// when the event log is unavailable.
func NewServer(backlog core.BacklogService, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		backlog:     backlog,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "apm", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type nextIDInput struct {
	Count int `json:"count,omitempty" jsonschema:"how many consecutive free IDs to return. Defaults to 1."`
}

type nextIDOutput struct {
	IDs       []string `json:"ids"`
	Used      int      `json:"used"`
	Available int      `json:"available"`
}

type validateBacklogInput struct{}

type validateBacklogOutput struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type analyzeInput struct{}

type blockedOutput struct {
	TaskID  string   `json:"task_id"`
	Reasons []string `json:"reasons"`
}

type analyzeOutput struct {
	Executable []string        `json:"executable"`
	Blocked    []blockedOutput `json:"blocked"`
	Dangling   []string        `json:"dangling"`
}

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier, e.g. T0014, t14 or 14"`
}

type taskOutput struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Description  string   `json:"description"`
	Labels       []string `json:"labels,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
	Appointment  string   `json:"appointment_date,omitempty"`
	MustDepends  []string `json:"must,omitempty"`
	Subtasks     []string `json:"subtasks,omitempty"`
	AssignableTo []string `json:"assignable_to,omitempty"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status (Open, In Progress, Blocked, Done)"`
	Label  string `json:"label,omitempty" jsonschema:"filter by label"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type markDoneInput struct {
	TaskIDs []string `json:"task_ids" jsonschema:"the tasks to mark Done"`
}

type markDoneOutput struct {
	Message string   `json:"message"`
	Done    []string `json:"done"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated   int            `json:"tasks_created"`
	TasksCompleted int            `json:"tasks_completed"`
	TasksArchived  int            `json:"tasks_archived"`
	PatchesApplied int            `json:"patches_applied"`
	TasksMerged    int            `json:"tasks_merged"`
	StatusChanges  map[string]int `json:"status_changes"`
	TasksByType    map[string]int `json:"tasks_by_type"`
	EventCount     int            `json:"event_count"`
	OldestEvent    string         `json:"oldest_event,omitempty"`
	NewestEvent    string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "next_id",
		Description: "Return the lowest free task IDs (T0000-T9999) without reserving them.",
	}, s.handleNextID)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "validate_backlog",
		Description: "Validate the backlog file: envelope shape, per-task fields, duplicate IDs and dependency references.",
	}, s.handleValidateBacklog)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "analyze_dependencies",
		Description: "Classify tasks as executable or blocked, with the reason for each block. Fails on dependency cycles.",
	}, s.handleAnalyze)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get one task by ID. Accepts short forms such as 14 or t14.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, including subtasks, with optional status and label filters.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "mark_done",
		Description: "Mark one or more tasks Done. Nothing is written if any ID is unknown.",
	}, s.handleMarkDone)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get counters from the event log: tasks created, completed, archived, patches and merges.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (ID pool usage, overdue tasks, long blocks, waiting approvals, backlog size).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleNextID(_ context.Context, _ *gomcp.CallToolRequest, input nextIDInput) (*gomcp.CallToolResult, nextIDOutput, error) {
	count := input.Count
	if count == 0 {
		count = 1
	}
	if count < 0 {
		return errorResult("count must be positive"), nextIDOutput{}, nil
	}

	alloc, err := s.backlog.Allocator()
	if err != nil {
		return errorResult(fmt.Sprintf("loading backlog: %s", err)), nextIDOutput{}, nil
	}
	ids, err := alloc.NextBatch(count)
	if err != nil {
		return errorResult(err.Error()), nextIDOutput{}, nil
	}
	status := alloc.Status()
	return nil, nextIDOutput{IDs: ids, Used: status.Used, Available: status.Available}, nil
}

func (s *Server) handleValidateBacklog(_ context.Context, _ *gomcp.CallToolRequest, _ validateBacklogInput) (*gomcp.CallToolResult, validateBacklogOutput, error) {
	report, err := s.backlog.Validate("")
	if err != nil {
		return errorResult(fmt.Sprintf("validating backlog: %s", err)), validateBacklogOutput{}, nil
	}
	return nil, validateBacklogOutput{
		Path:     report.Path,
		Valid:    report.Valid(),
		Errors:   report.Errors,
		Warnings: report.Warnings,
	}, nil
}

func (s *Server) handleAnalyze(_ context.Context, _ *gomcp.CallToolRequest, _ analyzeInput) (*gomcp.CallToolResult, analyzeOutput, error) {
	report, err := s.backlog.Analyze()
	if err != nil {
		return errorResult(fmt.Sprintf("analyzing dependencies: %s", err)), analyzeOutput{}, nil
	}
	out := analyzeOutput{
		Executable: report.Executable,
		Blocked:    make([]blockedOutput, len(report.Blocked)),
		Dangling:   report.Dangling,
	}
	if out.Dangling == nil {
		out.Dangling = []string{}
	}
	for i, b := range report.Blocked {
		out.Blocked[i] = blockedOutput{TaskID: b.TaskID, Reasons: describeReasons(b.Reasons)}
	}
	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	tasks, err := s.backlog.FindTasks(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	if len(tasks) == 0 {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}
	return nil, taskToOutput(tasks[0]), nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	if input.Status != "" {
		if _, err := models.ParseTaskStatus(input.Status); err != nil {
			return errorResult(err.Error()), listTasksOutput{}, nil
		}
	}

	tasks, err := s.backlog.Tasks()
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, t := range core.FlattenTasks(tasks) {
		if input.Status != "" && string(t.Status) != input.Status {
			continue
		}
		if input.Label != "" && !hasLabel(t, input.Label) {
			continue
		}
		out.Tasks = append(out.Tasks, taskToOutput(t))
	}
	out.Count = len(out.Tasks)
	return nil, out, nil
}

func (s *Server) handleMarkDone(_ context.Context, _ *gomcp.CallToolRequest, input markDoneInput) (*gomcp.CallToolResult, markDoneOutput, error) {
	if len(input.TaskIDs) == 0 {
		return errorResult("task_ids is required"), markDoneOutput{}, nil
	}

	done, err := s.backlog.MarkDone(input.TaskIDs...)
	if err != nil {
		return errorResult(fmt.Sprintf("marking tasks done: %s", err)), markDoneOutput{}, nil
	}
	out := markDoneOutput{Done: make([]string, len(done))}
	for i, t := range done {
		out.Done[i] = t.ID
	}
	out.Message = fmt.Sprintf("%d task(s) marked Done", len(done))
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr, time.Now().UTC())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:   metrics.TasksCreated,
		TasksCompleted: metrics.TasksCompleted,
		TasksArchived:  metrics.TasksArchived,
		PatchesApplied: metrics.PatchesApplied,
		TasksMerged:    metrics.TasksMerged,
		StatusChanges:  metrics.StatusChanges,
		TasksByType:    metrics.TasksByType,
		EventCount:     metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t models.Task) taskOutput {
	out := taskOutput{
		ID:           t.ID,
		Title:        t.Title,
		Type:         string(t.Type),
		Status:       string(t.Status),
		Description:  t.Description,
		Labels:       t.Labels,
		DueDate:      t.DueDate,
		Appointment:  t.AppointmentDate,
		AssignableTo: t.AssignableTo,
	}
	if t.Dependencies != nil {
		for _, d := range t.Dependencies.Must {
			out.MustDepends = append(out.MustDepends, d.TaskID)
		}
	}
	for _, sub := range t.Subtasks {
		out.Subtasks = append(out.Subtasks, sub.ID)
	}
	return out
}

func hasLabel(t models.Task, label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func describeReasons(reasons []core.BlockingReason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		if r.Kind == core.ReasonHuman {
			out[i] = fmt.Sprintf("waiting on %s to %s (%s)", r.Assignee, r.Action, r.Reason)
			continue
		}
		out[i] = fmt.Sprintf("%s is %s (%s)", r.TaskID, r.Status, r.Reason)
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		StatusChanges: make(map[string]int),
		TasksByType:   make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a duration such as "7d" or "24h" into the moment that
// far before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
