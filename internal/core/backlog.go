package core

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nishio/ai-project-manager/internal/storage"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// NewTask holds the caller-supplied fields of a task being created.
type NewTask struct {
	Title           string
	Description     string
	Type            models.TaskType
	Labels          []string
	AssignableTo    []string
	DueDate         string
	AppointmentDate string
	Visibility      models.Visibility
	SecurityLevel   models.SecurityLevel
	Dependencies    *models.Dependencies
}

// ArchiveResult summarises one archive run.
type ArchiveResult struct {
	Date            time.Time
	ArchivePath     string
	BackupPath      string
	DoneCount       int
	Archived        []models.Task
	RetainedOverdue []models.Task
}

// IDReplacement records one identifier rewritten by DedupeIDs.
type IDReplacement struct {
	Kind  string `json:"kind"`
	Old   string `json:"old"`
	New   string `json:"new"`
	Title string `json:"title"`
}

// LabelCount is one row of the label histogram.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// BacklogStats summarises the live backlog.
type BacklogStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
	Labels   []LabelCount   `json:"labels"`
	Archived int            `json:"archived"`
	Pool     PoolStatus     `json:"pool"`
}

// ValidationReport is the outcome of validating a backlog file.
type ValidationReport struct {
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether no errors were found.
func (r *ValidationReport) Valid() bool { return len(r.Errors) == 0 }

// Err returns the report's errors as a *ValidationError, or nil.
func (r *ValidationReport) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}

// AnalysisReport is the dependency analysis of the live backlog.
type AnalysisReport struct {
	Analysis
	Dangling []string `json:"dangling"`
}

// MigrationResult summarises a legacy YAML import.
type MigrationResult struct {
	Imported   int      `json:"imported"`
	Normalized []string `json:"normalized"`
	BackupPath string   `json:"backup_path,omitempty"`
}

// BacklogService is the single entry point for reading and changing the
// backlog. Every write is guarded against silent mass removal and preceded
// by a backup.
type BacklogService interface {
	Tasks() ([]models.Task, error)
	Archived() ([]models.Task, error)
	Allocator() (*IDAllocator, error)
	NextIDs(n int) ([]string, error)
	AddTask(nt NewTask) (*models.Task, error)
	MarkDone(ids ...string) ([]models.Task, error)
	SetStatus(id string, status models.TaskStatus) (*models.Task, error)
	FindTasks(queries ...string) ([]models.Task, error)
	Validate(path string) (*ValidationReport, error)
	Archive(target time.Time) (*ArchiveResult, error)
	Analyze() (*AnalysisReport, error)
	Graph() (*DependencyGraph, error)
	Similar(threshold float64, apply bool) ([]SimilarPair, error)
	ApplyPatch(patch []byte, force bool) (*PatchResult, error)
	MergeTasks(id1, id2 string) (*models.Task, error)
	DedupeIDs() ([]IDReplacement, error)
	Expired(target time.Time) ([]models.Task, error)
	Stats() (*BacklogStats, error)
	Backup() (string, error)
	Migrate(yamlPath string, force bool) (*MigrationResult, error)
}

// ServiceOptions tunes BacklogService behaviour from configuration.
type ServiceOptions struct {
	MaxUnexplainedRemovals int
	SimilarityThreshold    float64
	StrictReferences       bool
}

type backlogService struct {
	store   storage.BacklogStore
	events  EventLogger
	logger  *log.Logger
	opts    ServiceOptions
	now     func() time.Time
	newUUID func() string
}

// NewBacklogService creates a BacklogService over store. events may be nil.
func NewBacklogService(store storage.BacklogStore, events EventLogger, logger *log.Logger, opts ServiceOptions) BacklogService {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &backlogService{
		store:   store,
		events:  events,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		newUUID: uuid.NewString,
	}
}

func (s *backlogService) logEvent(eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.LogEvent(eventType, data); err != nil {
		s.logger.Warn("event log write failed", "event", eventType, "err", err)
	}
}

func (s *backlogService) Tasks() ([]models.Task, error) {
	return s.store.Load()
}

func (s *backlogService) Archived() ([]models.Task, error) {
	return s.store.LoadArchives()
}

func (s *backlogService) load() ([]models.Task, []models.Task, error) {
	live, err := s.store.Load()
	if err != nil {
		return nil, nil, err
	}
	archived, err := s.store.LoadArchives()
	if err != nil {
		return nil, nil, err
	}
	return live, archived, nil
}

func (s *backlogService) Allocator() (*IDAllocator, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	return s.allocatorFor(live, archived), nil
}

func (s *backlogService) allocatorFor(live, archived []models.Task) *IDAllocator {
	a := NewIDAllocatorWithTitles(CollectUsedIDs(live, archived))
	if ignored := a.Ignored(); len(ignored) > 0 {
		s.logger.Warn("ignoring malformed task IDs", "ids", strings.Join(ignored, ","))
	}
	return a
}

func (s *backlogService) NextIDs(n int) ([]string, error) {
	a, err := s.Allocator()
	if err != nil {
		return nil, err
	}
	return a.NextBatch(n)
}

// checkRemovals is the removal guard. accounted lists IDs whose
// disappearance is expected (archived, merged or renamed).
func (s *backlogService) checkRemovals(before, after []models.Task, accounted map[string]bool, force bool) error {
	present := make(map[string]bool)
	for _, t := range FlattenTasks(after) {
		present[t.ID] = true
	}
	var missing []string
	seen := make(map[string]bool)
	for _, t := range FlattenTasks(before) {
		if present[t.ID] || accounted[t.ID] || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		missing = append(missing, t.ID)
	}
	sort.Strings(missing)
	if len(missing) > s.opts.MaxUnexplainedRemovals && !force {
		return &ConfirmationRequiredError{Missing: missing, Threshold: s.opts.MaxUnexplainedRemovals}
	}
	if len(missing) > 0 {
		s.logger.Warn("write removes tasks", "ids", strings.Join(missing, ","), "forced", force)
	}
	return nil
}

// write persists tasks after the removal guard and a backup.
func (s *backlogService) write(before, after []models.Task, accounted map[string]bool, force bool) (string, error) {
	if err := s.checkRemovals(before, after, accounted, force); err != nil {
		return "", err
	}
	backup, err := s.store.Backup()
	if err != nil {
		return "", err
	}
	if err := s.store.Save(after); err != nil {
		return "", err
	}
	return backup, nil
}

func (s *backlogService) AddTask(nt NewTask) (*models.Task, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	id, err := s.allocatorFor(live, archived).Next()
	if err != nil {
		return nil, fmt.Errorf("adding task: %w", err)
	}

	taskType := nt.Type
	if taskType == "" {
		taskType = models.TaskTypeTask
	}
	task := models.Task{
		ID:              id,
		PermanentID:     s.newUUID(),
		Title:           nt.Title,
		Status:          models.StatusOpen,
		Type:            taskType,
		Description:     nt.Description,
		Labels:          nt.Labels,
		AssignableTo:    nt.AssignableTo,
		Dependencies:    nt.Dependencies,
		DueDate:         nt.DueDate,
		AppointmentDate: nt.AppointmentDate,
		Visibility:      nt.Visibility,
		SecurityLevel:   nt.SecurityLevel,
	}
	records, err := ToRecords([]models.Task{task})
	if err != nil {
		return nil, err
	}
	if errs := ValidateTask(records[0].(map[string]any)); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	updated := append(append([]models.Task{}, live...), task)
	if _, err := s.write(live, updated, nil, false); err != nil {
		return nil, fmt.Errorf("adding task: %w", err)
	}
	s.logger.Info("task added", "id", task.ID, "title", task.Title)
	s.logEvent(EventTaskCreated, map[string]any{"task_id": task.ID, "title": task.Title, "type": string(task.Type)})
	return &task, nil
}

// findTask returns a pointer into tasks (descending into subtasks) for id.
func findTask(tasks []models.Task, id string) *models.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
		if found := findTask(tasks[i].Subtasks, id); found != nil {
			return found
		}
	}
	return nil
}

// resolveQuery turns a human-friendly ID ("14", "t14", "T0014") into its
// canonical form. Anything else is returned unchanged.
func resolveQuery(q string) string {
	q = strings.TrimSpace(q)
	digits := strings.TrimPrefix(strings.TrimPrefix(q, "T"), "t")
	n, err := strconv.Atoi(digits)
	if err != nil || n < IDMin || n > IDMax || digits == "" || strings.HasPrefix(digits, "-") {
		return q
	}
	return FormatID(n)
}

// MatchesID reports whether a task ID matches a human-friendly query.
func MatchesID(taskID, query string) bool {
	return taskID == query || taskID == resolveQuery(query)
}

func (s *backlogService) MarkDone(ids ...string) ([]models.Task, error) {
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	updated := cloneTasks(live)

	var notFound []string
	var targets []*models.Task
	for _, raw := range ids {
		t := findTask(updated, resolveQuery(raw))
		if t == nil {
			notFound = append(notFound, raw)
			continue
		}
		targets = append(targets, t)
	}
	if len(notFound) > 0 {
		return nil, fmt.Errorf("marking done: task(s) %s: %w", strings.Join(notFound, ", "), ErrNotFound)
	}

	stamp := s.now().UTC().Format(time.RFC3339)
	for _, t := range targets {
		t.Status = models.StatusDone
		t.CompletionTime = stamp
	}
	if _, err := s.write(live, updated, nil, false); err != nil {
		return nil, fmt.Errorf("marking done: %w", err)
	}

	done := make([]models.Task, 0, len(targets))
	for _, t := range targets {
		done = append(done, *t)
		s.logEvent(EventTaskCompleted, map[string]any{"task_id": t.ID, "title": t.Title})
	}
	return done, nil
}

func (s *backlogService) SetStatus(id string, status models.TaskStatus) (*models.Task, error) {
	if _, err := models.ParseTaskStatus(string(status)); err != nil {
		return nil, fmt.Errorf("setting status: %v: %w", err, ErrMalformedInput)
	}
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	updated := cloneTasks(live)
	t := findTask(updated, resolveQuery(id))
	if t == nil {
		return nil, fmt.Errorf("setting status: task %s: %w", id, ErrNotFound)
	}
	oldStatus := t.Status
	t.Status = status
	if status == models.StatusDone {
		t.CompletionTime = s.now().UTC().Format(time.RFC3339)
	}
	if _, err := s.write(live, updated, nil, false); err != nil {
		return nil, fmt.Errorf("setting status: %w", err)
	}

	s.logEvent(EventTaskStatusChanged, map[string]any{"task_id": t.ID, "old_status": string(oldStatus), "new_status": string(status)})
	if status == models.StatusDone && oldStatus != models.StatusDone {
		s.logEvent(EventTaskCompleted, map[string]any{"task_id": t.ID, "title": t.Title})
	}
	result := *t
	return &result, nil
}

func (s *backlogService) FindTasks(queries ...string) ([]models.Task, error) {
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	var out []models.Task
	for _, t := range FlattenTasks(live) {
		for _, q := range queries {
			if MatchesID(t.ID, q) {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// Validate checks the backlog at path (the configured backlog when empty):
// envelope shape, per-task rules, ID uniqueness and dependency references.
func (s *backlogService) Validate(path string) (*ValidationReport, error) {
	if path == "" {
		path = s.store.Paths().BacklogPath
	}
	doc, err := s.store.LoadRawFile(path)
	if err != nil {
		return nil, err
	}
	report := &ValidationReport{Path: path, Errors: []string{}, Warnings: []string{}}

	records, err := TasksFromDocument(doc)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			report.Errors = append(report.Errors, ve.Errors...)
			return report, nil
		}
		return nil, err
	}
	report.Errors = append(report.Errors, ValidateBacklog(records)...)

	tasks, err := s.store.LoadFile(path)
	if err != nil {
		// Typed decoding fails when a field has the wrong JSON type; the
		// per-task checks above already describe it.
		return report, nil
	}
	archived, err := s.store.LoadArchives()
	if err != nil {
		return nil, err
	}
	known := CollectUsedIDs(tasks, archived)
	refs := CheckReferences(tasks, known)
	if s.opts.StrictReferences {
		report.Errors = append(report.Errors, refs...)
	} else {
		report.Warnings = append(report.Warnings, refs...)
	}
	return report, nil
}

func (s *backlogService) Archive(target time.Time) (*ArchiveResult, error) {
	target = truncateDay(target)
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	result := &ArchiveResult{Date: target, ArchivePath: s.store.ArchivePath(target)}

	kept := make([]models.Task, 0, len(live))
	accounted := make(map[string]bool)
	for _, t := range live {
		if t.Status != models.StatusDone {
			kept = append(kept, t)
			continue
		}
		result.DoneCount++
		if due, ok := ParseDueDate(t.DueDate); ok && due.Before(target) {
			result.RetainedOverdue = append(result.RetainedOverdue, t)
			kept = append(kept, t)
			continue
		}
		result.Archived = append(result.Archived, t)
		for _, sub := range FlattenTasks([]models.Task{t}) {
			accounted[sub.ID] = true
		}
	}
	for _, t := range result.RetainedOverdue {
		s.logger.Warn("overdue task kept for review", "id", t.ID, "title", t.Title, "due", t.DueDate)
	}
	if len(result.Archived) == 0 {
		return result, nil
	}

	// A task must never sit in both the archive and the live backlog.
	if err := s.checkRemovals(live, kept, accounted, false); err != nil {
		return nil, fmt.Errorf("archiving: %w", err)
	}
	backup, err := s.store.Backup()
	if err != nil {
		return nil, fmt.Errorf("archiving: %w", err)
	}
	if err := s.store.AppendArchive(target, result.Archived); err != nil {
		return nil, fmt.Errorf("archiving: %w", err)
	}
	if err := s.store.Save(kept); err != nil {
		if uerr := s.store.UndoAppendArchive(target, len(result.Archived)); uerr != nil {
			s.logger.Error("archive left with tasks still in the backlog", "path", result.ArchivePath, "err", uerr)
			return nil, fmt.Errorf("archiving: %w (archive not restored: %v)", err, uerr)
		}
		return nil, fmt.Errorf("archiving: %w", err)
	}
	result.BackupPath = backup

	ids := make([]string, 0, len(result.Archived))
	for _, t := range result.Archived {
		ids = append(ids, t.ID)
	}
	s.logEvent(EventBacklogArchived, map[string]any{
		"date":             target.Format(time.DateOnly),
		"archived":         len(result.Archived),
		"retained_overdue": len(result.RetainedOverdue),
		"task_ids":         ids,
	})
	return result, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *backlogService) Analyze() (*AnalysisReport, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	g, err := BuildGraph(live, archived)
	if err != nil {
		return nil, err
	}
	return &AnalysisReport{Analysis: g.Analyze(), Dangling: g.Dangling()}, nil
}

func (s *backlogService) Graph() (*DependencyGraph, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	return NewDependencyGraph(live, archived), nil
}

func (s *backlogService) Similar(threshold float64, apply bool) ([]SimilarPair, error) {
	if threshold <= 0 {
		threshold = s.opts.SimilarityThreshold
	}
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	flat := FlattenTasks(live)
	pairs := FindSimilarPairs(flat, threshold)
	if !apply || len(pairs) == 0 {
		return pairs, nil
	}

	updated := cloneTasks(live)
	for id, entries := range DetectSimilar(flat, threshold) {
		t := findTask(updated, id)
		if t == nil {
			continue
		}
		replaced := make(map[string]bool, len(entries))
		for _, e := range entries {
			replaced[e.TaskID] = true
		}
		var keep []models.SimilarTask
		for _, old := range t.SimilarTasks {
			if !replaced[old.TaskID] {
				keep = append(keep, old)
			}
		}
		t.SimilarTasks = append(keep, entries...)
	}
	if _, err := s.write(live, updated, nil, false); err != nil {
		return nil, fmt.Errorf("recording similar tasks: %w", err)
	}
	return pairs, nil
}

func (s *backlogService) Expired(target time.Time) ([]models.Task, error) {
	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return ExpiredTasks(live, target), nil
}

// ExpiredTasks returns tasks not Done whose ISO due date is before target.
func ExpiredTasks(tasks []models.Task, target time.Time) []models.Task {
	target = truncateDay(target)
	var out []models.Task
	for _, t := range FlattenTasks(tasks) {
		if t.Status == models.StatusDone {
			continue
		}
		if due, ok := ParseDueDate(t.DueDate); ok && due.Before(target) {
			out = append(out, t)
		}
	}
	return out
}

func (s *backlogService) Stats() (*BacklogStats, error) {
	live, archived, err := s.load()
	if err != nil {
		return nil, err
	}
	stats := &BacklogStats{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
		Labels:   []LabelCount{},
		Archived: len(FlattenTasks(archived)),
		Pool:     s.allocatorFor(live, archived).Status(),
	}
	labels := make(map[string]int)
	for _, t := range FlattenTasks(live) {
		stats.Total++
		stats.ByStatus[string(t.Status)]++
		stats.ByType[string(taskTypeOrDefault(t.Type))]++
		for _, l := range t.Labels {
			labels[l]++
		}
	}
	for l, n := range labels {
		stats.Labels = append(stats.Labels, LabelCount{Label: l, Count: n})
	}
	sort.Slice(stats.Labels, func(i, j int) bool {
		if stats.Labels[i].Count != stats.Labels[j].Count {
			return stats.Labels[i].Count > stats.Labels[j].Count
		}
		return stats.Labels[i].Label < stats.Labels[j].Label
	})
	return stats, nil
}

func (s *backlogService) Backup() (string, error) {
	return s.store.Backup()
}

// Migrate imports a legacy YAML backlog into the JSON backlog, mapping old
// status spellings onto the canonical set.
func (s *backlogService) Migrate(yamlPath string, force bool) (*MigrationResult, error) {
	legacy, err := s.store.LoadLegacyYAML(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	res := &MigrationResult{Normalized: []string{}}
	var bad []string
	var normalize func(tasks []models.Task)
	normalize = func(tasks []models.Task) {
		for i := range tasks {
			st, ok := models.NormalizeLegacyStatus(string(tasks[i].Status))
			if !ok {
				bad = append(bad, fmt.Sprintf("Task %s - unknown status %q", tasks[i].ID, tasks[i].Status))
			} else if st != tasks[i].Status {
				res.Normalized = append(res.Normalized, tasks[i].ID)
				tasks[i].Status = st
			}
			if tasks[i].Type == "" {
				tasks[i].Type = models.TaskTypeTask
			}
			normalize(tasks[i].Subtasks)
		}
	}
	normalize(legacy)
	if len(bad) > 0 {
		return nil, &ValidationError{Errors: bad}
	}
	errs, err := ValidateTasks(legacy)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	live, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	backup, err := s.write(live, legacy, nil, force)
	if err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	res.Imported = len(FlattenTasks(legacy))
	res.BackupPath = backup
	return res, nil
}

// cloneTasks deep-copies the parts of tasks that service operations mutate.
func cloneTasks(tasks []models.Task) []models.Task {
	if tasks == nil {
		return nil
	}
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		t.Subtasks = cloneTasks(t.Subtasks)
		t.SimilarTasks = append([]models.SimilarTask(nil), t.SimilarTasks...)
		if t.Dependencies != nil {
			deps := *t.Dependencies
			deps.Must = append([]models.TaskDependency(nil), deps.Must...)
			deps.NiceToHave = append([]models.TaskDependency(nil), deps.NiceToHave...)
			deps.Human = append([]models.HumanDependency(nil), deps.Human...)
			t.Dependencies = &deps
		}
		out[i] = t
	}
	return out
}
