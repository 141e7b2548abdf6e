// Package internal provides the App struct that wires all components of apm
// together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishio/ai-project-manager/internal/cli"
	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/integration"
	"github.com/nishio/ai-project-manager/internal/logging"
	"github.com/nishio/ai-project-manager/internal/observability"
	"github.com/nishio/ai-project-manager/internal/storage"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// HomeEnv names the environment variable that overrides the base path.
const HomeEnv = "APM_HOME"

// App holds all service dependencies for apm.
type App struct {
	BasePath string
	Config   *models.Config
	Logger   *log.Logger

	Store   storage.BacklogStore
	Backlog core.BacklogService
	LLM     integration.Completer

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp loads the configuration under basePath and wires every component.
// An unreadable or invalid configuration is an error; a missing one means
// defaults. Failing to open the event log or to set up the LLM client only
// disables those features.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	cfgMgr := core.NewConfigurationManager(basePath)
	cfg, err := cfgMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfgMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath.Join(basePath, core.ConfigFileName), err)
	}
	app.Config = cfg

	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	app.Logger = logging.New(opts)

	// --- Storage layer ---
	app.Store = storage.NewBacklogStore(cfg.Paths, app.Logger)

	// --- Observability ---
	var events core.EventLogger
	if cfg.Paths.EventLog != "" {
		app.EventLog, err = observability.NewJSONLEventLog(cfg.Paths.EventLog)
		if err != nil {
			app.Logger.Warn("event log disabled", "path", cfg.Paths.EventLog, "err", err)
			app.EventLog = nil
		}
	}
	if app.EventLog != nil {
		events = observability.NewRecorder(app.EventLog)
	}

	// --- Core services ---
	app.Backlog = core.NewBacklogService(app.Store, events, app.Logger, core.ServiceOptions{
		MaxUnexplainedRemovals: cfg.MaxUnexplainedRemovals,
		SimilarityThreshold:    cfg.SimilarityThreshold,
		StrictReferences:       cfg.StrictReferences,
	})

	if app.EventLog != nil {
		thresholds := observability.DefaultAlertThresholds()
		if cfg.Alerts.PoolUsageWarn > 0 {
			thresholds.PoolUsageWarn = cfg.Alerts.PoolUsageWarn
		}
		if cfg.Alerts.MaxBacklogSize > 0 {
			thresholds.MaxBacklogSize = cfg.Alerts.MaxBacklogSize
		}
		if cfg.Alerts.BlockedHours > 0 {
			thresholds.BlockedHours = cfg.Alerts.BlockedHours
		}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, backlogSnapshot(app.Backlog, time.Now), thresholds)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.SlackWebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.SlackWebhookURL)
	}

	// --- Integration services ---
	app.LLM, err = integration.NewOllamaCompleter(integration.OllamaConfig{
		Host:       cfg.LLM.Host,
		Model:      cfg.LLM.Model,
		Timeout:    time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.LLM.MaxRetries,
	}, app.Logger)
	if err != nil {
		app.Logger.Warn("LLM client disabled", "err", err)
		app.LLM = nil
	}

	// --- Wire CLI package-level variables ---
	cli.Config = cfg
	cli.Logger = app.Logger
	cli.Backlog = app.Backlog
	cli.LLM = app.LLM

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// backlogSnapshot returns the SnapshotFunc the alert engine evaluates. A
// dependency cycle does not fail the snapshot: waiting human approvals are
// then read from the unchecked graph.
func backlogSnapshot(backlog core.BacklogService, now func() time.Time) observability.SnapshotFunc {
	return func() (*observability.BacklogSnapshot, error) {
		live, err := backlog.Tasks()
		if err != nil {
			return nil, err
		}
		alloc, err := backlog.Allocator()
		if err != nil {
			return nil, err
		}
		pool := alloc.Status()
		snap := &observability.BacklogSnapshot{
			PoolUsage: pool.Usage,
			PoolUsed:  pool.Used,
			PoolTotal: pool.Total,
		}

		flat := core.FlattenTasks(live)
		for _, t := range flat {
			if t.Status != models.StatusDone {
				snap.OpenTasks++
			}
			if t.Status == models.StatusBlocked {
				snap.Blocked = append(snap.Blocked, t.ID)
			}
		}
		for _, t := range core.ExpiredTasks(live, now()) {
			snap.Overdue = append(snap.Overdue, observability.OverdueTask{ID: t.ID, Title: t.Title, DueDate: t.DueDate})
		}

		var analysis core.Analysis
		report, err := backlog.Analyze()
		switch {
		case err == nil:
			analysis = report.Analysis
		case errors.Is(err, core.ErrCyclicDependency):
			g, gerr := backlog.Graph()
			if gerr != nil {
				return nil, gerr
			}
			analysis = g.Analyze()
		default:
			return nil, err
		}
		for _, b := range analysis.Blocked {
			for _, r := range b.Reasons {
				if r.Kind == core.ReasonHuman {
					snap.HumanWaiting = append(snap.HumanWaiting, observability.WaitingApproval{TaskID: b.TaskID, Assignee: r.Assignee, Action: r.Action})
				}
			}
		}
		return snap, nil
	}
}

// ResolveBasePath determines the directory holding .apmconfig and the
// backlog. APM_HOME wins; otherwise the nearest ancestor of the working
// directory containing .apmconfig; otherwise the working directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
