package cli

import (
	"github.com/charmbracelet/log"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/integration"
	"github.com/nishio/ai-project-manager/internal/observability"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	Backlog core.BacklogService
	Config  *models.Config
	Logger  *log.Logger
	LLM     integration.Completer
)

// Observability service instances. They stay nil when the event log could
// not be opened.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
