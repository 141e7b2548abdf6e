// Package core contains the backlog logic for apm: task ID allocation,
// record validation, dependency analysis, similarity detection, patch
// intake and the backlog service that ties them to storage.
package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/nishio/ai-project-manager/pkg/models"
)

// ConfigFileName is the per-project configuration file read from the base path.
const ConfigFileName = ".apmconfig"

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ConfigurationManager loads and validates the project configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML .apmconfig file.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .apmconfig from basePath and resolves relative paths against it.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no .apmconfig exists.
func DefaultConfig(basePath string) *models.Config {
	cfg := &models.Config{
		BasePath: basePath,
		Paths: models.StorePaths{
			BacklogPath: "tasks/backlog.json",
			ArchiveDir:  "tasks/archive",
			BackupDir:   "tasks/backup",
			EventLog:    ".apm_events.jsonl",
		},
		LogLevel:               "info",
		MaxUnexplainedRemovals: 5,
		SimilarityThreshold:    DefaultSimilarityThreshold,
		LLM: models.LLMConfig{
			Host:           "http://127.0.0.1:11434",
			Model:          "llama3.2",
			TimeoutSeconds: 60,
			MaxRetries:     3,
		},
		Alerts: models.AlertConfig{
			PoolUsageWarn:  0.5,
			MaxBacklogSize: 500,
			BlockedHours:   72,
		},
	}
	resolvePaths(cfg)
	return cfg
}

func setDefaults(v *viper.Viper, cfg *models.Config) {
	v.SetDefault("paths.backlog", cfg.Paths.BacklogPath)
	v.SetDefault("paths.archive_dir", cfg.Paths.ArchiveDir)
	v.SetDefault("paths.backup_dir", cfg.Paths.BackupDir)
	v.SetDefault("paths.event_log", cfg.Paths.EventLog)
	v.SetDefault("log.level", cfg.LogLevel)
	v.SetDefault("guard.max_unexplained_removals", cfg.MaxUnexplainedRemovals)
	v.SetDefault("similarity.threshold", cfg.SimilarityThreshold)
	v.SetDefault("validation.strict_references", cfg.StrictReferences)
	v.SetDefault("llm.host", cfg.LLM.Host)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)
	v.SetDefault("alerts.pool_usage_warn", cfg.Alerts.PoolUsageWarn)
	v.SetDefault("alerts.max_backlog_size", cfg.Alerts.MaxBacklogSize)
	v.SetDefault("alerts.blocked_hours", cfg.Alerts.BlockedHours)
	v.SetDefault("notifications.slack.webhook_url", "")
}

// LoadConfig reads .apmconfig from the base path. A missing file yields
// the defaults.
func (cm *viperConfigManager) LoadConfig() (*models.Config, error) {
	defaults := DefaultConfig("")

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	setDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg := &models.Config{
		BasePath: cm.basePath,
		Paths: models.StorePaths{
			BacklogPath: v.GetString("paths.backlog"),
			ArchiveDir:  v.GetString("paths.archive_dir"),
			BackupDir:   v.GetString("paths.backup_dir"),
			EventLog:    v.GetString("paths.event_log"),
		},
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		MaxUnexplainedRemovals: v.GetInt("guard.max_unexplained_removals"),
		SimilarityThreshold:    v.GetFloat64("similarity.threshold"),
		StrictReferences:       v.GetBool("validation.strict_references"),
		LLM: models.LLMConfig{
			Host:           v.GetString("llm.host"),
			Model:          v.GetString("llm.model"),
			TimeoutSeconds: v.GetInt("llm.timeout_seconds"),
			MaxRetries:     v.GetInt("llm.max_retries"),
		},
		Alerts: models.AlertConfig{
			PoolUsageWarn:  v.GetFloat64("alerts.pool_usage_warn"),
			MaxBacklogSize: v.GetInt("alerts.max_backlog_size"),
			BlockedHours:   v.GetInt("alerts.blocked_hours"),
		},
		Notifications: models.NotificationConfig{
			SlackWebhookURL: v.GetString("notifications.slack.webhook_url"),
		},
	}
	resolvePaths(cfg)
	return cfg, nil
}

// resolvePaths makes every store path absolute relative to the base path.
func resolvePaths(cfg *models.Config) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || cfg.BasePath == "" {
			return p
		}
		return filepath.Join(cfg.BasePath, p)
	}
	cfg.Paths.BacklogPath = abs(cfg.Paths.BacklogPath)
	cfg.Paths.ArchiveDir = abs(cfg.Paths.ArchiveDir)
	cfg.Paths.BackupDir = abs(cfg.Paths.BackupDir)
	cfg.Paths.EventLog = abs(cfg.Paths.EventLog)
}

// ValidateConfig checks the configuration for invalid values and returns
// one error listing every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	return ValidateConfig(cfg)
}

// ValidateConfig is the package-level form of ConfigurationManager.ValidateConfig.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string
	for key, val := range map[string]string{
		"paths.backlog":     cfg.Paths.BacklogPath,
		"paths.archive_dir": cfg.Paths.ArchiveDir,
		"paths.backup_dir":  cfg.Paths.BackupDir,
	} {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, key+" must not be empty")
		}
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.MaxUnexplainedRemovals < 0 {
		errs = append(errs, fmt.Sprintf("guard.max_unexplained_removals must be non-negative, got %d", cfg.MaxUnexplainedRemovals))
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("similarity.threshold must be in (0, 1], got %g", cfg.SimilarityThreshold))
	}
	if cfg.Alerts.PoolUsageWarn <= 0 || cfg.Alerts.PoolUsageWarn > 1 {
		errs = append(errs, fmt.Sprintf("alerts.pool_usage_warn must be in (0, 1], got %g", cfg.Alerts.PoolUsageWarn))
	}
	if cfg.Alerts.MaxBacklogSize < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_backlog_size must be non-negative, got %d", cfg.Alerts.MaxBacklogSize))
	}
	if cfg.Alerts.BlockedHours < 0 {
		errs = append(errs, fmt.Sprintf("alerts.blocked_hours must be non-negative, got %d", cfg.Alerts.BlockedHours))
	}
	if cfg.LLM.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("llm.timeout_seconds must be non-negative, got %d", cfg.LLM.TimeoutSeconds))
	}
	if cfg.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("llm.max_retries must be non-negative, got %d", cfg.LLM.MaxRetries))
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
