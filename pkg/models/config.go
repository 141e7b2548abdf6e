package models

// StorePaths locates every file the backlog store reads or writes.
// All paths are absolute once resolved by the configuration manager.
type StorePaths struct {
	BacklogPath string `yaml:"backlog" mapstructure:"backlog"`
	ArchiveDir  string `yaml:"archive_dir" mapstructure:"archive_dir"`
	BackupDir   string `yaml:"backup_dir" mapstructure:"backup_dir"`
	EventLog    string `yaml:"event_log" mapstructure:"event_log"`
}

// LLMConfig configures the completion API used for next-action suggestions.
type LLMConfig struct {
	Host           string `yaml:"host" mapstructure:"host"`
	Model          string `yaml:"model" mapstructure:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// AlertConfig holds thresholds for the alert engine.
type AlertConfig struct {
	PoolUsageWarn  float64 `yaml:"pool_usage_warn" mapstructure:"pool_usage_warn"`
	MaxBacklogSize int     `yaml:"max_backlog_size" mapstructure:"max_backlog_size"`
	BlockedHours   int     `yaml:"blocked_hours" mapstructure:"blocked_hours"`
}

// NotificationConfig holds the Slack webhook used by `alerts --notify`.
type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`
}

// Config is the process-wide configuration, built once at start-up and
// passed explicitly to every service.
type Config struct {
	BasePath               string             `yaml:"-" mapstructure:"-"`
	Paths                  StorePaths         `yaml:"paths" mapstructure:"paths"`
	LogLevel               string             `yaml:"log_level" mapstructure:"log_level"`
	MaxUnexplainedRemovals int                `yaml:"max_unexplained_removals" mapstructure:"max_unexplained_removals"`
	SimilarityThreshold    float64            `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	StrictReferences       bool               `yaml:"strict_references" mapstructure:"strict_references"`
	LLM                    LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Alerts                 AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications          NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}
