// Package config provides configuration loading, validation, and management
// for the summary bot. It reads a YAML file, applies BOT_* environment
// overrides, fills defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	errs "github.com/edgard/summarybot/internal/errors"
)

// ErrConfiguration wraps every error produced while loading or validating configuration.
var ErrConfiguration = errs.ErrConfiguration

// Mode values.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config defines the application configuration parameters for all components.
type Config struct {
	Mode string `mapstructure:"mode" validate:"oneof=production development"`

	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQLite archive location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// DiscordConfig holds gateway credentials, the monitored scopes and publishing options.
// The Dev* fields replace their production counterparts in development mode.
type DiscordConfig struct {
	Token            string   `mapstructure:"token"              validate:"required"`
	GuildID          string   `mapstructure:"guild_id"           validate:"omitempty,numeric"`
	SummaryChannelID string   `mapstructure:"summary_channel_id" validate:"omitempty,numeric"`
	AdminChannelID   string   `mapstructure:"admin_channel_id"   validate:"omitempty,numeric"`
	MonitoredIDs     []string `mapstructure:"monitored_ids"      validate:"dive,numeric"`

	DevGuildID          string   `mapstructure:"dev_guild_id"           validate:"omitempty,numeric"`
	DevSummaryChannelID string   `mapstructure:"dev_summary_channel_id" validate:"omitempty,numeric"`
	DevMonitoredIDs     []string `mapstructure:"dev_monitored_ids"      validate:"dive,numeric"`

	// Targets maps a monitored channel or category ID to the channel its summary is posted in.
	Targets map[string]string `mapstructure:"targets" validate:"dive,keys,numeric,endkeys,numeric"`

	Pin                  bool `mapstructure:"pin"`
	ThreadThreshold      int  `mapstructure:"thread_threshold"       validate:"min=0"`
	MaxMessageLength     int  `mapstructure:"max_message_length"     validate:"min=200,max=2000"`
	ThreadArchiveMinutes int  `mapstructure:"thread_archive_minutes" validate:"oneof=60 1440 4320 10080"`
}

// LLMConfig configures the summarization model and its call budget.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"           validate:"oneof=gemini openai"`
	APIKey            string        `mapstructure:"api_key"            validate:"required"`
	BaseURL           string        `mapstructure:"base_url"           validate:"omitempty,url"`
	Model             string        `mapstructure:"model"              validate:"required"`
	ShortModel        string        `mapstructure:"short_model"`
	Temperature       float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	MaxRetries        int           `mapstructure:"max_retries"        validate:"min=0,max=10"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"        validate:"min=0,max=5m"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"min=1"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"    validate:"min=1,max=64"`
	MaxChunkTokens    int           `mapstructure:"max_chunk_tokens"   validate:"min=500,max=1000000"`
	MaxChunkMessages  int           `mapstructure:"max_chunk_messages" validate:"min=1"`
}

// PipelineConfig controls the daily summary run.
type PipelineConfig struct {
	Window         time.Duration `mapstructure:"window"          validate:"min=1m"`
	MinMessages    int           `mapstructure:"min_messages"    validate:"min=1"`
	Workers        int           `mapstructure:"workers"         validate:"min=1,max=32"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"    validate:"min=1s,max=10m"`
	PublishRetries int           `mapstructure:"publish_retries" validate:"min=0,max=10"`
	LiveFetch      bool          `mapstructure:"live_fetch"`
	Digest         bool          `mapstructure:"digest"`

	// Attachments of messages with at least MediaMinReactions reactions that
	// the news items do not show are uploaded after them, MaxMedia at most.
	MediaMinReactions int `mapstructure:"media_min_reactions" validate:"min=0"`
	MaxMedia          int `mapstructure:"max_media"           validate:"min=0,max=25"`
}

// IngestConfig sizes the queue between the gateway listener and the store writer.
type IngestConfig struct {
	QueueSize     int           `mapstructure:"queue_size"     validate:"min=1"`
	BatchSize     int           `mapstructure:"batch_size"     validate:"min=1"`
	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"min=10ms"`
}

// HTTPConfig configures the health, metrics and manual trigger endpoint.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// ArchiveConfig controls explicit archive cleanup.
type ArchiveConfig struct {
	RetentionDays int `mapstructure:"retention_days" validate:"min=0"`
}

// SchedulerConfig lists the cron tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a registered task and sets its cron schedule (seconds field included).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Option overrides a configuration key after the file and environment are read.
type Option func(v *viper.Viper)

// WithMode forces the run mode, as the --dev flag does.
func WithMode(mode string) Option {
	return func(v *viper.Viper) {
		v.Set("mode", mode)
	}
}

// Load reads configuration from path (if present), BOT_* environment variables and
// defaults, then validates it. A missing file is not an error.
func Load(path string, opts ...Option) (*Config, error) {
	startTime := time.Now()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		}
	}

	for _, opt := range opts {
		opt(v)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Configuration loaded",
		"mode", cfg.Mode,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"db_path", cfg.Database.Path,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// Validate checks struct tags and the cross-field rules that depend on Mode.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	scope := c.Scope()
	if len(scope.MonitoredIDs) == 0 {
		return fmt.Errorf("%w: no monitored channels or categories configured for %s mode", ErrConfiguration, c.Mode)
	}
	if scope.SummaryChannelID == "" {
		return fmt.Errorf("%w: summary channel is required for %s mode", ErrConfiguration, c.Mode)
	}

	seen := make(map[string]struct{}, len(scope.MonitoredIDs))
	for _, id := range scope.MonitoredIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: monitored id %s listed twice", ErrConfiguration, id)
		}
		seen[id] = struct{}{}
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("%w: scheduler task %q is enabled without a schedule", ErrConfiguration, name)
		}
	}

	return nil
}
