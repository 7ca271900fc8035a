package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultDBPath   = "summaries.db"

	DefaultLLMProvider          = "gemini"
	DefaultLLMModel             = "gemini-2.0-flash"
	DefaultLLMTemperature       = 0.4
	DefaultLLMMaxRetries        = 3
	DefaultLLMRetryDelay        = 5 * time.Second
	DefaultLLMRequestsPerMinute = 30
	DefaultLLMMaxConcurrency    = 2
	DefaultLLMMaxChunkTokens    = 60000
	DefaultLLMMaxChunkMessages  = 1000

	DefaultPipelineWindow      = 24 * time.Hour
	DefaultPipelineMinMessages = 25
	DefaultPipelineWorkers     = 4
	DefaultCallTimeout         = 30 * time.Second
	DefaultPublishRetries      = 3
	DefaultMediaMinReactions   = 3
	DefaultMaxMedia            = 10

	DefaultMaxMessageLength     = 1900 // Discord's hard limit is 2000
	DefaultThreadThreshold      = 3
	DefaultThreadArchiveMinutes = 1440

	DefaultIngestQueueSize     = 1024
	DefaultIngestBatchSize     = 50
	DefaultIngestFlushInterval = 2 * time.Second

	DefaultHTTPAddr = ":8080"

	// DailySummarySchedule runs at 10:00 UTC.
	DailySummarySchedule   = "0 0 10 * * *"
	SQLMaintenanceSchedule = "0 30 4 * * 0"
	ArchiveCleanupSchedule = "0 0 5 * * *"
)

// setDefaults registers defaults for every key so that AutomaticEnv can override any of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeProduction)

	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.summary_channel_id", "")
	v.SetDefault("discord.admin_channel_id", "")
	v.SetDefault("discord.monitored_ids", []string{})
	v.SetDefault("discord.dev_guild_id", "")
	v.SetDefault("discord.dev_summary_channel_id", "")
	v.SetDefault("discord.dev_monitored_ids", []string{})
	v.SetDefault("discord.targets", map[string]string{})
	v.SetDefault("discord.pin", true)
	v.SetDefault("discord.thread_threshold", DefaultThreadThreshold)
	v.SetDefault("discord.max_message_length", DefaultMaxMessageLength)
	v.SetDefault("discord.thread_archive_minutes", DefaultThreadArchiveMinutes)

	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.short_model", "")
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
	v.SetDefault("llm.system_instruction", "")
	v.SetDefault("llm.max_retries", DefaultLLMMaxRetries)
	v.SetDefault("llm.retry_delay", DefaultLLMRetryDelay)
	v.SetDefault("llm.requests_per_minute", DefaultLLMRequestsPerMinute)
	v.SetDefault("llm.max_concurrency", DefaultLLMMaxConcurrency)
	v.SetDefault("llm.max_chunk_tokens", DefaultLLMMaxChunkTokens)
	v.SetDefault("llm.max_chunk_messages", DefaultLLMMaxChunkMessages)

	v.SetDefault("pipeline.window", DefaultPipelineWindow)
	v.SetDefault("pipeline.min_messages", DefaultPipelineMinMessages)
	v.SetDefault("pipeline.workers", DefaultPipelineWorkers)
	v.SetDefault("pipeline.call_timeout", DefaultCallTimeout)
	v.SetDefault("pipeline.publish_retries", DefaultPublishRetries)
	v.SetDefault("pipeline.live_fetch", false)
	v.SetDefault("pipeline.digest", true)
	v.SetDefault("pipeline.media_min_reactions", DefaultMediaMinReactions)
	v.SetDefault("pipeline.max_media", DefaultMaxMedia)

	v.SetDefault("ingest.queue_size", DefaultIngestQueueSize)
	v.SetDefault("ingest.batch_size", DefaultIngestBatchSize)
	v.SetDefault("ingest.flush_interval", DefaultIngestFlushInterval)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", DefaultHTTPAddr)

	v.SetDefault("archive.retention_days", 0)

	v.SetDefault("scheduler.tasks", map[string]any{
		"daily_summary":   map[string]any{"enabled": true, "schedule": DailySummarySchedule},
		"sql_maintenance": map[string]any{"enabled": true, "schedule": SQLMaintenanceSchedule},
		"archive_cleanup": map[string]any{"enabled": false, "schedule": ArchiveCleanupSchedule},
	})
}
