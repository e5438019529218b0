// Package config manages application configuration from default values,
// an optional config.yaml file, and BOT_* environment variables.
package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config holds all application configuration, populated by LoadConfig.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds bot credentials and webhook transport settings.
type TelegramConfig struct {
	Token         string `mapstructure:"token"          validate:"required"`
	AdminID       int64  `mapstructure:"admin_id"       validate:"required,gt=0"`
	WebhookURL    string `mapstructure:"webhook_url"    validate:"required,url"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required"`
	ListenAddr    string `mapstructure:"listen_addr"    validate:"required"`

	// BotInfo is populated at runtime after GetMe, not from config sources.
	BotInfo *models.User `mapstructure:"-"`
}

// GeminiConfig holds settings for the Gemini AI client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"             validate:"required"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	Temperature       float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	SystemInstruction string  `mapstructure:"system_instruction"  validate:"required"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=1,max=60"`
}

// DatabaseConfig holds settings for the SQLite ownership registry.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoopConfig holds the loop-detector tuning knobs and the phrase tables used
// for signature matching. The phrase lists are data, not logic: they can be
// changed per deployment without touching code.
type LoopConfig struct {
	MinMessageInterval time.Duration `mapstructure:"min_message_interval" validate:"min=0"`
	DuplicateWindow    time.Duration `mapstructure:"duplicate_window"     validate:"min=1s"`
	MaxTrackedMessages int           `mapstructure:"max_tracked_messages" validate:"min=1"`
	BotSignatures      []string      `mapstructure:"bot_signatures"`
	BotGreetings       []string      `mapstructure:"bot_greetings"`
}

// MessagesConfig holds user-facing reply texts.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"        validate:"required"`
	Help          string `mapstructure:"help"           validate:"required"`
	GeneralError  string `mapstructure:"general_error"  validate:"required"`
	NotAuthorized string `mapstructure:"not_authorized" validate:"required"`
}

// TaskConfig describes a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}
