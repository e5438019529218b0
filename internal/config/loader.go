package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default phrase tables for the loop detector. These match the phrasing the
// AI assistant is instructed to use, so an echoed reply is recognized even
// when the in-memory fingerprint state was lost to a restart.
var (
	defaultBotSignatures = []string{
		"Елена, Textile Pro",
		"Textile Pro",
		"Текстиль Про",
		"Передала информацию менеджеру",
		"Передам ваше сообщение менеджеру",
		"скоро подключится к диалогу",
		"подключится к диалогу",
		"Поняла, мне нужно немного времени",
		"Скоро вернусь",
	}

	defaultBotGreetings = []string{
		"Добрый день!",
		"Здравствуйте!",
		"Меня зовут Елена",
		"Я - Елена",
		"консультант компании Textile Pro",
		"консультант Textile Pro",
	}
)

// LoadConfig loads and validates configuration from, in order of precedence:
// BOT_* environment variables, the YAML file at path (optional), defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, everything can come from env.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		// Environment variables arrive as strings; let them decode into
		// numeric fields like telegram.admin_id.
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	// Secrets have no usable default, but registering the keys lets them be
	// supplied purely through BOT_* environment variables.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_id", 0)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.listen_addr", ":8080")
	v.SetDefault("gemini.api_key", "")

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.system_instruction",
		"You are Elena, a textile production consultant at Textile Pro. "+
			"Answer customer questions about fabrics, pricing and manufacturing "+
			"briefly and politely, in the customer's language.")
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("loop.min_message_interval", 2*time.Second)
	v.SetDefault("loop.duplicate_window", 5*time.Minute)
	v.SetDefault("loop.max_tracked_messages", 50)
	v.SetDefault("loop.bot_signatures", defaultBotSignatures)
	v.SetDefault("loop.bot_greetings", defaultBotGreetings)

	v.SetDefault("messages.welcome",
		"👋 Здравствуйте! Я консультант Textile Pro. Напишите ваш вопрос о текстильном производстве!")
	v.SetDefault("messages.help",
		"ℹ️ Помощь:\n/start - начать работу\n/help - показать помощь\n\nПросто напишите ваш вопрос о текстильном производстве.")
	v.SetDefault("messages.general_error",
		"Извините, произошла временная ошибка. Пожалуйста, попробуйте позже или обратитесь к нашему менеджеру.")
	v.SetDefault("messages.not_authorized", "🚫 Access denied.")

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"detector_sweep": {Enabled: true, Schedule: "*/5 * * * *"},
		"registry_stats": {Enabled: true, Schedule: "0 * * * *"},
		"db_maintenance": {Enabled: true, Schedule: "0 4 * * *"},
	})
}
