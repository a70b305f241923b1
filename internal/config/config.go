// Package config manages application configuration from config.yaml,
// BOT_* environment variables, and default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all
// components: Telegram access, logging, database, the broadcast engine,
// and scheduled maintenance tasks.
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// TelegramConfig holds bot credentials and the operator identity.
type TelegramConfig struct {
	Token   string `mapstructure:"token"    validate:"required"`
	AdminID int64  `mapstructure:"admin_id" validate:"required,gt=0"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// BroadcastConfig tunes the delivery queue and the broadcast loop.
// The dispatch interval and send ceiling are not here: those are operator
// settings persisted in the schedule row, not deployment configuration.
type BroadcastConfig struct {
	Workers            int           `mapstructure:"workers"              validate:"required,min=1,max=32"`
	QueueSize          int           `mapstructure:"queue_size"           validate:"required,min=1"`
	RatePerSec         int           `mapstructure:"rate_per_sec"         validate:"required,min=1,max=30"`
	RetryAttempts      int           `mapstructure:"retry_attempts"       validate:"required,min=1,max=10"`
	SendTimeout        time.Duration `mapstructure:"send_timeout"         validate:"required,min=1s"`
	AdmissionTTL       time.Duration `mapstructure:"admission_ttl"        validate:"required,min=1m"`
	AdmissionCacheSize int           `mapstructure:"admission_cache_size" validate:"required,min=1"`
	IdlePoll           time.Duration `mapstructure:"idle_poll"            validate:"required,min=1s"`
	EmptyWait          time.Duration `mapstructure:"empty_wait"           validate:"required,min=1s"`
	ErrorCooldown      time.Duration `mapstructure:"error_cooldown"       validate:"required,min=1s"`
}

// SchedulerConfig lists cron-driven maintenance tasks keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a registered maintenance task on a cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration from config.yaml (optional) and BOT_* environment
// variables over the defaults, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit file path surfaces a plain fs.ErrNotExist rather
		// than viper's not-found error.
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults plus env apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Zero values so viper knows the keys; env and file values override,
	// validation rejects them if nothing does.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_id", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("database.path", "adcaster.db")

	v.SetDefault("broadcast.workers", 4)
	v.SetDefault("broadcast.queue_size", 64)
	v.SetDefault("broadcast.rate_per_sec", 20)
	v.SetDefault("broadcast.retry_attempts", 3)
	v.SetDefault("broadcast.send_timeout", 30*time.Second)
	v.SetDefault("broadcast.admission_ttl", time.Hour)
	v.SetDefault("broadcast.admission_cache_size", 512)
	v.SetDefault("broadcast.idle_poll", 5*time.Second)
	v.SetDefault("broadcast.empty_wait", 30*time.Second)
	v.SetDefault("broadcast.error_cooldown", time.Minute)

	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.admission_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.admission_sweep.schedule", "0 30 * * * *")
}
