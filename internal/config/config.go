package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// StorageConfig holds settings for the config and history stores
type StorageConfig struct {
	KeyFile         string `mapstructure:"key_file"`
	HistoryCapacity int    `mapstructure:"history_capacity"`
}

// FilterConfig holds the notification ignore rules
type FilterConfig struct {
	SelfIdentity   string   `mapstructure:"self_identity"`
	IgnoredSources []string `mapstructure:"ignored_sources"`
	MinPriority    int      `mapstructure:"min_priority"`
}

// DeliveryConfig holds email delivery tuning
type DeliveryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	RatePerMinute  int           `mapstructure:"rate_per_minute"`
	LocalName      string        `mapstructure:"local_name"`
}

// SupervisorConfig holds pipeline supervision settings
type SupervisorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	RequeueStale bool          `mapstructure:"requeue_stale"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// LoggingConfig holds logrus settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from environment variables and config file.
// An empty configFile searches the default locations.
func LoadConfig(configFile string) (*Config, *viper.Viper, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Set defaults
	setDefaults(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, v, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/notify-mail-relay.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)

	v.SetDefault("storage.key_file", "data/config.key")
	v.SetDefault("storage.history_capacity", 100)

	v.SetDefault("filter.self_identity", "notify-mail-relay")
	v.SetDefault("filter.ignored_sources", []string{})
	v.SetDefault("filter.min_priority", 0)

	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.retry_delay", "5s")
	v.SetDefault("delivery.attempt_timeout", "10s")
	v.SetDefault("delivery.rate_per_minute", 0)
	v.SetDefault("delivery.local_name", "localhost")

	v.SetDefault("supervisor.interval", "5m")
	v.SetDefault("supervisor.settle_delay", "10s")
	v.SetDefault("supervisor.requeue_stale", true)
	v.SetDefault("supervisor.stale_after", "2m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Storage
	v.BindEnv("storage.key_file", "STORAGE_KEY_FILE")

	// Delivery
	v.BindEnv("delivery.max_attempts", "DELIVERY_MAX_ATTEMPTS")
	v.BindEnv("delivery.retry_delay", "DELIVERY_RETRY_DELAY")
	v.BindEnv("delivery.rate_per_minute", "DELIVERY_RATE_PER_MINUTE")

	// Supervisor
	v.BindEnv("supervisor.interval", "SUPERVISOR_INTERVAL")
	v.BindEnv("supervisor.settle_delay", "SUPERVISOR_SETTLE_DELAY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Storage.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be greater than 0")
	}

	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("delivery max attempts must be greater than 0")
	}
	if c.Delivery.AttemptTimeout <= 0 {
		return fmt.Errorf("delivery attempt timeout must be greater than 0")
	}
	if c.Delivery.RetryDelay < 0 || c.Delivery.RatePerMinute < 0 {
		return fmt.Errorf("delivery retry delay and rate must not be negative")
	}

	if c.Supervisor.Interval <= 0 {
		return fmt.Errorf("supervisor interval must be greater than 0")
	}

	return nil
}

// WatchLogLevel re-applies the logging level whenever the config file changes.
func WatchLogLevel(v *viper.Viper, apply func(level string)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		logrus.Infof("Config file changed: %s", e.Name)
		apply(v.GetString("logging.level"))
	})
	v.WatchConfig()
}
