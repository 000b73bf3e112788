package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"memtest-go/internal/session"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

var confMu sync.RWMutex

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Test     TestConfig     `mapstructure:"test"`
	Export   ExportConfig   `mapstructure:"export"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
}

// DatabaseConfig holds database connection settings. Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// StoreConfig selects where live sessions are kept.
type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// TestConfig fixes the trial plan.
type TestConfig struct {
	TrialSizes        []int         `mapstructure:"trial_sizes"`
	MemorizeLimit     time.Duration `mapstructure:"memorize_limit"`
	QuestionnairePath string        `mapstructure:"questionnaire_path"`
}

// ExportConfig holds where the export command writes by default.
type ExportConfig struct {
	Directory string `mapstructure:"directory"`
	Filename  string `mapstructure:"filename"`
}

// AdminConfig protects the export endpoint. PasswordHash is a bcrypt hash.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-in-production")
	v.SetDefault("server.secure_cookies", false)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "memtest-db")
	v.SetDefault("database.path", "data/memtest.db")

	// Session store defaults
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.ttl", "2h")
	v.SetDefault("store.sweep_interval", "1m")

	// Test defaults
	v.SetDefault("test.trial_sizes", session.DefaultTrialSizes)
	v.SetDefault("test.memorize_limit", session.DefaultMemorizeLimit)
	v.SetDefault("test.questionnaire_path", "")

	// Export defaults
	v.SetDefault("export.directory", "exports")
	v.SetDefault("export.filename", "memtest-results.xlsx")

	// Admin defaults
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
}

// Load reads defaults, the optional config file and environment overrides.
// It does not watch for changes.
func Load(projectRoot string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// e.g., MEMTEST_SERVER_PORT
	v.SetEnvPrefix("MEMTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Init loads the configuration into Conf and reloads it when the file changes.
// A reloaded file that fails validation is ignored.
func Init(projectRoot string, log *zap.Logger) (*Config, error) {
	cfg, v, err := Load(projectRoot)
	if err != nil {
		return nil, err
	}
	set(cfg)

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
			next, err := decode(v)
			if err != nil {
				log.Error("Error reloading configuration", zap.Error(err))
				return
			}
			set(next)
		})
		v.WatchConfig()
	}

	log.Info("Configuration loaded successfully", zap.String("file", v.ConfigFileUsed()))
	return cfg, nil
}

// Current returns the most recently loaded configuration.
func Current() *Config {
	confMu.RLock()
	defer confMu.RUnlock()
	return Conf
}

func set(cfg *Config) {
	confMu.Lock()
	Conf = cfg
	confMu.Unlock()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("test: %w", err)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}
	if c.Store.TTL <= 0 {
		return errors.New("store: ttl must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return errors.New("store: sweep_interval must be positive")
	}
	return nil
}

// Settings converts the test section into session settings.
func (c *Config) Settings() session.Settings {
	return session.Settings{
		TrialSizes:    append([]int(nil), c.Test.TrialSizes...),
		MemorizeLimit: c.Test.MemorizeLimit,
	}
}

// ExportPath is the default location of the export file.
func (c *Config) ExportPath() string {
	return filepath.Join(c.Export.Directory, c.Export.Filename)
}
