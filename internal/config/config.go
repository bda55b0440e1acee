package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field empty.
const (
	defaultListenAddr      = ":8317"
	defaultDatabaseDSN     = "data/formsentry.db"
	defaultAbuseIPDBURL    = "https://api.abuseipdb.com"
	defaultMaxAgeInDays    = 90
	defaultOpenAIURL       = "https://api.openai.com"
	defaultOpenAIModel     = "gpt-3.5-turbo"
	defaultRequestTimeout  = 10 * time.Second
	defaultModerationQueue = 256
	defaultWorkerCount     = 4
)

// Config is the root configuration for the intake service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AbuseIPDB  AbuseIPDBConfig  `yaml:"abuseipdb"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Logging    LoggingConfig    `yaml:"logging"`
	Moderation ModerationConfig `yaml:"moderation"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the database DSN (postgres URL/keywords or a
// sqlite file path).
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the optional redis connection used for per-minute
// rate limiting. An empty Addr selects the in-memory limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AbuseIPDBConfig configures the IP reputation oracle.
type AbuseIPDBConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	MaxAgeInDays int           `yaml:"max_age_in_days"`
	Timeout      time.Duration `yaml:"timeout"`
}

// OpenAIConfig configures the LLM spam classifier.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls log level and optional file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ModerationConfig sizes the background moderation pool.
type ModerationConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// ResolveConfigPath picks the config file path from the flag value, the
// CONFIG_PATH environment variable, or the default location, in that order.
func ResolveConfigPath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if fromEnv := strings.TrimSpace(os.Getenv("CONFIG_PATH")); fromEnv != "" {
		return fromEnv
	}
	return "config.yaml"
}

// Load reads the YAML config file, applies defaults and environment
// overrides. A missing file is not an error; the defaults plus environment
// variables are enough to run against SQLite.
func Load(path string) (Config, error) {
	var cfg Config

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return cfg, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	} else if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		c.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("ABUSE_IP_DB_API_KEY")); v != "" {
		c.AbuseIPDB.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		c.OpenAI.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = defaultListenAddr
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		c.Database.DSN = defaultDatabaseDSN
	}
	if strings.TrimSpace(c.AbuseIPDB.BaseURL) == "" {
		c.AbuseIPDB.BaseURL = defaultAbuseIPDBURL
	}
	if c.AbuseIPDB.MaxAgeInDays <= 0 {
		c.AbuseIPDB.MaxAgeInDays = defaultMaxAgeInDays
	}
	if c.AbuseIPDB.Timeout <= 0 {
		c.AbuseIPDB.Timeout = defaultRequestTimeout
	}
	if strings.TrimSpace(c.OpenAI.BaseURL) == "" {
		c.OpenAI.BaseURL = defaultOpenAIURL
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = defaultOpenAIModel
	}
	if c.OpenAI.Timeout <= 0 {
		c.OpenAI.Timeout = defaultRequestTimeout
	}
	if c.Moderation.QueueSize <= 0 {
		c.Moderation.QueueSize = defaultModerationQueue
	}
	if c.Moderation.Workers <= 0 {
		c.Moderation.Workers = defaultWorkerCount
	}
}

// ValidateCredentials fails when an enabled moderation capability is missing
// its external credential. Checked once at startup, not per request.
func (c *Config) ValidateCredentials(needReputation, needSpamDetection bool) error {
	if needReputation && strings.TrimSpace(c.AbuseIPDB.APIKey) == "" {
		return fmt.Errorf("config: abuseipdb api key is required while IP reputation checks are enabled")
	}
	if needSpamDetection && strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("config: openai api key is required while spam detection is enabled")
	}
	return nil
}
