package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the scraper
type Config struct {
	// Platform settings (user agent, automation bridge endpoint)
	Platform PlatformConfig `yaml:"platform" json:"platform"`

	// QR login polling settings
	Login LoginConfig `yaml:"login" json:"login"`

	// Keyword crawl settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Checkpoint and credential persistence
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Event fan-out configuration
	Events EventsConfig `yaml:"events" json:"events"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig holds platform-facing settings. The automation bridge is the
// external subprocess that drives the real browser; the core only talks to it
// over its local HTTP endpoint.
type PlatformConfig struct {
	UserAgent     string `yaml:"user_agent" json:"user_agent"`
	AutomationURL string `yaml:"automation_url" json:"automation_url"`
}

// LoginConfig holds QR login polling configuration
type LoginConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls" json:"max_polls"`
	SessionTTL   time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// CrawlConfig holds time-shard planning and page fetch configuration
type CrawlConfig struct {
	// MaxResultsPerShard is the platform pagination cap a single shard must stay under.
	MaxResultsPerShard int `yaml:"max_results_per_shard" json:"max_results_per_shard"`
	// MinShardHours is the floor below which shards are never split further.
	MinShardHours int           `yaml:"min_shard_hours" json:"min_shard_hours"`
	PageSize      int           `yaml:"page_size" json:"page_size"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	// Estimator selects how per-range result counts are predicted: "probe"
	// asks the live first page, "linear" uses a fixed per-hour rate.
	Estimator       string `yaml:"estimator" json:"estimator"`
	LinearPerHour   int    `yaml:"linear_per_hour" json:"linear_per_hour"`
	ConcurrentTasks int    `yaml:"concurrent_tasks" json:"concurrent_tasks"`
}

// StorageConfig selects where checkpoints and credentials are persisted
type StorageConfig struct {
	// Backend is "file" or "redis"
	Backend   string      `yaml:"backend" json:"backend"`
	Namespace string      `yaml:"namespace" json:"namespace"`
	DataDir   string      `yaml:"data_dir" json:"data_dir"`
	Redis     RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// EventsConfig holds event sink configuration
type EventsConfig struct {
	ChannelBuffer int         `yaml:"channel_buffer" json:"channel_buffer"`
	Kafka         KafkaConfig `yaml:"kafka" json:"kafka"`
}

// KafkaConfig holds the optional Kafka event sink settings
type KafkaConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Broker  string `yaml:"broker" json:"broker"`
	Topic   string `yaml:"topic" json:"topic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			AutomationURL: "http://127.0.0.1:8877",
		},
		Login: LoginConfig{
			PollInterval: 3 * time.Second,
			MaxPolls:     60,
			SessionTTL:   180 * time.Second,
		},
		Crawl: CrawlConfig{
			MaxResultsPerShard: 1000,
			MinShardHours:      1,
			PageSize:           20,
			FetchTimeout:       30 * time.Second,
			Estimator:          "probe",
			LinearPerHour:      50,
			ConcurrentTasks:    2,
		},
		Storage: StorageConfig{
			Backend:   "file",
			Namespace: "snscraper",
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				TTL:  30 * 24 * time.Hour,
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
		},
		Events: EventsConfig{
			ChannelBuffer: 64,
			Kafka: KafkaConfig{
				Enabled: false,
				Broker:  "127.0.0.1:9092",
				Topic:   "snscraper.events",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if url := os.Getenv("SNSCRAPER_AUTOMATION_URL"); url != "" {
		c.Platform.AutomationURL = url
	}
	if ua := os.Getenv("SNSCRAPER_USER_AGENT"); ua != "" {
		c.Platform.UserAgent = ua
	}
	if backend := os.Getenv("SNSCRAPER_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if addr := os.Getenv("SNSCRAPER_REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Addr = addr
	}
	if pass := os.Getenv("SNSCRAPER_REDIS_PASSWORD"); pass != "" {
		c.Storage.Redis.Password = pass
	}
	if rpm := os.Getenv("SNSCRAPER_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if est := os.Getenv("SNSCRAPER_ESTIMATOR"); est != "" {
		c.Crawl.Estimator = est
	}
	if broker := os.Getenv("SNSCRAPER_KAFKA_BROKER"); broker != "" {
		c.Events.Kafka.Broker = broker
		c.Events.Kafka.Enabled = true
	}
	if logLevel := os.Getenv("SNSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".snscraper.yaml",
		".snscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "snscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "snscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".snscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.AutomationURL == "" {
		errs = append(errs, errors.New("automation bridge URL is required"))
	}

	if c.Login.PollInterval <= 0 {
		errs = append(errs, errors.New("login poll interval must be positive"))
	}
	if c.Login.MaxPolls <= 0 {
		errs = append(errs, errors.New("login max polls must be positive"))
	}
	if c.Login.SessionTTL <= 0 {
		errs = append(errs, errors.New("login session TTL must be positive"))
	}

	if c.Crawl.MaxResultsPerShard <= 0 {
		errs = append(errs, errors.New("max results per shard must be positive"))
	}
	if c.Crawl.MinShardHours <= 0 {
		errs = append(errs, errors.New("min shard hours must be positive"))
	}
	if c.Crawl.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Crawl.ConcurrentTasks <= 0 {
		errs = append(errs, errors.New("concurrent tasks must be positive"))
	}
	if c.Crawl.Estimator != "probe" && c.Crawl.Estimator != "linear" {
		errs = append(errs, errors.New("estimator must be \"probe\" or \"linear\""))
	}
	if c.Crawl.Estimator == "linear" && c.Crawl.LinearPerHour <= 0 {
		errs = append(errs, errors.New("linear estimator rate must be positive"))
	}

	if c.Storage.Backend != "file" && c.Storage.Backend != "redis" {
		errs = append(errs, errors.New("storage backend must be \"file\" or \"redis\""))
	}
	if c.Storage.Namespace == "" {
		errs = append(errs, errors.New("storage namespace is required"))
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		errs = append(errs, errors.New("redis address is required for redis backend"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Events.Kafka.Enabled {
		if c.Events.Kafka.Broker == "" {
			errs = append(errs, errors.New("kafka broker is required when kafka sink is enabled"))
		}
		if c.Events.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka topic is required when kafka sink is enabled"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if url, ok := flags["automation-url"].(string); ok && url != "" {
		c.Platform.AutomationURL = url
	}
	if backend, ok := flags["storage"].(string); ok && backend != "" {
		c.Storage.Backend = backend
	}
	if est, ok := flags["estimator"].(string); ok && est != "" {
		c.Crawl.Estimator = est
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".snscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
