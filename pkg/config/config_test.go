package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3*time.Second, cfg.Login.PollInterval)
	assert.Equal(t, 60, cfg.Login.MaxPolls)
	assert.Equal(t, 180*time.Second, cfg.Login.SessionTTL)
	assert.Equal(t, 1000, cfg.Crawl.MaxResultsPerShard)
	assert.Equal(t, 1, cfg.Crawl.MinShardHours)
	assert.Equal(t, "probe", cfg.Crawl.Estimator)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "snscraper", cfg.Storage.Namespace)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.False(t, cfg.Events.Kafka.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing automation URL", func(c *Config) { c.Platform.AutomationURL = "" }},
		{"zero poll interval", func(c *Config) { c.Login.PollInterval = 0 }},
		{"negative max polls", func(c *Config) { c.Login.MaxPolls = -1 }},
		{"zero session TTL", func(c *Config) { c.Login.SessionTTL = 0 }},
		{"zero shard cap", func(c *Config) { c.Crawl.MaxResultsPerShard = 0 }},
		{"zero min shard", func(c *Config) { c.Crawl.MinShardHours = 0 }},
		{"zero page size", func(c *Config) { c.Crawl.PageSize = 0 }},
		{"zero concurrent tasks", func(c *Config) { c.Crawl.ConcurrentTasks = 0 }},
		{"unknown estimator", func(c *Config) { c.Crawl.Estimator = "psychic" }},
		{"linear without rate", func(c *Config) {
			c.Crawl.Estimator = "linear"
			c.Crawl.LinearPerHour = 0
		}},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"empty namespace", func(c *Config) { c.Storage.Namespace = "" }},
		{"redis backend without addr", func(c *Config) {
			c.Storage.Backend = "redis"
			c.Storage.Redis.Addr = ""
		}},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
		{"zero burst", func(c *Config) { c.RateLimit.BurstSize = 0 }},
		{"kafka enabled without broker", func(c *Config) {
			c.Events.Kafka.Enabled = true
			c.Events.Kafka.Broker = ""
		}},
		{"kafka enabled without topic", func(c *Config) {
			c.Events.Kafka.Enabled = true
			c.Events.Kafka.Topic = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Platform.AutomationURL = ""
	cfg.Login.PollInterval = 0
	cfg.Crawl.MaxResultsPerShard = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automation bridge URL")
	assert.Contains(t, err.Error(), "poll interval")
	assert.Contains(t, err.Error(), "max results per shard")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SNSCRAPER_AUTOMATION_URL", "http://10.0.0.1:9000")
	t.Setenv("SNSCRAPER_STORAGE_BACKEND", "redis")
	t.Setenv("SNSCRAPER_REDIS_ADDR", "10.0.0.2:6379")
	t.Setenv("SNSCRAPER_REQUESTS_PER_MINUTE", "12")
	t.Setenv("SNSCRAPER_ESTIMATOR", "linear")
	t.Setenv("SNSCRAPER_KAFKA_BROKER", "10.0.0.3:9092")
	t.Setenv("SNSCRAPER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "http://10.0.0.1:9000", cfg.Platform.AutomationURL)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "10.0.0.2:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 12, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "linear", cfg.Crawl.Estimator)
	assert.True(t, cfg.Events.Kafka.Enabled)
	assert.Equal(t, "10.0.0.3:9092", cfg.Events.Kafka.Broker)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("SNSCRAPER_REQUESTS_PER_MINUTE", "a lot")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
crawl:
  max_results_per_shard: 500
  estimator: linear
  linear_per_hour: 25
storage:
  backend: redis
  redis:
    addr: 10.1.1.1:6379
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 500, cfg.Crawl.MaxResultsPerShard)
	assert.Equal(t, "linear", cfg.Crawl.Estimator)
	assert.Equal(t, 25, cfg.Crawl.LinearPerHour)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "10.1.1.1:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3*time.Second, cfg.Login.PollInterval)
}

func TestLoadFromFileMissingIsError(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestLoadFromFileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"automation-url": "http://10.2.2.2:8877",
		"storage":        "redis",
		"estimator":      "linear",
		"rate-limit":     7,
		"log-level":      "error",
	})

	assert.Equal(t, "http://10.2.2.2:8877", cfg.Platform.AutomationURL)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "linear", cfg.Crawl.Estimator)
	assert.Equal(t, 7, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.MaxResultsPerShard = 750
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 750, loaded.Crawl.MaxResultsPerShard)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit:\n  requests_per_minute: 10\n"), 0644))

	// Env beats file, flags beat env.
	t.Setenv("SNSCRAPER_REQUESTS_PER_MINUTE", "20")

	cfg, err := Load(path, map[string]interface{}{"rate-limit": 40})
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.RateLimit.RequestsPerMinute)
}
