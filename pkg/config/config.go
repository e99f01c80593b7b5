package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/warden/pkg/models"
)

// Config holds all Warden configuration.
type Config struct {
	Listen     string               `yaml:"listen"`
	DBPath     string               `yaml:"db_path"`
	Provider   ProviderConfig       `yaml:"provider"`
	Classifier ClassifierConfig     `yaml:"classifier"`
	Moderation ModerationConfig     `yaml:"moderation"`
	LogWriter  LogWriterConfig      `yaml:"log_writer"`
	Session    SessionConfig        `yaml:"session"`
	AutoBan    models.AutoBanConfig `yaml:"auto_ban"`
	Notify     NotifyConfig         `yaml:"notify"`
}

// ProviderConfig defines the upstream AI provider requests are forwarded to.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// ClassifierConfig points at the external content classifier.
type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModerationConfig controls the moderation gate and its result cache.
type ModerationConfig struct {
	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	MaxContentLen int           `yaml:"max_content_len"`
}

// LogWriterConfig controls request-log batching.
type LogWriterConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
}

// SessionConfig controls conversation correlation.
type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig lists webhook targets for ban notifications.
type NotifyConfig struct {
	Webhooks []string      `yaml:"webhooks"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "warden.db",
		Classifier: ClassifierConfig{
			Timeout: 10 * time.Second,
		},
		Moderation: ModerationConfig{
			CacheSize:     4096,
			CacheTTL:      30 * time.Minute,
			MaxContentLen: 4096,
		},
		LogWriter: LogWriterConfig{
			FlushInterval: 500 * time.Millisecond,
			MaxBatchSize:  100,
		},
		Session: SessionConfig{
			Timeout: 30 * time.Minute,
		},
		AutoBan: models.AutoBanConfig{
			Enabled:            true,
			ViolationThreshold: models.DefaultViolationThreshold,
			BanDuration:        models.DefaultBanDuration,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// AutoBanConfig returns the escalation settings with defaults applied for any
// unset value. Configuration absence is never fatal.
func (c *Config) AutoBanConfig() models.AutoBanConfig {
	ab := c.AutoBan
	if ab.ViolationThreshold <= 0 {
		ab.ViolationThreshold = models.DefaultViolationThreshold
	}
	if ab.BanDuration <= 0 {
		ab.BanDuration = models.DefaultBanDuration
	}
	return ab
}
