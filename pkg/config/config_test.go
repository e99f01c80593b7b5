package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/warden/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
classifier:
  url: "https://moderation.example.com/v1/classify"
  timeout: 3s
auto_ban:
  enabled: true
  violation_threshold: 10
  ban_duration: 48h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("expected listen :9090, got %s", cfg.Listen)
	}
	if cfg.Classifier.Timeout != 3*time.Second {
		t.Errorf("expected 3s classifier timeout, got %s", cfg.Classifier.Timeout)
	}
	if cfg.AutoBan.ViolationThreshold != 10 {
		t.Errorf("expected threshold 10, got %d", cfg.AutoBan.ViolationThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("expected default session timeout, got %s", cfg.Session.Timeout)
	}
	if cfg.LogWriter.MaxBatchSize != 100 {
		t.Errorf("expected default batch size, got %d", cfg.LogWriter.MaxBatchSize)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("WARDEN_TEST_TOKEN", "secret-token")
	path := writeConfig(t, `
classifier:
  token: "${WARDEN_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Classifier.Token != "secret-token" {
		t.Errorf("expected env-expanded token, got %q", cfg.Classifier.Token)
	}
}

func TestAutoBanConfigDefaults(t *testing.T) {
	cfg := &Config{AutoBan: models.AutoBanConfig{Enabled: true}}

	ab := cfg.AutoBanConfig()
	if ab.ViolationThreshold != models.DefaultViolationThreshold {
		t.Errorf("expected default threshold, got %d", ab.ViolationThreshold)
	}
	if ab.BanDuration != models.DefaultBanDuration {
		t.Errorf("expected default ban duration, got %s", ab.BanDuration)
	}
	if !ab.Enabled {
		t.Error("expected enabled to pass through")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
