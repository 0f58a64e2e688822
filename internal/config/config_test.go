package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperlabs/concierge/pkg/models"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  model: claude-3-5-haiku-20241022
queue:
  default_limit: 4
  limits:
    research: 1
  max_attempts: 5
  retry_base: 1s
timeouts:
  research: 30s
quota:
  tasks_per_window: 10
  window: 30m
workers:
  prospects:
    scraper_api_key: test-key
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Anthropic.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Queue.DefaultLimit != 4 {
		t.Errorf("default_limit = %d", cfg.Queue.DefaultLimit)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.RetryBase != time.Second {
		t.Errorf("retry_base = %s", cfg.Queue.RetryBase)
	}
	if cfg.Timeouts.Research != 30*time.Second {
		t.Errorf("timeouts.research = %s", cfg.Timeouts.Research)
	}
	if cfg.Quota.TasksPerWindow != 10 || cfg.Quota.Window != 30*time.Minute {
		t.Errorf("quota = %+v", cfg.Quota)
	}
	if cfg.Workers.Prospects.ScraperAPIKey != "test-key" {
		t.Errorf("scraper key = %q", cfg.Workers.Prospects.ScraperAPIKey)
	}

	// Defaults fill what the file omits.
	if cfg.Timeouts.Communication != 2*time.Minute {
		t.Errorf("timeouts.communication = %s, want default 2m", cfg.Timeouts.Communication)
	}
}

func TestQueueLimit(t *testing.T) {
	q := QueueConfig{
		DefaultLimit: 3,
		Limits:       map[string]int{"research": 1},
	}

	if got := q.Limit(models.WorkerResearch); got != 1 {
		t.Errorf("research limit = %d, want 1", got)
	}
	if got := q.Limit(models.WorkerCommunication); got != 3 {
		t.Errorf("communication limit = %d, want default 3", got)
	}

	var zero QueueConfig
	if got := zero.Limit(models.WorkerProspects); got != 2 {
		t.Errorf("zero-config limit = %d, want 2", got)
	}
}

func TestTimeoutsFor(t *testing.T) {
	tcfg := TimeoutsConfig{
		Communication: time.Minute,
		Research:      2 * time.Minute,
		Prospects:     3 * time.Minute,
	}
	if tcfg.For(models.WorkerCommunication) != time.Minute {
		t.Error("communication timeout")
	}
	if tcfg.For(models.WorkerResearch) != 2*time.Minute {
		t.Error("research timeout")
	}
	if tcfg.For(models.WorkerProspects) != 3*time.Minute {
		t.Error("prospects timeout")
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TEST_SCRAPER_KEY", "expanded-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
workers:
  prospects:
    scraper_api_key: ${TEST_SCRAPER_KEY}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Workers.Prospects.ScraperAPIKey != "expanded-key" {
		t.Errorf("scraper key = %q, want expanded value", cfg.Workers.Prospects.ScraperAPIKey)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Queue.DefaultLimit != 2 || cfg.Queue.MaxAttempts != 3 {
		t.Errorf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Queue.RetryBase != 2*time.Second {
		t.Errorf("retry_base = %s", cfg.Queue.RetryBase)
	}
	if cfg.Quota.TasksPerWindow != 30 || cfg.Quota.Window != time.Hour {
		t.Errorf("quota defaults = %+v", cfg.Quota)
	}
}
