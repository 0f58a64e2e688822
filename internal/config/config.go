// Package config handles configuration loading for concierge.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harperlabs/concierge/pkg/models"
)

// Config holds all configuration for concierge.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Quota     QuotaConfig     `mapstructure:"quota" yaml:"quota"`
	Workers   WorkersConfig   `mapstructure:"workers" yaml:"workers"`
	Signals   SignalsConfig   `mapstructure:"signals" yaml:"signals"`
	Router    RouterConfig    `mapstructure:"router" yaml:"router"`
}

// AnthropicConfig holds text-completion service settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	Model         string `mapstructure:"model" yaml:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock" yaml:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region" yaml:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile" yaml:"aws_profile"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database path. Empty means the XDG default.
	Path string `mapstructure:"path" yaml:"path"`
}

// QueueConfig holds worker pool settings.
type QueueConfig struct {
	// DefaultLimit is the concurrency limit applied to worker types
	// without an explicit entry in Limits.
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
	// Limits maps worker type names to concurrency limits.
	Limits map[string]int `mapstructure:"limits" yaml:"limits"`
	// MaxAttempts is the total attempt budget per task, retries included.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// RetryBase is the first retry delay; it doubles per attempt.
	RetryBase time.Duration `mapstructure:"retry_base" yaml:"retry_base"`
}

// Limit returns the concurrency limit for a worker type.
func (q QueueConfig) Limit(workerType models.WorkerType) int {
	if limit, ok := q.Limits[string(workerType)]; ok && limit > 0 {
		return limit
	}
	if q.DefaultLimit > 0 {
		return q.DefaultLimit
	}
	return 2
}

// TimeoutsConfig holds per-worker-type wall-clock budgets.
type TimeoutsConfig struct {
	Communication time.Duration `mapstructure:"communication" yaml:"communication"`
	Research      time.Duration `mapstructure:"research" yaml:"research"`
	Prospects     time.Duration `mapstructure:"prospects" yaml:"prospects"`
}

// For returns the budget for a worker type.
func (t TimeoutsConfig) For(workerType models.WorkerType) time.Duration {
	switch workerType {
	case models.WorkerCommunication:
		return t.Communication
	case models.WorkerResearch:
		return t.Research
	case models.WorkerProspects:
		return t.Prospects
	default:
		return t.Research
	}
}

// QuotaConfig holds per-user rate limits.
type QuotaConfig struct {
	// TasksPerWindow is the number of tasks a user may create per window.
	// Zero disables quota checks.
	TasksPerWindow int `mapstructure:"tasks_per_window" yaml:"tasks_per_window"`
	// Window is the quota window duration.
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// WorkersConfig holds worker-specific external-dependency settings.
type WorkersConfig struct {
	Prospects ProspectsConfig `mapstructure:"prospects" yaml:"prospects"`
}

// ProspectsConfig holds the prospect worker's scraper credentials. The
// capability check at registration inspects these once; workers never
// re-check credentials per call.
type ProspectsConfig struct {
	ScraperAPIKey string `mapstructure:"scraper_api_key" yaml:"scraper_api_key"`
}

// SignalsConfig holds the external control directory settings.
type SignalsConfig struct {
	// Dir is the directory watched for pause/resume/stop signal files.
	// Empty means the XDG state default.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// RouterConfig holds classification settings.
type RouterConfig struct {
	// RulesPath optionally points at a YAML rule file that replaces the
	// built-in keyword predicates.
	RulesPath string `mapstructure:"rules_path" yaml:"rules_path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, CONCIERGE_*)
// 2. Project config (.concierge.yaml in current directory or parent)
// 3. User config (~/.config/concierge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CONCIERGE")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Workers.Prospects.ScraperAPIKey = os.ExpandEnv(cfg.Workers.Prospects.ScraperAPIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Workers.Prospects.ScraperAPIKey = os.ExpandEnv(cfg.Workers.Prospects.ScraperAPIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// Save writes the configuration to the user config path, creating the
// directory if needed.
func Save(cfg *Config) error {
	dir := getUserConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("store.path", "")

	v.SetDefault("queue.default_limit", 2)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.retry_base", "2s")

	v.SetDefault("timeouts.communication", "2m")
	v.SetDefault("timeouts.research", "5m")
	v.SetDefault("timeouts.prospects", "10m")

	v.SetDefault("quota.tasks_per_window", 30)
	v.SetDefault("quota.window", "1h")

	v.SetDefault("signals.dir", "")
	v.SetDefault("router.rules_path", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			DefaultLimit: 2,
			MaxAttempts:  3,
			RetryBase:    2 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Communication: 2 * time.Minute,
			Research:      5 * time.Minute,
			Prospects:     10 * time.Minute,
		},
		Quota: QuotaConfig{
			TasksPerWindow: 30,
			Window:         time.Hour,
		},
	}
}

// getUserConfigDir returns the XDG config directory for concierge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "concierge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "concierge")
	}
	return filepath.Join(home, ".config", "concierge")
}

// findProjectConfig searches for .concierge.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".concierge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
