package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperlabs/concierge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify concierge configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/concierge/config.yaml
Project-specific overrides can be placed in .concierge.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", maskSecret(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", orUnset(cfg.Anthropic.Model))
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("store.path: %s\n", orUnset(cfg.Store.Path))
	fmt.Printf("queue.default_limit: %d\n", cfg.Queue.DefaultLimit)
	fmt.Printf("queue.max_attempts: %d\n", cfg.Queue.MaxAttempts)
	fmt.Printf("queue.retry_base: %s\n", cfg.Queue.RetryBase)
	fmt.Printf("timeouts.communication: %s\n", cfg.Timeouts.Communication)
	fmt.Printf("timeouts.research: %s\n", cfg.Timeouts.Research)
	fmt.Printf("timeouts.prospects: %s\n", cfg.Timeouts.Prospects)
	fmt.Printf("quota.tasks_per_window: %d\n", cfg.Quota.TasksPerWindow)
	fmt.Printf("quota.window: %s\n", cfg.Quota.Window)
	fmt.Printf("workers.prospects.scraper_api_key: %s\n", maskSecret(cfg.Workers.Prospects.ScraperAPIKey))
	fmt.Printf("signals.dir: %s\n", orUnset(cfg.Signals.Dir))
	fmt.Printf("router.rules_path: %s\n", orUnset(cfg.Router.RulesPath))
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return maskSecret(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orUnset(cfg.Anthropic.Model), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "store.path":
		return orUnset(cfg.Store.Path), nil
	case "queue.default_limit":
		return strconv.Itoa(cfg.Queue.DefaultLimit), nil
	case "queue.max_attempts":
		return strconv.Itoa(cfg.Queue.MaxAttempts), nil
	case "queue.retry_base":
		return cfg.Queue.RetryBase.String(), nil
	case "timeouts.communication":
		return cfg.Timeouts.Communication.String(), nil
	case "timeouts.research":
		return cfg.Timeouts.Research.String(), nil
	case "timeouts.prospects":
		return cfg.Timeouts.Prospects.String(), nil
	case "quota.tasks_per_window":
		return strconv.Itoa(cfg.Quota.TasksPerWindow), nil
	case "quota.window":
		return cfg.Quota.Window.String(), nil
	case "workers.prospects.scraper_api_key":
		return maskSecret(cfg.Workers.Prospects.ScraperAPIKey), nil
	case "signals.dir":
		return orUnset(cfg.Signals.Dir), nil
	case "router.rules_path":
		return orUnset(cfg.Router.RulesPath), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "store.path":
		cfg.Store.Path = value
	case "queue.default_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for default_limit: %w", err)
		}
		cfg.Queue.DefaultLimit = n
	case "queue.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_attempts: %w", err)
		}
		cfg.Queue.MaxAttempts = n
	case "queue.retry_base":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for retry_base: %w", err)
		}
		cfg.Queue.RetryBase = d
	case "timeouts.communication":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.communication: %w", err)
		}
		cfg.Timeouts.Communication = d
	case "timeouts.research":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.research: %w", err)
		}
		cfg.Timeouts.Research = d
	case "timeouts.prospects":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.prospects: %w", err)
		}
		cfg.Timeouts.Prospects = d
	case "quota.tasks_per_window":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for tasks_per_window: %w", err)
		}
		cfg.Quota.TasksPerWindow = n
	case "quota.window":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for quota.window: %w", err)
		}
		cfg.Quota.Window = d
	case "workers.prospects.scraper_api_key":
		cfg.Workers.Prospects.ScraperAPIKey = value
	case "signals.dir":
		cfg.Signals.Dir = value
	case "router.rules_path":
		cfg.Router.RulesPath = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "****"
}

func orUnset(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
