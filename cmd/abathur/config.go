package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Abathur configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/abathur/config.yaml
Project-specific overrides can be placed in .abathur.yaml

Scoring weights are not set here; edit the file named by
priority.weights_file instead (changes hot-reload into a running swarm).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
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
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.aws_region: %s\n", cfg.Anthropic.AWSRegion)
	fmt.Printf("anthropic.aws_profile: %s\n", cfg.Anthropic.AWSProfile)
	fmt.Printf("swarm.max_concurrent_agents: %d\n", cfg.Swarm.MaxConcurrentAgents)
	fmt.Printf("swarm.poll_interval: %s\n", cfg.Swarm.PollInterval)
	fmt.Printf("swarm.stop_timeout: %s\n", cfg.Swarm.StopTimeout)
	fmt.Printf("swarm.cache_ttl: %s\n", cfg.Swarm.CacheTTL)
	fmt.Printf("priority.weights_file: %s\n", cfg.Priority.WeightsFile)
	fmt.Printf("priority.weights: base=%.2f depth=%.2f urgency=%.2f blocking=%.2f source=%.2f\n",
		cfg.Priority.Weights.Base, cfg.Priority.Weights.Depth, cfg.Priority.Weights.Urgency,
		cfg.Priority.Weights.Blocking, cfg.Priority.Weights.Source)
	fmt.Printf("database.path: %s\n", cfg.Database.Path)
	fmt.Printf("database.audit_path: %s\n", cfg.Database.AuditPath)
	fmt.Printf("agent.command: %s\n", cfg.Agent.Command)
	fmt.Printf("agent.args: %s\n", strings.Join(cfg.Agent.Args, " "))
	fmt.Printf("agent.timeout: %s\n", cfg.Agent.Timeout)
	fmt.Printf("agent.use_api: %t\n", cfg.Agent.UseAPI)
	fmt.Printf("agent.model: %s\n", cfg.Agent.Model)
	fmt.Printf("limits.max_retries: %d\n", cfg.Limits.MaxRetries)
	fmt.Printf("limits.parallel_threshold: %d\n", cfg.Limits.ParallelThreshold)

	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("\nProject overrides loaded from %s\n", project)
	}
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

	fmt.Printf("Set %s = %s in %s\n", key, value, config.GetUserConfigPath())
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "swarm.max_concurrent_agents":
		return strconv.Itoa(cfg.Swarm.MaxConcurrentAgents), nil
	case "swarm.poll_interval":
		return cfg.Swarm.PollInterval.String(), nil
	case "swarm.stop_timeout":
		return cfg.Swarm.StopTimeout.String(), nil
	case "swarm.cache_ttl":
		return cfg.Swarm.CacheTTL.String(), nil
	case "priority.weights_file":
		return cfg.Priority.WeightsFile, nil
	case "database.path":
		return cfg.Database.Path, nil
	case "database.audit_path":
		return cfg.Database.AuditPath, nil
	case "agent.command":
		return cfg.Agent.Command, nil
	case "agent.args":
		return strings.Join(cfg.Agent.Args, " "), nil
	case "agent.timeout":
		return cfg.Agent.Timeout.String(), nil
	case "agent.use_api":
		return strconv.FormatBool(cfg.Agent.UseAPI), nil
	case "agent.model":
		return cfg.Agent.Model, nil
	case "limits.max_retries":
		return strconv.Itoa(cfg.Limits.MaxRetries), nil
	case "limits.parallel_threshold":
		return strconv.Itoa(cfg.Limits.ParallelThreshold), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "swarm.max_concurrent_agents":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid value for max_concurrent_agents: %s", value)
		}
		cfg.Swarm.MaxConcurrentAgents = n
	case "swarm.poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for poll_interval: %w", err)
		}
		cfg.Swarm.PollInterval = d
	case "swarm.stop_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for stop_timeout: %w", err)
		}
		cfg.Swarm.StopTimeout = d
	case "swarm.cache_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for cache_ttl: %w", err)
		}
		cfg.Swarm.CacheTTL = d
	case "priority.weights_file":
		cfg.Priority.WeightsFile = value
	case "database.path":
		cfg.Database.Path = value
	case "database.audit_path":
		cfg.Database.AuditPath = value
	case "agent.command":
		cfg.Agent.Command = value
	case "agent.args":
		return fmt.Errorf("agent.args cannot be set here; edit the config file directly")
	case "agent.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for agent.timeout: %w", err)
		}
		cfg.Agent.Timeout = d
	case "agent.use_api":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_api: %w", err)
		}
		cfg.Agent.UseAPI = b
	case "agent.model":
		cfg.Agent.Model = value
	case "limits.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid value for max_retries: %s", value)
		}
		cfg.Limits.MaxRetries = n
	case "limits.parallel_threshold":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid value for parallel_threshold: %s", value)
		}
		cfg.Limits.ParallelThreshold = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
