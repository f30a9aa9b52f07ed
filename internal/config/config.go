// Package config handles configuration loading and management for Abathur.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/odgrim/abathur-swarm-sub016/internal/priority"
)

// Config holds all configuration for Abathur.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Priority  PriorityConfig  `mapstructure:"priority"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Limits    LimitsConfig    `mapstructure:"limits"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes API calls through AWS Bedrock instead of the
	// Anthropic API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the AWS region for Bedrock, e.g. "us-west-2".
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name for Bedrock.
	AWSProfile string `mapstructure:"aws_profile"`
}

// SwarmConfig holds dispatch loop settings.
type SwarmConfig struct {
	// MaxConcurrentAgents is the maximum number of tasks executing at once.
	MaxConcurrentAgents int `mapstructure:"max_concurrent_agents"`
	// PollInterval is the idle wait between dispatch attempts.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StopTimeout bounds how long Stop waits for in-flight executions.
	// Zero means wait indefinitely.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// CacheTTL is how long resolved dependency depths stay cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PriorityConfig holds priority scoring settings.
type PriorityConfig struct {
	// WeightsFile points at a YAML file of scoring weights. When set, the
	// file is watched and weight changes apply without a restart.
	WeightsFile string `mapstructure:"weights_file"`
	// Weights are the scoring weights used when no weights file is set.
	Weights priority.Weights `mapstructure:"weights"`
}

// DatabaseConfig holds storage paths.
type DatabaseConfig struct {
	// Path is the task database location. Empty means the project-local
	// default under .abathur/.
	Path string `mapstructure:"path"`
	// AuditPath is the audit trail database location.
	AuditPath string `mapstructure:"audit_path"`
}

// AgentConfig holds agent executor settings.
type AgentConfig struct {
	// Command is the agent CLI invoked per task, e.g. "claude".
	Command string `mapstructure:"command"`
	// Args are extra arguments passed before the task prompt.
	Args []string `mapstructure:"args"`
	// Timeout is the per-task execution timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// UseAPI executes tasks through the Anthropic API instead of a CLI.
	UseAPI bool `mapstructure:"use_api"`
	// Model pins a model for every task. Empty selects per task source.
	Model string `mapstructure:"model"`
}

// LimitsConfig holds task defaults.
type LimitsConfig struct {
	// MaxRetries is the default automatic retry budget for new tasks.
	MaxRetries int `mapstructure:"max_retries"`
	// ParallelThreshold is the default threshold for parallel-dependency
	// tasks. Zero means all dependencies must complete.
	ParallelThreshold int `mapstructure:"parallel_threshold"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, ABATHUR_DB)
// 2. Project config (.abathur.yaml in current directory or parent)
// 3. User config (~/.config/abathur/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("")

	// Map specific environment variables
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("database.path", "ABATHUR_DB")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

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

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("swarm.max_concurrent_agents", cfg.Swarm.MaxConcurrentAgents)
	v.Set("swarm.poll_interval", cfg.Swarm.PollInterval.String())
	v.Set("swarm.stop_timeout", cfg.Swarm.StopTimeout.String())
	v.Set("swarm.cache_ttl", cfg.Swarm.CacheTTL.String())
	v.Set("priority.weights_file", cfg.Priority.WeightsFile)
	v.Set("priority.weights.base", cfg.Priority.Weights.Base)
	v.Set("priority.weights.depth", cfg.Priority.Weights.Depth)
	v.Set("priority.weights.urgency", cfg.Priority.Weights.Urgency)
	v.Set("priority.weights.blocking", cfg.Priority.Weights.Blocking)
	v.Set("priority.weights.source", cfg.Priority.Weights.Source)
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.audit_path", cfg.Database.AuditPath)
	v.Set("agent.command", cfg.Agent.Command)
	v.Set("agent.args", cfg.Agent.Args)
	v.Set("agent.timeout", cfg.Agent.Timeout.String())
	v.Set("agent.use_api", cfg.Agent.UseAPI)
	v.Set("agent.model", cfg.Agent.Model)
	v.Set("limits.max_retries", cfg.Limits.MaxRetries)
	v.Set("limits.parallel_threshold", cfg.Limits.ParallelThreshold)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	// Swarm defaults
	v.SetDefault("swarm.max_concurrent_agents", 4)
	v.SetDefault("swarm.poll_interval", "100ms")
	v.SetDefault("swarm.stop_timeout", "0s")
	v.SetDefault("swarm.cache_ttl", "60s")

	// Priority defaults
	v.SetDefault("priority.weights_file", "")
	v.SetDefault("priority.weights.base", 0.30)
	v.SetDefault("priority.weights.depth", 0.25)
	v.SetDefault("priority.weights.urgency", 0.25)
	v.SetDefault("priority.weights.blocking", 0.15)
	v.SetDefault("priority.weights.source", 0.05)

	// Database defaults
	v.SetDefault("database.path", "")
	v.SetDefault("database.audit_path", "")

	// Agent defaults
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.args", []string{"-p"})
	v.SetDefault("agent.timeout", "15m")
	v.SetDefault("agent.use_api", false)
	v.SetDefault("agent.model", "")

	// Limits defaults
	v.SetDefault("limits.max_retries", 3)
	v.SetDefault("limits.parallel_threshold", 0)
}

// getUserConfigDir returns the XDG config directory for Abathur.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "abathur")
	}

	// Fall back to ~/.config/abathur
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "abathur")
	}
	return filepath.Join(home, ".config", "abathur")
}

// findProjectConfig searches for .abathur.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".abathur.yaml")
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			APIKey: "",
		},
		Swarm: SwarmConfig{
			MaxConcurrentAgents: 4,
			PollInterval:        100 * time.Millisecond,
			StopTimeout:         0,
			CacheTTL:            60 * time.Second,
		},
		Priority: PriorityConfig{
			Weights: priority.DefaultWeights(),
		},
		Agent: AgentConfig{
			Command: "claude",
			Args:    []string{"-p"},
			Timeout: 15 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxRetries:        3,
			ParallelThreshold: 0,
		},
	}
}
