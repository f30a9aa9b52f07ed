package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Swarm.MaxConcurrentAgents != 4 {
		t.Errorf("expected default max_concurrent_agents 4, got %d", cfg.Swarm.MaxConcurrentAgents)
	}

	if cfg.Swarm.PollInterval != 100*time.Millisecond {
		t.Errorf("expected poll interval 100ms, got %v", cfg.Swarm.PollInterval)
	}

	if cfg.Swarm.CacheTTL != 60*time.Second {
		t.Errorf("expected cache TTL 60s, got %v", cfg.Swarm.CacheTTL)
	}

	if err := cfg.Priority.Weights.Validate(); err != nil {
		t.Errorf("default weights should validate: %v", err)
	}

	if cfg.Priority.Weights.Base != 0.30 {
		t.Errorf("expected base weight 0.30, got %v", cfg.Priority.Weights.Base)
	}

	if cfg.Agent.Command != "claude" {
		t.Errorf("expected agent command 'claude', got %q", cfg.Agent.Command)
	}

	if cfg.Agent.Timeout != 15*time.Minute {
		t.Errorf("expected agent timeout 15m, got %v", cfg.Agent.Timeout)
	}

	if cfg.Limits.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Limits.MaxRetries)
	}
}

func TestLoadFromPath(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
swarm:
  max_concurrent_agents: 8
  poll_interval: 250ms
  stop_timeout: 30s
  cache_ttl: 2m
priority:
  weights:
    base: 0.40
    depth: 0.20
    urgency: 0.20
    blocking: 0.15
    source: 0.05
database:
  path: /tmp/abathur-test/tasks.db
  audit_path: /tmp/abathur-test/audit.db
agent:
  command: my-agent
  args: ["--run"]
  timeout: 5m
  use_api: true
  model: test-model
limits:
  max_retries: 1
  parallel_threshold: 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}

	if cfg.Swarm.MaxConcurrentAgents != 8 {
		t.Errorf("expected max_concurrent_agents 8, got %d", cfg.Swarm.MaxConcurrentAgents)
	}

	if cfg.Swarm.PollInterval != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %v", cfg.Swarm.PollInterval)
	}

	if cfg.Swarm.StopTimeout != 30*time.Second {
		t.Errorf("expected stop timeout 30s, got %v", cfg.Swarm.StopTimeout)
	}

	if cfg.Priority.Weights.Base != 0.40 {
		t.Errorf("expected base weight 0.40, got %v", cfg.Priority.Weights.Base)
	}

	if cfg.Priority.Weights.Depth != 0.20 {
		t.Errorf("expected depth weight 0.20, got %v", cfg.Priority.Weights.Depth)
	}

	if cfg.Database.Path != "/tmp/abathur-test/tasks.db" {
		t.Errorf("expected database path override, got %q", cfg.Database.Path)
	}

	if cfg.Agent.Command != "my-agent" {
		t.Errorf("expected agent command 'my-agent', got %q", cfg.Agent.Command)
	}

	if !cfg.Agent.UseAPI {
		t.Error("expected agent.use_api to be true")
	}

	if cfg.Limits.MaxRetries != 1 {
		t.Errorf("expected max_retries 1, got %d", cfg.Limits.MaxRetries)
	}

	if cfg.Limits.ParallelThreshold != 2 {
		t.Errorf("expected parallel_threshold 2, got %d", cfg.Limits.ParallelThreshold)
	}
}

func TestLoadFromPath_DefaultsFillGaps(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Only one section present; everything else falls back to defaults.
	configContent := `
swarm:
  max_concurrent_agents: 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Swarm.MaxConcurrentAgents != 2 {
		t.Errorf("expected max_concurrent_agents 2, got %d", cfg.Swarm.MaxConcurrentAgents)
	}

	if cfg.Swarm.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval 100ms, got %v", cfg.Swarm.PollInterval)
	}

	if cfg.Agent.Command != "claude" {
		t.Errorf("expected default agent command 'claude', got %q", cfg.Agent.Command)
	}

	if err := cfg.Priority.Weights.Validate(); err != nil {
		t.Errorf("default weights should validate: %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	// Set environment variable
	os.Setenv("TEST_VAR", "expanded-value")
	defer os.Unsetenv("TEST_VAR")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/abathur"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}
