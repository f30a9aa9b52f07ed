package api

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key-123"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	client, err := NewClient(ClientConfig{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewClient(ClientConfig{})
	if err == nil {
		t.Fatal("expected error when no API key is available")
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	tests := []struct {
		name  string
		model anthropic.Model
		want  anthropic.Model
	}{
		{
			name:  "sonnet maps to inference profile",
			model: anthropic.ModelClaudeSonnet4_20250514,
			want:  "us.anthropic.claude-sonnet-4-20250514-v1:0",
		},
		{
			name:  "haiku maps to inference profile",
			model: anthropic.ModelClaude3_5Haiku20241022,
			want:  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
		},
		{
			name:  "unknown model passes through",
			model: "us.anthropic.claude-sonnet-4-20250514-v1:0",
			want:  "us.anthropic.claude-sonnet-4-20250514-v1:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateModelForBedrock(tt.model)
			if got != tt.want {
				t.Errorf("translateModelForBedrock(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestTokenTracker_Add(t *testing.T) {
	tracker := NewTokenTracker()

	tracker.Add(100, 50)
	tracker.Add(200, 75)

	in, out := tracker.Total()
	if in != 300 {
		t.Errorf("expected 300 input tokens, got %d", in)
	}
	if out != 125 {
		t.Errorf("expected 125 output tokens, got %d", out)
	}
	if tracker.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", tracker.Calls())
	}
}

func TestTokenTracker_Reset(t *testing.T) {
	tracker := NewTokenTracker()
	tracker.Add(100, 50)

	tracker.Reset()

	in, out := tracker.Total()
	if in != 0 || out != 0 {
		t.Errorf("expected zero totals after reset, got %d/%d", in, out)
	}
	if tracker.Calls() != 0 {
		t.Errorf("expected 0 calls after reset, got %d", tracker.Calls())
	}
}

func TestTokenTracker_Cost(t *testing.T) {
	tracker := NewTokenTracker()

	if tracker.Cost() != 0 {
		t.Errorf("expected zero cost with no usage, got %f", tracker.Cost())
	}

	tracker.Add(1_000_000, 0)
	if got := tracker.Cost(); got != 3.0 {
		t.Errorf("expected 3.0 for 1M input tokens, got %f", got)
	}

	tracker.Add(0, 1_000_000)
	if got := tracker.Cost(); got != 18.0 {
		t.Errorf("expected 18.0 after 1M output tokens, got %f", got)
	}
}
