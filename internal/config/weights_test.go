package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/internal/priority"
)

func writeWeightsFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write weights file: %v", err)
	}
}

func TestLoadWeights(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "weights.yaml")

	writeWeightsFile(t, path, `
base: 0.40
depth: 0.20
urgency: 0.20
blocking: 0.15
source: 0.05
`)

	w, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}

	if w.Base != 0.40 {
		t.Errorf("expected base 0.40, got %v", w.Base)
	}
	if w.Source != 0.05 {
		t.Errorf("expected source 0.05, got %v", w.Source)
	}
}

func TestLoadWeights_InvalidSum(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "weights.yaml")

	writeWeightsFile(t, path, `
base: 0.90
depth: 0.90
urgency: 0.0
blocking: 0.0
source: 0.0
`)

	if _, err := LoadWeights(path); err == nil {
		t.Error("expected weights that do not sum to 1.0 to be rejected")
	}
}

func TestLoadWeights_Missing(t *testing.T) {
	if _, err := LoadWeights(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected missing weights file to fail")
	}
}

func TestWatchWeights(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "weights.yaml")

	writeWeightsFile(t, path, `
base: 0.30
depth: 0.25
urgency: 0.25
blocking: 0.15
source: 0.05
`)

	updates := make(chan priority.Weights, 10)
	ww, err := WatchWeights(path, func(w priority.Weights) {
		updates <- w
	})
	if err != nil {
		t.Fatalf("WatchWeights failed: %v", err)
	}
	defer ww.Close()

	// The initial file contents arrive immediately.
	select {
	case w := <-updates:
		if w.Base != 0.30 {
			t.Errorf("expected initial base 0.30, got %v", w.Base)
		}
	default:
		t.Fatal("expected initial weights delivery")
	}

	// An invalid rewrite is ignored; the next valid write is delivered.
	writeWeightsFile(t, path, `base: [broken`)
	writeWeightsFile(t, path, `
base: 0.50
depth: 0.20
urgency: 0.15
blocking: 0.10
source: 0.05
`)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case w := <-updates:
			if w.Base == 0.50 {
				return // the valid update arrived, invalid one was skipped
			}
			if err := w.Validate(); err != nil {
				t.Fatalf("invalid weights delivered: %+v", w)
			}
			// A duplicate event for the old contents; keep waiting.
		case <-deadline:
			t.Fatal("timed out waiting for weights update")
		}
	}
}

func TestWatchWeights_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", "weights.yaml")
	if _, err := WatchWeights(path, func(priority.Weights) {}); err == nil {
		t.Error("expected watching a missing directory to fail")
	}
}
