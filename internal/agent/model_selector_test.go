package agent

import (
	"testing"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name     string
		task     *models.Task
		expected string
	}{
		{
			name:     "nil task falls back to sonnet",
			task:     nil,
			expected: ModelSonnet,
		},

		// Source defaults
		{
			name:     "human task",
			task:     &models.Task{Description: "Update the changelog", Source: models.SourceHuman},
			expected: ModelSonnet,
		},
		{
			name:     "requirements task gets opus",
			task:     &models.Task{Description: "Gather constraints for the billing flow", Source: models.SourceAgentRequirements},
			expected: ModelOpus,
		},
		{
			name:     "planner task",
			task:     &models.Task{Description: "Split the billing work into steps", Source: models.SourceAgentPlanner},
			expected: ModelSonnet,
		},
		{
			name:     "implementation task",
			task:     &models.Task{Description: "Add the billing endpoint", Source: models.SourceAgentImplementation},
			expected: ModelSonnet,
		},
		{
			name:     "unknown source falls back to sonnet",
			task:     &models.Task{Description: "Do something", Source: models.TaskSource("mystery")},
			expected: ModelSonnet,
		},

		// Keyword overrides
		{
			name:     "typo keyword downgrades to haiku",
			task:     &models.Task{Description: "Fix a typo in the README", Source: models.SourceAgentRequirements},
			expected: ModelHaiku,
		},
		{
			name:     "boilerplate keyword downgrades to haiku",
			task:     &models.Task{Description: "Generate boilerplate for the new handler", Source: models.SourceHuman},
			expected: ModelHaiku,
		},
		{
			name:     "architecture keyword upgrades to opus",
			task:     &models.Task{Description: "Rework the caching architecture", Source: models.SourceHuman},
			expected: ModelOpus,
		},
		{
			name:     "refactor keyword upgrades to opus",
			task:     &models.Task{Description: "Refactor the retry layer", Source: models.SourceAgentImplementation},
			expected: ModelOpus,
		},
		{
			name:     "keyword matching is case-insensitive",
			task:     &models.Task{Description: "TRIVIAL cleanup", Source: models.SourceHuman},
			expected: ModelHaiku,
		},
		{
			name:     "haiku keyword wins over opus keyword",
			task:     &models.Task{Description: "Simple refactor of one function", Source: models.SourceHuman},
			expected: ModelHaiku,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectModel(tt.task); got != tt.expected {
				t.Errorf("SelectModel() = %s, want %s", got, tt.expected)
			}
		})
	}
}
