package agent

import (
	"strings"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// Model identifiers for different capability levels.
const (
	// ModelHaiku is the lightweight, fast model for simple tasks.
	ModelHaiku = "claude-3-5-haiku-20241022"
	// ModelSonnet is the balanced model for standard work.
	ModelSonnet = "claude-sonnet-4-20250514"
	// ModelOpus is the most capable model for complex tasks.
	ModelOpus = "claude-opus-4-5-20251101"
)

// Keywords that indicate a task should use haiku (simple tasks).
var haikuKeywords = []string{
	"simple",
	"boilerplate",
	"typo",
	"trivial",
	"formatting",
}

// Keywords that indicate a task should use opus (complex tasks).
var opusKeywords = []string{
	"architecture",
	"design",
	"refactor",
	"redesign",
	"complex",
}

// SourceDefaultModels maps task sources to their default models.
// Requirements tasks carry design work and get the most capable model;
// everything else starts from the balanced one.
var SourceDefaultModels = map[models.TaskSource]string{
	models.SourceHuman:               ModelSonnet,
	models.SourceAgentRequirements:   ModelOpus,
	models.SourceAgentPlanner:        ModelSonnet,
	models.SourceAgentImplementation: ModelSonnet,
}

// SelectModel chooses the model for a task based on keywords and the task
// source. The description is scanned for complexity hints:
//   - Haiku keywords (simple, boilerplate, typo, trivial, formatting) -> haiku
//   - Opus keywords (architecture, design, refactor, redesign, complex) -> opus
//   - Otherwise -> the source's default model
func SelectModel(task *models.Task) string {
	if task == nil {
		return ModelSonnet
	}

	text := strings.ToLower(task.Description)

	for _, kw := range haikuKeywords {
		if strings.Contains(text, kw) {
			return ModelHaiku
		}
	}

	for _, kw := range opusKeywords {
		if strings.Contains(text, kw) {
			return ModelOpus
		}
	}

	return getSourceDefault(task.Source)
}

// getSourceDefault returns the default model for a task source.
func getSourceDefault(source models.TaskSource) string {
	if model, ok := SourceDefaultModels[source]; ok {
		return model
	}
	// Fallback to sonnet if the source is unknown
	return ModelSonnet
}
