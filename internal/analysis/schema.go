package analysis

import "github.com/abhisek/pathway/internal/llm"

// FeedbackSchema defines the JSON schema for task feedback responses.
var FeedbackSchema = &llm.Schema{
	Name:        "task-feedback",
	Description: "Qualitative review of one learning task",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quality": map[string]any{
				"type":        "number",
				"minimum":     0.0,
				"maximum":     1.0,
				"description": "Overall quality of the learner's engagement (0.0-1.0)",
			},
			"summary": map[string]any{
				"type":        "string",
				"description": "Two-sentence summary addressed to the learner",
			},
			"strengths": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"maxItems": 3,
			},
			"improvements": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"maxItems": 3,
			},
		},
		"required":             []any{"quality", "summary", "strengths", "improvements"},
		"additionalProperties": false,
	},
}
