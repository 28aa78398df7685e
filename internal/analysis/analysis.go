// Package analysis produces qualitative feedback on a learner's task log by
// asking an LLM provider for a structured review.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/abhisek/pathway/internal/llm"
	"github.com/abhisek/pathway/internal/model"
)

// Request is the input for one task review.
type Request struct {
	ScenarioTitle string
	Mode          model.Mode
	Language      string
	Task          *model.Task

	// Score and MaxScore are the deterministic score computed before the
	// review.
	Score    float64
	MaxScore float64
}

// Config holds generation settings for the analyzer.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   512,
		Temperature: 0.2,
	}
}

// Analyzer reviews task logs with an LLM.
type Analyzer struct {
	provider llm.Provider
	cfg      Config
}

// New creates an analyzer backed by provider.
func New(provider llm.Provider, cfg Config) *Analyzer {
	return &Analyzer{provider: provider, cfg: cfg}
}

type feedbackOutput struct {
	Quality      float64  `json:"quality"`
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Analyze returns feedback for the task. Provider failures come back in the
// apperr taxonomy: TRANSIENT when a retry may help, EVALUATION otherwise.
func (a *Analyzer) Analyze(ctx context.Context, req *Request) (*model.Feedback, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeTaskFeedback)

	userMsg, err := buildFeedbackMessage(req)
	if err != nil {
		return nil, fmt.Errorf("build feedback prompt: %w", err)
	}

	resp, err := a.provider.Generate(ctx, llm.Request{
		System:      feedbackSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      FeedbackSchema,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return nil, llm.ToAppError(fmt.Errorf("task %s feedback: %w", req.Task.ID, err))
	}

	var raw feedbackOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, llm.ToAppError(&llm.ErrInvalidResponse{Content: resp.Content, Err: err})
	}
	q := min(max(raw.Quality, 0), 1)
	return &model.Feedback{
		Quality:      &q,
		Summary:      raw.Summary,
		Strengths:    raw.Strengths,
		Improvements: raw.Improvements,
		Model:        resp.Model,
	}, nil
}

const feedbackSystemPrompt = `You are an experienced tutor reviewing one step of a learner's work. You receive the task instructions, the learner's interaction log and the automatic score.

Instructions:
- Rate the overall quality of the learner's engagement from 0.0 to 1.0.
- Write a two-sentence summary addressed to the learner.
- List at most three strengths and at most three improvements, each one short sentence.
- Judge reasoning and effort; do not re-grade answers the automatic score already checked.
- Answer in the language given as "Language".`

var feedbackUserTemplate = template.Must(template.New("feedback").Parse(`Scenario: {{.ScenarioTitle}}
Mode: {{.Mode}}
Language: {{.Language}}
Task: {{.Title}}
Instructions: {{.Instructions}}
Automatic score: {{printf "%.1f" .Score}} / {{printf "%.1f" .MaxScore}}

Interaction log:
{{range .Log}}- [{{.EventType}}]{{with .Payload.QuestionID}} question {{.}}:{{end}} {{.Payload.Answer}}{{.Payload.Content}}{{with .Payload.IsCorrect}} (correct: {{.}}){{end}}
{{else}}(empty)
{{end}}`))

func buildFeedbackMessage(req *Request) (string, error) {
	lang := req.Language
	if lang == "" {
		lang = model.DefaultLanguage
	}
	data := struct {
		ScenarioTitle string
		Mode          model.Mode
		Language      string
		Title         string
		Instructions  string
		Score         float64
		MaxScore      float64
		Log           []model.Interaction
	}{
		ScenarioTitle: req.ScenarioTitle,
		Mode:          req.Mode,
		Language:      lang,
		Title:         req.Task.Content.Title.Get(lang),
		Instructions:  req.Task.Content.Instructions.Get(lang),
		Score:         req.Score,
		MaxScore:      req.MaxScore,
		Log:           req.Task.Interactions,
	}
	if data.Title == "" {
		data.Title = req.Task.Content.Key
	}

	var buf bytes.Buffer
	if err := feedbackUserTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
