package model

import (
	"sort"
	"time"
)

// DefaultLanguage is the fallback key for localized text.
const DefaultLanguage = "en"

// LocalizedText maps a BCP 47 language tag to text.
type LocalizedText map[string]string

// Get returns the text for lang, falling back to English and then to the
// lexically first available language.
func (t LocalizedText) Get(lang string) string {
	if s, ok := t[lang]; ok {
		return s
	}
	if s, ok := t[DefaultLanguage]; ok {
		return s
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return t[keys[0]]
}

// Scenario is a reusable, read-only activity template.
type Scenario struct {
	ID            string              `json:"id" yaml:"id"`
	Mode          Mode                `json:"mode" yaml:"mode"`
	Status        ScenarioStatus      `json:"status" yaml:"status"`
	Title         LocalizedText       `json:"title" yaml:"title"`
	Description   LocalizedText       `json:"description,omitempty" yaml:"description"`
	Objectives    map[string][]string `json:"objectives,omitempty" yaml:"objectives"`
	TaskTemplates []TaskTemplate      `json:"task_templates" yaml:"tasks"`
	ModeData      ModeData            `json:"mode_data" yaml:"mode_data"`
}

// IsActive reports whether the scenario can be started.
func (s *Scenario) IsActive() bool {
	return s.Status == ScenarioActive
}

// ModeData holds mode-specific scenario configuration.
type ModeData struct {
	// PassingThreshold is the overall percentage needed to pass an assessment.
	PassingThreshold float64 `json:"passing_threshold,omitempty" yaml:"passing_threshold"`

	// DomainWeights scales raw domain percentages in structured and
	// assessment modes. Missing domains weigh 1.
	DomainWeights map[string]float64 `json:"domain_weights,omitempty" yaml:"domain_weights"`

	// Competencies maps competency codes to their KSA category.
	Competencies map[string]CompetencyKind `json:"competencies,omitempty" yaml:"competencies"`

	Rewards Rewards `json:"rewards" yaml:"rewards"`

	// TimeLimit bounds an assessment run. Zero means untimed.
	TimeLimit time.Duration `json:"time_limit,omitempty" yaml:"time_limit"`

	// ShuffleTasks randomizes task order on start (assessment only).
	ShuffleTasks bool `json:"shuffle_tasks,omitempty" yaml:"shuffle_tasks"`
}

// Rewards configures reward point accrual.
type Rewards struct {
	PointsPerTask   int `json:"points_per_task,omitempty" yaml:"points_per_task"`
	CompletionBonus int `json:"completion_bonus,omitempty" yaml:"completion_bonus"`
	PerfectBonus    int `json:"perfect_bonus,omitempty" yaml:"perfect_bonus"`
}

// TaskTemplate describes one step of a scenario.
type TaskTemplate struct {
	Key          string        `json:"key" yaml:"key"`
	Type         TaskType      `json:"type" yaml:"type"`
	Title        LocalizedText `json:"title,omitempty" yaml:"title"`
	Instructions LocalizedText `json:"instructions,omitempty" yaml:"instructions"`

	// ScoringKey is the expected answer for a single-answer step without
	// an explicit question bank.
	ScoringKey string     `json:"scoring_key,omitempty" yaml:"scoring_key"`
	Questions  []Question `json:"questions,omitempty" yaml:"questions"`

	TimeBudget  time.Duration `json:"time_budget,omitempty" yaml:"time_budget"`
	MinTurns    int           `json:"min_turns,omitempty" yaml:"min_turns"`
	MaxAttempts int           `json:"max_attempts,omitempty" yaml:"max_attempts"`
	Domains     []string      `json:"domains,omitempty" yaml:"domains"`
}

// Question is one scorable item inside a task.
type Question struct {
	ID            string        `json:"id" yaml:"id"`
	Prompt        LocalizedText `json:"prompt,omitempty" yaml:"prompt"`
	Options       []string      `json:"options,omitempty" yaml:"options"`
	CorrectAnswer string        `json:"correct_answer" yaml:"answer"`
	Domain        string        `json:"domain,omitempty" yaml:"domain"`
	Competencies  []string      `json:"competencies,omitempty" yaml:"competencies"`
}

// QuestionBank returns the scorable questions of the template. A template
// with only a ScoringKey yields one implicit question keyed by the template
// key.
func (t TaskTemplate) QuestionBank() []Question {
	if len(t.Questions) > 0 {
		return t.Questions
	}
	if t.ScoringKey == "" {
		return nil
	}
	return []Question{{
		ID:            t.Key,
		CorrectAnswer: t.ScoringKey,
		Domain:        t.PrimaryDomain(),
	}}
}

// FindQuestion looks up a question by id.
func (t TaskTemplate) FindQuestion(id string) (Question, bool) {
	for _, q := range t.QuestionBank() {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// PrimaryDomain returns the first declared domain or "general".
func (t TaskTemplate) PrimaryDomain() string {
	if len(t.Domains) > 0 {
		return t.Domains[0]
	}
	return "general"
}

// Clone returns a deep copy of the template.
func (t TaskTemplate) Clone() TaskTemplate {
	out := t
	out.Title = cloneText(t.Title)
	out.Instructions = cloneText(t.Instructions)
	out.Domains = append([]string(nil), t.Domains...)
	if t.Questions != nil {
		out.Questions = make([]Question, len(t.Questions))
		for i, q := range t.Questions {
			q.Prompt = cloneText(q.Prompt)
			q.Options = append([]string(nil), q.Options...)
			q.Competencies = append([]string(nil), q.Competencies...)
			out.Questions[i] = q
		}
	}
	return out
}

func cloneText(t LocalizedText) LocalizedText {
	if t == nil {
		return nil
	}
	out := make(LocalizedText, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the scenario.
func (s *Scenario) Clone() *Scenario {
	out := *s
	out.Title = cloneText(s.Title)
	out.Description = cloneText(s.Description)
	if s.Objectives != nil {
		out.Objectives = make(map[string][]string, len(s.Objectives))
		for k, v := range s.Objectives {
			out.Objectives[k] = append([]string(nil), v...)
		}
	}
	out.TaskTemplates = make([]TaskTemplate, len(s.TaskTemplates))
	for i, t := range s.TaskTemplates {
		out.TaskTemplates[i] = t.Clone()
	}
	md := s.ModeData
	if md.DomainWeights != nil {
		md.DomainWeights = make(map[string]float64, len(s.ModeData.DomainWeights))
		for k, v := range s.ModeData.DomainWeights {
			md.DomainWeights[k] = v
		}
	}
	if md.Competencies != nil {
		md.Competencies = make(map[string]CompetencyKind, len(s.ModeData.Competencies))
		for k, v := range s.ModeData.Competencies {
			md.Competencies[k] = v
		}
	}
	out.ModeData = md
	return &out
}
