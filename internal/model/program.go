package model

import "time"

// Program is one user's run through a Scenario. It owns its Tasks.
type Program struct {
	ID                 string             `json:"id"`
	ScenarioID         string             `json:"scenario_id"`
	UserID             string             `json:"user_id"`
	Mode               Mode               `json:"mode"`
	Status             ProgramStatus      `json:"status"`
	CurrentTaskIndex   int                `json:"current_task_index"`
	CompletedTaskCount int                `json:"completed_task_count"`
	TotalTaskCount     int                `json:"total_task_count"`
	TotalScore         float64            `json:"total_score"`
	DomainScores       map[string]float64 `json:"domain_scores,omitempty"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	LastActivityAt     time.Time          `json:"last_activity_at"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsActive reports whether the program still accepts mutations.
func (p *Program) IsActive() bool {
	return p.Status == ProgramActive
}

// Touch advances the activity timestamps without ever moving them back.
func (p *Program) Touch(now time.Time) {
	p.LastActivityAt = Later(p.LastActivityAt, now)
	p.UpdatedAt = Later(p.UpdatedAt, now)
}

// Task is one step of a Program, instantiated from a TaskTemplate.
type Task struct {
	ID            string        `json:"id"`
	ProgramID     string        `json:"program_id"`
	TaskIndex     int           `json:"task_index"`
	TemplateIndex int           `json:"template_index"`
	Type          TaskType      `json:"type"`
	Status        TaskStatus    `json:"status"`
	Content       TaskTemplate  `json:"content"`
	Interactions  []Interaction `json:"interactions,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// Interaction is an immutable record of one learner action on a Task.
type Interaction struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Sequence  int64     `json:"sequence"`
	EventType EventType `json:"event_type"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload carries the event-specific data of an Interaction.
type Payload struct {
	QuestionID       string   `json:"question_id,omitempty"`
	Answer           string   `json:"answer,omitempty"`
	Content          string   `json:"content,omitempty"`
	IsCorrect        *bool    `json:"is_correct,omitempty"`
	Score            float64  `json:"score"`
	TimeSpentSeconds float64  `json:"time_spent_seconds,omitempty"`
	Competencies     []string `json:"competencies,omitempty"`
}

// Evaluation is a scored outcome for one Task or a whole Program.
type Evaluation struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	ProgramID        string             `json:"program_id"`
	TaskID           string             `json:"task_id,omitempty"`
	Mode             Mode               `json:"mode"`
	EvaluationType   EvaluationType     `json:"evaluation_type"`
	Score            float64            `json:"score"`
	MaxScore         float64            `json:"max_score"`
	DomainScores     map[string]float64 `json:"domain_scores,omitempty"`
	Feedback         *Feedback          `json:"feedback,omitempty"`
	TimeTakenSeconds float64            `json:"time_taken_seconds"`
	Metadata         EvaluationMetadata `json:"metadata"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Percentage returns Score as a percentage of MaxScore.
func (e *Evaluation) Percentage() float64 {
	if e.MaxScore <= 0 {
		return 0
	}
	return e.Score / e.MaxScore * 100
}

// EvaluationMetadata is the structured part of an evaluation record.
type EvaluationMetadata struct {
	TargetType   TargetType                 `json:"target_type"`
	Performance  Performance                `json:"performance,omitempty"`
	KSA          map[CompetencyKind]float64 `json:"ksa,omitempty"`
	Competencies map[string]Tally           `json:"competencies,omitempty"`
	AnswerPolicy string                     `json:"answer_policy,omitempty"`
	Extra        map[string]any             `json:"extra,omitempty"`
}

// Tally counts correct responses out of those given.
type Tally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Add folds another tally into t.
func (t Tally) Add(o Tally) Tally {
	return Tally{Correct: t.Correct + o.Correct, Total: t.Total + o.Total}
}

// Ratio returns Correct/Total, or 0 when nothing was counted.
func (t Tally) Ratio() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Total)
}

// Feedback is qualitative analysis attached to an evaluation.
type Feedback struct {
	// Quality is the analyst's 0-1 rating, when one was produced.
	Quality      *float64 `json:"quality,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// Later returns whichever of a and b is later.
func Later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
