// Package mode holds the per-mode scoring and reward rules. A Strategy is
// bound to one Scenario when a program starts; the lifecycle, recorder and
// evaluation packages delegate every mode-dependent decision to it.
package mode

import (
	"time"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

// StartOptions carries caller choices for a new program.
type StartOptions struct {
	// Language is the caller's preferred language for localized text.
	Language string

	// Seed drives task shuffling. Zero derives a seed from Now.
	Seed uint64

	// Now is the program start time.
	Now time.Time
}

// Plan is a strategy's initial layout of a program.
type Plan struct {
	// TaskOrder lists template indexes in task order.
	TaskOrder []int

	// Metadata seeds Program.Metadata.
	Metadata map[string]any
}

// TaskScore is the outcome of scoring one task's interaction log.
type TaskScore struct {
	Score    float64
	MaxScore float64

	// DomainScores holds raw percentages (0-100) per domain.
	DomainScores map[string]float64

	// Competencies tallies correct responses per competency code.
	Competencies map[string]model.Tally

	Extra map[string]any
}

// Percentage returns Score as a percentage of MaxScore.
func (s *TaskScore) Percentage() float64 {
	if s.MaxScore <= 0 {
		return 0
	}
	return s.Score / s.MaxScore * 100
}

// Aggregate is the program-level rollup handed to OnProgramComplete.
type Aggregate struct {
	Score            float64
	MaxScore         float64
	Percentage       float64
	DomainScores     map[string]float64
	KSA              map[model.CompetencyKind]float64
	Performance      model.Performance
	TaskCount        int
	TimeTakenSeconds float64
}

// Strategy encodes the rules of one mode for one scenario.
type Strategy interface {
	Mode() model.Mode
	Scenario() *model.Scenario

	// Sequential reports whether tasks must be worked in order.
	Sequential() bool

	// Initialize lays out a new program.
	Initialize(opts StartOptions) (*Plan, error)

	// IsTaskComplete reports whether the task's log satisfies the
	// completion rule, so that it may be evaluated.
	IsTaskComplete(t *model.Task) bool

	// ScoreTask computes the task score from its log.
	ScoreTask(t *model.Task, policy AnswerPolicy) (*TaskScore, error)

	// AdjustScore folds analyst feedback into a task score.
	AdjustScore(s *TaskScore, fb *model.Feedback)

	// WeightDomain maps a raw domain percentage to the value aggregated
	// into program domain scores.
	WeightDomain(domain string, raw float64) float64

	// OnTaskComplete returns program metadata updates after a task
	// evaluation is stored.
	OnTaskComplete(p *model.Program, t *model.Task, s *TaskScore) map[string]any

	// OnProgramComplete returns the final program metadata.
	OnProgramComplete(p *model.Program, agg Aggregate) map[string]any
}

// AttemptGuard is implemented by strategies that can refuse an attempt
// beyond the generic status checks.
type AttemptGuard interface {
	CheckAttempt(p *model.Program, t *model.Task, now time.Time) error
}

// Factory builds a strategy bound to sc.
type Factory func(sc *model.Scenario) Strategy

// Registry resolves a scenario's mode to its strategy.
type Registry struct {
	factories map[model.Mode]Factory
}

// NewRegistry returns a registry with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[model.Mode]Factory)}
	r.Register(model.ModeStructured, NewStructured)
	r.Register(model.ModeExploratory, NewExploratory)
	r.Register(model.ModeAssessment, NewAssessment)
	return r
}

// Register installs or replaces the factory for m.
func (r *Registry) Register(m model.Mode, f Factory) {
	r.factories[m] = f
}

// For returns the strategy bound to sc.
func (r *Registry) For(sc *model.Scenario) (Strategy, error) {
	f, ok := r.factories[sc.Mode]
	if !ok {
		return nil, apperr.Validation("scenario %q has unsupported mode %q", sc.ID, sc.Mode)
	}
	return f(sc), nil
}
