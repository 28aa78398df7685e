// Package evaluation turns completed task logs into scored evaluations and
// rolls them up into the program outcome.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/abhisek/pathway/internal/analysis"
	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/lifecycle"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/retry"
	"github.com/abhisek/pathway/internal/store"
)

// Analyzer produces qualitative feedback for a task. Implementations
// return TRANSIENT errors for failures worth retrying.
type Analyzer interface {
	Analyze(ctx context.Context, req *analysis.Request) (*model.Feedback, error)
}

// Engine evaluates tasks and finalizes programs.
type Engine struct {
	backend         store.Backend
	lifecycle       *lifecycle.Manager
	analyzer        Analyzer
	policy          mode.AnswerPolicy
	retry           retry.Policy
	analysisTimeout time.Duration
	group           singleflight.Group
	now             func() time.Time
	logger          *slog.Logger
}

var _ lifecycle.Finalizer = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithAnalyzer enables qualitative feedback on task evaluations.
func WithAnalyzer(a Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithAnswerPolicy selects which answer counts when a question was answered
// more than once.
func WithAnswerPolicy(p mode.AnswerPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithRetryPolicy bounds retries of the analyzer.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithAnalysisTimeout bounds each analyzer attempt.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(e *Engine) { e.analysisTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine and installs it as lc's finalizer.
func New(backend store.Backend, lc *lifecycle.Manager, opts ...Option) *Engine {
	e := &Engine{
		backend:         backend,
		lifecycle:       lc,
		policy:          mode.DefaultAnswerPolicy,
		retry:           retry.DefaultPolicy(),
		analysisTimeout: 30 * time.Second,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	lc.SetFinalizer(e)
	return e
}

// EvaluateTask scores an active task that satisfies its completion rule,
// stores the task evaluation, applies task rewards and advances the
// program. A task that is already completed returns its evaluation.
func (e *Engine) EvaluateTask(ctx context.Context, taskID string) (*model.Evaluation, error) {
	return e.shared(ctx, "task/"+taskID, func() (*model.Evaluation, error) {
		return e.evaluateTask(ctx, taskID)
	})
}

// shared collapses concurrent calls for key. The call runs on the context of
// whichever caller started it; a joined caller whose own context is still
// live runs the call again when that context was cancelled underneath it.
func (e *Engine) shared(ctx context.Context, key string, fn func() (*model.Evaluation, error)) (*model.Evaluation, error) {
	for attempt := 0; ; attempt++ {
		v, err, shared := e.group.Do(key, func() (any, error) { return fn() })
		if err == nil {
			return v.(*model.Evaluation), nil
		}
		if attempt > 0 || !shared || ctx.Err() != nil || !isContextErr(err) {
			return nil, err
		}
		e.logger.Debug("shared call cancelled by another caller, running again", "key", key)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) evaluateTask(ctx context.Context, taskID string) (*model.Evaluation, error) {
	t, err := e.backend.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TaskCompleted {
		return e.existingTaskEvaluation(ctx, t.ID)
	}
	p, err := e.backend.Programs().GetProgram(ctx, t.ProgramID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, apperr.InvalidState("program", p.ID, string(p.Status), "evaluate a task of")
	}
	if t.Status != model.TaskActive {
		return nil, apperr.InvalidState("task", t.ID, string(t.Status), "evaluate")
	}
	strategy, err := e.lifecycle.StrategyFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if !strategy.IsTaskComplete(t) {
		return nil, apperr.InvalidState("task", t.ID, "incomplete", "evaluate")
	}

	score, err := strategy.ScoreTask(t, e.policy)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnknown {
			err = apperr.Evaluation("score task "+t.ID, err)
		}
		return nil, err
	}

	// The analyzer runs before any lock is taken. Its failure leaves the
	// task active.
	feedback, err := e.analyze(ctx, p, t, strategy, score)
	if err != nil {
		return nil, err
	}
	strategy.AdjustScore(score, feedback)

	var out *model.Evaluation
	err = e.backend.WithinTx(ctx, func(ctx context.Context) error {
		p, err := e.backend.Programs().LockProgram(ctx, p.ID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return apperr.InvalidState("program", p.ID, string(p.Status), "evaluate a task of")
		}
		now := e.now().UTC()
		swapped, err := e.backend.Tasks().SetTaskStatus(ctx, t.ID, model.TaskActive, model.TaskCompleted, now)
		if err != nil {
			return err
		}
		if !swapped {
			// Another evaluator finished first.
			out, err = e.existingTaskEvaluation(ctx, t.ID)
			return err
		}

		eval := &model.Evaluation{
			UserID:           p.UserID,
			ProgramID:        p.ID,
			TaskID:           t.ID,
			Mode:             p.Mode,
			EvaluationType:   model.EvaluationFormative,
			Score:            score.Score,
			MaxScore:         score.MaxScore,
			DomainScores:     score.DomainScores,
			Feedback:         feedback,
			TimeTakenSeconds: timeTaken(t, now),
			Metadata: model.EvaluationMetadata{
				TargetType:   model.TargetTask,
				Performance:  PerformanceFor(score.Percentage()),
				Competencies: score.Competencies,
				AnswerPolicy: string(e.policy),
				Extra:        score.Extra,
			},
			CreatedAt: now,
		}
		if err := e.backend.Evaluations().CreateEvaluation(ctx, eval); err != nil {
			return fmt.Errorf("store evaluation of task %s: %w", t.ID, err)
		}

		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		maps.Copy(p.Metadata, strategy.OnTaskComplete(p, t, score))
		p.TotalScore += score.Score
		p.Touch(now)
		if err := e.backend.Programs().UpdateProgram(ctx, p); err != nil {
			return err
		}
		if _, err := e.lifecycle.Advance(ctx, p.ID); err != nil {
			return err
		}
		out = eval
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("task evaluated",
		"task_id", t.ID, "program_id", t.ProgramID,
		"score", out.Score, "max_score", out.MaxScore, "feedback", out.Feedback != nil)
	return out, nil
}

func (e *Engine) analyze(ctx context.Context, p *model.Program, t *model.Task, strategy mode.Strategy, score *mode.TaskScore) (*model.Feedback, error) {
	if e.analyzer == nil {
		return nil, nil
	}
	lang := lifecycle.Language(p)
	req := &analysis.Request{
		ScenarioTitle: strategy.Scenario().Title.Get(lang),
		Mode:          p.Mode,
		Language:      lang,
		Task:          t,
		Score:         score.Score,
		MaxScore:      score.MaxScore,
	}

	var fb *model.Feedback
	err := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		var err error
		fb, err = e.analyzer.Analyze(ctx, req)
		return err
	}, retry.WithAttemptTimeout(e.analysisTimeout))
	switch {
	case err == nil:
		return fb, nil
	case errors.Is(err, context.Canceled):
		return nil, err
	case apperr.IsRetryable(err):
		return nil, apperr.Transient("analysis of task "+t.ID+" failed after retries", err)
	case apperr.CodeOf(err) == apperr.CodeUnknown:
		return nil, apperr.Evaluation("analysis of task "+t.ID, err)
	}
	return nil, err
}

func (e *Engine) existingTaskEvaluation(ctx context.Context, taskID string) (*model.Evaluation, error) {
	eval, err := e.backend.Evaluations().TaskEvaluation(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, apperr.NotFound("evaluation of task", taskID)
	}
	return eval, nil
}

// timeTaken sums the reported time spent on the task, falling back to the
// span of its log.
func timeTaken(t *model.Task, now time.Time) float64 {
	var spent float64
	for _, in := range t.Interactions {
		spent += in.Payload.TimeSpentSeconds
	}
	if spent > 0 || len(t.Interactions) == 0 {
		return spent
	}
	first := t.Interactions[0].Timestamp
	return model.Later(first, now).Sub(first).Seconds()
}
