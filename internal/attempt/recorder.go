// Package attempt records learner interactions against tasks. It checks and
// scores each submission, appends it to the task log, starts the task on
// its first qualifying interaction and triggers evaluation on completion.
package attempt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

// Submission is one learner action as received from the caller.
type Submission struct {
	EventType  model.EventType `json:"event_type"`
	QuestionID string          `json:"question_id,omitempty"`

	// Answer is a string, number or boolean. It is stored as trimmed text.
	Answer any `json:"answer,omitempty"`

	Content          string   `json:"content,omitempty"`
	TimeSpentSeconds float64  `json:"time_spent_seconds,omitempty"`
	Competencies     []string `json:"competencies,omitempty"`
}

// Result describes what recording did.
type Result struct {
	Interaction *model.Interaction
	Task        *model.Task

	// Started is true when recording this interaction moved the task from
	// pending to active.
	Started bool

	// Complete reports whether the task now satisfies its completion rule.
	Complete bool

	// Evaluation is set when auto-evaluation ran and succeeded.
	Evaluation *model.Evaluation
}

// StrategyResolver finds the strategy that governs a program.
type StrategyResolver interface {
	StrategyFor(ctx context.Context, p *model.Program) (mode.Strategy, error)
}

// Evaluator scores a completed task.
type Evaluator interface {
	EvaluateTask(ctx context.Context, taskID string) (*model.Evaluation, error)
}

// Recorder records interactions.
type Recorder struct {
	backend      store.Backend
	strategies   StrategyResolver
	evaluator    Evaluator
	autoEvaluate bool
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEvaluator enables evaluation of tasks as soon as they complete.
func WithEvaluator(e Evaluator) Option {
	return func(r *Recorder) {
		r.evaluator = e
		r.autoEvaluate = e != nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates a Recorder.
func New(backend store.Backend, strategies StrategyResolver, opts ...Option) *Recorder {
	r := &Recorder{
		backend:    backend,
		strategies: strategies,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record appends sub to the task's log. When auto-evaluation fails the
// recorded Result is still returned together with the error; the task then
// stays active and can be evaluated again.
func (r *Recorder) Record(ctx context.Context, userID, taskID string, sub Submission) (*Result, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}

	t, err := r.backend.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	p, err := r.backend.Programs().GetProgram(ctx, t.ProgramID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperr.NotFound("task", taskID)
	}
	if !p.IsActive() {
		return nil, apperr.InvalidState("program", p.ID, string(p.Status), "record interaction on")
	}
	if t.Status == model.TaskCompleted {
		return nil, apperr.InvalidState("task", t.ID, string(t.Status), "record interaction on")
	}

	strategy, err := r.strategies.StrategyFor(ctx, p)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	if strategy.Sequential() && t.TaskIndex != p.CurrentTaskIndex {
		err := apperr.InvalidState("task", t.ID, string(t.Status), "work out of order on")
		err.Metadata["current_task_index"] = strconv.Itoa(p.CurrentTaskIndex)
		return nil, err
	}
	if guard, ok := strategy.(mode.AttemptGuard); ok {
		if err := guard.CheckAttempt(p, t, now); err != nil {
			return nil, err
		}
	}

	payload, err := buildPayload(t, sub)
	if err != nil {
		return nil, err
	}
	in := &model.Interaction{EventType: sub.EventType, Payload: payload, Timestamp: now}
	if err := r.backend.Tasks().AppendInteraction(ctx, taskID, in); err != nil {
		return nil, err
	}
	t.Interactions = append(t.Interactions, *in)

	res := &Result{Interaction: in, Task: t}
	// A pending task with any qualifying interaction starts, so a retry after
	// a failed swap still moves it to active.
	if _, ok := FirstQualifying(t.Interactions); ok && t.Status == model.TaskPending {
		swapped, err := r.backend.Tasks().SetTaskStatus(ctx, taskID, model.TaskPending, model.TaskActive, now)
		if err != nil {
			return nil, fmt.Errorf("start task %s: %w", taskID, err)
		}
		if swapped {
			t.Status = model.TaskActive
			res.Started = true
		}
	}

	r.logger.Debug("interaction recorded",
		"task_id", taskID, "program_id", p.ID, "event", in.EventType,
		"sequence", in.Sequence, "started", res.Started)

	res.Complete = strategy.IsTaskComplete(t)
	if !res.Complete || !r.autoEvaluate {
		return res, nil
	}
	eval, err := r.evaluator.EvaluateTask(ctx, taskID)
	if err != nil {
		r.logger.Warn("automatic evaluation failed", "task_id", taskID, "error", err)
		return res, err
	}
	res.Evaluation = eval
	if t, err := r.backend.Tasks().GetTask(ctx, taskID); err == nil {
		res.Task = t
	}
	return res, nil
}

// FirstQualifying returns the earliest interaction in the ordered log that
// counts as engaging with the task.
func FirstQualifying(log []model.Interaction) (model.Interaction, bool) {
	for _, in := range log {
		if in.EventType.Qualifies() {
			return in, true
		}
	}
	return model.Interaction{}, false
}

func buildPayload(t *model.Task, sub Submission) (model.Payload, error) {
	p := model.Payload{
		QuestionID:       sub.QuestionID,
		Content:          sub.Content,
		TimeSpentSeconds: sub.TimeSpentSeconds,
		Competencies:     sub.Competencies,
	}
	if sub.EventType != model.EventAnswer {
		return p, nil
	}

	answer, err := answerText(sub.Answer)
	if err != nil {
		return p, err
	}
	bank := t.Content.QuestionBank()
	if p.QuestionID == "" && len(bank) == 1 {
		p.QuestionID = bank[0].ID
	}
	q, ok := t.Content.FindQuestion(p.QuestionID)
	if !ok {
		return p, apperr.Validation("task %s has no question %q", t.ID, p.QuestionID)
	}

	correct := mode.CheckAnswer(q, answer)
	p.Answer = answer
	p.IsCorrect = &correct
	if correct {
		p.Score = 1
	}
	return p, nil
}

// answerText renders a submitted answer as normalized text.
func answerText(v any) (string, error) {
	var s string
	switch a := v.(type) {
	case string:
		s = a
	case float64:
		s = strconv.FormatFloat(a, 'f', -1, 64)
	case int:
		s = strconv.Itoa(a)
	case int64:
		s = strconv.FormatInt(a, 10)
	case bool:
		s = strconv.FormatBool(a)
	case json.Number:
		s = a.String()
	default:
		return "", apperr.Validation("answer of type %T is not supported", v)
	}
	s = mode.NormalizeAnswer(s)
	if s == "" {
		return "", apperr.Validation("answer is empty")
	}
	return s, nil
}
