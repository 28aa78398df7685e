// Package lifecycle instantiates scenarios into programs and moves programs
// through their statuses: start, advance, focus, abandon.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/catalog"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

// MetaLanguage holds the language a program was started in.
const MetaLanguage = "language"

// Finalizer closes a program once no task is left open. The manager calls
// it inside its own transaction with the program row already locked.
type Finalizer interface {
	FinalizeLocked(ctx context.Context, p *model.Program) (*model.Evaluation, error)
}

// Manager owns the program lifecycle.
type Manager struct {
	backend   store.Backend
	scenarios store.ScenarioRepo
	registry  *mode.Registry
	finalizer Finalizer
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager.
func New(backend store.Backend, scenarios store.ScenarioRepo, registry *mode.Registry, opts ...Option) *Manager {
	m := &Manager{
		backend:   backend,
		scenarios: scenarios,
		registry:  registry,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetFinalizer installs the hook run when the last task completes. Without
// one, programs stay active until finalized explicitly.
func (m *Manager) SetFinalizer(f Finalizer) {
	m.finalizer = f
}

// Start instantiates the scenario for userID. Each template becomes one
// pending task, in the order the mode's plan gives.
func (m *Manager) Start(ctx context.Context, userID, scenarioID string, opts mode.StartOptions) (*model.Program, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	sc, err := m.scenarios.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if !sc.IsActive() {
		return nil, apperr.NotFound("scenario", scenarioID)
	}
	strategy, err := m.registry.For(sc)
	if err != nil {
		return nil, err
	}

	if opts.Now.IsZero() {
		opts.Now = m.now()
	}
	now := opts.Now.UTC()
	plan, err := strategy.Initialize(opts)
	if err != nil {
		return nil, err
	}

	p := &model.Program{
		ID:             uuid.NewString(),
		ScenarioID:     sc.ID,
		UserID:         userID,
		Mode:           sc.Mode,
		Status:         model.ProgramActive,
		TotalTaskCount: len(plan.TaskOrder),
		DomainScores:   map[string]float64{},
		Metadata:       map[string]any{MetaLanguage: catalog.MatchLanguage(sc.Title, opts.Language)},
		StartedAt:      now,
		LastActivityAt: now,
		UpdatedAt:      now,
	}
	for k, v := range plan.Metadata {
		p.Metadata[k] = v
	}

	tasks := make([]*model.Task, len(plan.TaskOrder))
	for i, ti := range plan.TaskOrder {
		if ti < 0 || ti >= len(sc.TaskTemplates) {
			return nil, fmt.Errorf("plan for %s references template %d of %d", sc.ID, ti, len(sc.TaskTemplates))
		}
		tmpl := sc.TaskTemplates[ti]
		tasks[i] = &model.Task{
			ID:            uuid.NewString(),
			ProgramID:     p.ID,
			TaskIndex:     i,
			TemplateIndex: ti,
			Type:          tmpl.Type,
			Status:        model.TaskPending,
			Content:       tmpl.Clone(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := m.backend.Programs().CreateProgram(ctx, p, tasks); err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	m.logger.Info("program started",
		"program_id", p.ID, "scenario_id", sc.ID, "user_id", userID,
		"mode", sc.Mode, "tasks", len(tasks))
	return p, nil
}

// Advance recomputes the completed count from task statuses and moves the
// task pointer to the next open task, wrapping around. When every task is
// completed the finalizer runs in the same transaction.
func (m *Manager) Advance(ctx context.Context, programID string) (*model.Program, error) {
	var out *model.Program
	err := m.backend.WithinTx(ctx, func(ctx context.Context) error {
		p, err := m.backend.Programs().LockProgram(ctx, programID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return apperr.InvalidState("program", p.ID, string(p.Status), "advance")
		}
		tasks, err := m.backend.Tasks().ListTasks(ctx, programID)
		if err != nil {
			return err
		}

		p.CompletedTaskCount = completedCount(tasks)
		if next, ok := nextOpen(tasks, p.CurrentTaskIndex); ok {
			p.CurrentTaskIndex = next
		}
		p.Touch(m.now().UTC())
		if err := m.backend.Programs().UpdateProgram(ctx, p); err != nil {
			return err
		}

		if p.CompletedTaskCount == len(tasks) && m.finalizer != nil {
			if _, err := m.finalizer.FinalizeLocked(ctx, p); err != nil {
				return fmt.Errorf("finalize program %s: %w", p.ID, err)
			}
			if p, err = m.backend.Programs().GetProgram(ctx, programID); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func completedCount(tasks []*model.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == model.TaskCompleted {
			n++
		}
	}
	return n
}

// nextOpen returns the index of the first task after current, wrapping, that
// is not completed. The current task is considered last.
func nextOpen(tasks []*model.Task, current int) (int, bool) {
	n := len(tasks)
	for step := 1; step <= n; step++ {
		i := (current + step) % n
		if tasks[i].Status != model.TaskCompleted {
			return i, true
		}
	}
	return 0, false
}

// Abandon ends an active program without an evaluation.
func (m *Manager) Abandon(ctx context.Context, userID, programID string) (*model.Program, error) {
	p, err := m.Get(ctx, userID, programID)
	if err != nil {
		return nil, err
	}
	ok, err := m.backend.Programs().SetProgramStatus(ctx, programID, model.ProgramActive, model.ProgramAbandoned, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := m.backend.Programs().GetProgram(ctx, programID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidState("program", programID, string(cur.Status), "abandon")
	}
	m.logger.Info("program abandoned", "program_id", programID, "user_id", p.UserID)
	return m.backend.Programs().GetProgram(ctx, programID)
}

// Focus moves the task pointer. Sequential modes only accept the current
// task; completed tasks cannot be focused.
func (m *Manager) Focus(ctx context.Context, userID, programID string, taskIndex int) (*model.Program, error) {
	var out *model.Program
	err := m.backend.WithinTx(ctx, func(ctx context.Context) error {
		p, err := m.backend.Programs().LockProgram(ctx, programID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return apperr.NotFound("program", programID)
		}
		if !p.IsActive() {
			return apperr.InvalidState("program", p.ID, string(p.Status), "focus")
		}
		if taskIndex < 0 || taskIndex >= p.TotalTaskCount {
			return apperr.Validation("task index %d is outside 0-%d", taskIndex, p.TotalTaskCount-1)
		}
		strategy, err := m.StrategyFor(ctx, p)
		if err != nil {
			return err
		}
		if strategy.Sequential() && taskIndex != p.CurrentTaskIndex {
			err := apperr.InvalidState("program", p.ID, string(p.Status), "jump ahead in sequential")
			err.Metadata["current_task_index"] = fmt.Sprint(p.CurrentTaskIndex)
			return err
		}

		tasks, err := m.backend.Tasks().ListTasks(ctx, programID)
		if err != nil {
			return err
		}
		if t := tasks[taskIndex]; t.Status == model.TaskCompleted {
			return apperr.InvalidState("task", t.ID, string(t.Status), "focus")
		}

		p.CurrentTaskIndex = taskIndex
		p.Touch(m.now().UTC())
		if err := m.backend.Programs().UpdateProgram(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the program when it belongs to userID. Programs of other
// users are reported as not found.
func (m *Manager) Get(ctx context.Context, userID, programID string) (*model.Program, error) {
	p, err := m.backend.Programs().GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperr.NotFound("program", programID)
	}
	return p, nil
}

// Tasks returns the tasks of one of userID's programs in order.
func (m *Manager) Tasks(ctx context.Context, userID, programID string) ([]*model.Task, error) {
	if _, err := m.Get(ctx, userID, programID); err != nil {
		return nil, err
	}
	return m.backend.Tasks().ListTasks(ctx, programID)
}

// List returns userID's programs, most recently started first.
func (m *Manager) List(ctx context.Context, userID string) ([]*model.Program, error) {
	return m.backend.Programs().ListPrograms(ctx, userID)
}

// StrategyFor resolves the strategy of a program's scenario. Archived
// scenarios still resolve so running programs can finish.
func (m *Manager) StrategyFor(ctx context.Context, p *model.Program) (mode.Strategy, error) {
	sc, err := m.scenarios.GetScenario(ctx, p.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("scenario of program %s: %w", p.ID, err)
	}
	return m.registry.For(sc)
}

// Language returns the language a program was started in.
func Language(p *model.Program) string {
	if s, ok := p.Metadata[MetaLanguage].(string); ok && s != "" {
		return s
	}
	return model.DefaultLanguage
}
