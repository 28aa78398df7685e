package store

import (
	"context"
	"time"

	"github.com/abhisek/pathway/internal/model"
)

// ScenarioRepo provides read access to scenario templates.
type ScenarioRepo interface {
	// GetScenario returns the scenario or a NotFound error.
	GetScenario(ctx context.Context, id string) (*model.Scenario, error)

	// ListScenarios returns all scenarios, archived ones included.
	ListScenarios(ctx context.Context) ([]*model.Scenario, error)
}

// ProgramRepo manages Program rows.
type ProgramRepo interface {
	// CreateProgram persists a program and all of its tasks atomically.
	// Either every row becomes visible or none does.
	CreateProgram(ctx context.Context, p *model.Program, tasks []*model.Task) error

	// GetProgram returns the program or a NotFound error.
	GetProgram(ctx context.Context, id string) (*model.Program, error)

	// LockProgram returns the program and, inside a transaction, holds a
	// row lock on it until the transaction ends.
	LockProgram(ctx context.Context, id string) (*model.Program, error)

	// ListPrograms returns the user's programs, most recently started first.
	ListPrograms(ctx context.Context, userID string) ([]*model.Program, error)

	// UpdateProgram writes the mutable fields of p. Fails with InvalidState
	// when the stored program is no longer active.
	UpdateProgram(ctx context.Context, p *model.Program) error

	// SetProgramStatus moves the program from one status to another only if
	// it is currently in from. Reports whether the swap happened.
	SetProgramStatus(ctx context.Context, id string, from, to model.ProgramStatus, at time.Time) (bool, error)
}

// TaskRepo manages Task rows and their interaction logs.
type TaskRepo interface {
	// GetTask returns the task with its full interaction history.
	GetTask(ctx context.Context, id string) (*model.Task, error)

	// ListTasks returns the program's tasks ordered by TaskIndex, each with
	// its interaction history.
	ListTasks(ctx context.Context, programID string) ([]*model.Task, error)

	// AppendInteraction assigns the next global sequence to in and appends it
	// to the task's log. Fails with InvalidState, writing nothing, when the
	// owning program is not active or the task is completed.
	AppendInteraction(ctx context.Context, taskID string, in *model.Interaction) error

	// SetTaskStatus moves the task from one status to another only if it is
	// currently in from. Reports whether the swap happened.
	SetTaskStatus(ctx context.Context, id string, from, to model.TaskStatus, at time.Time) (bool, error)
}

// EvaluationRepo manages Evaluation rows.
type EvaluationRepo interface {
	// CreateEvaluation persists e. At most one evaluation exists per
	// (program, task) target; a program-level evaluation has an empty task.
	CreateEvaluation(ctx context.Context, e *model.Evaluation) error

	// TaskEvaluation returns the evaluation of a task, or nil if none exists.
	TaskEvaluation(ctx context.Context, taskID string) (*model.Evaluation, error)

	// ProgramEvaluation returns the program-level evaluation, or nil if none
	// exists.
	ProgramEvaluation(ctx context.Context, programID string) (*model.Evaluation, error)

	// ListEvaluations returns all evaluations of a program in creation order.
	ListEvaluations(ctx context.Context, programID string) ([]*model.Evaluation, error)
}

// Transactor runs a function inside a transaction. Repositories called with
// the context handed to fn join the transaction; nested calls reuse it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Backend bundles the repositories of one storage engine.
type Backend interface {
	Transactor
	Programs() ProgramRepo
	Tasks() TaskRepo
	Evaluations() EvaluationRepo
	LLMEvents() LLMEventRepo
	Close() error
}
