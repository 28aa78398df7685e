package model

// Mode selects the scoring and reward rules applied to a Scenario.
type Mode string

const (
	ModeStructured  Mode = "structured"
	ModeExploratory Mode = "exploratory"
	ModeAssessment  Mode = "assessment"
)

// AllModes lists every supported mode in display order.
var AllModes = []Mode{ModeStructured, ModeExploratory, ModeAssessment}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeStructured, ModeExploratory, ModeAssessment:
		return true
	}
	return false
}

// ScenarioStatus is the publication status of a Scenario.
type ScenarioStatus string

const (
	ScenarioActive   ScenarioStatus = "active"
	ScenarioArchived ScenarioStatus = "archived"
)

// ProgramStatus is the lifecycle status of a Program.
// Transitions are active -> completed and active -> abandoned only.
type ProgramStatus string

const (
	ProgramActive    ProgramStatus = "active"
	ProgramCompleted ProgramStatus = "completed"
	ProgramAbandoned ProgramStatus = "abandoned"
)

// IsTerminal reports whether no further mutation is allowed.
func (s ProgramStatus) IsTerminal() bool {
	return s == ProgramCompleted || s == ProgramAbandoned
}

// TaskStatus is the lifecycle status of a Task.
// Transitions are pending -> active -> completed only.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
)

// CanTransition reports whether moving from s to next is a legal forward step.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskActive
	case TaskActive:
		return next == TaskCompleted
	}
	return false
}

// TaskType describes the kind of step a task template defines.
type TaskType string

const (
	TaskQuestion     TaskType = "question"
	TaskExercise     TaskType = "exercise"
	TaskConversation TaskType = "conversation"
)

// EventType classifies an Interaction.
type EventType string

const (
	EventAnswer  EventType = "answer"
	EventMessage EventType = "message"
	EventHint    EventType = "hint"
)

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventAnswer, EventMessage, EventHint:
		return true
	}
	return false
}

// Qualifies reports whether an interaction of this type counts as the
// learner engaging with the task. Hint requests do not.
func (e EventType) Qualifies() bool {
	return e == EventAnswer || e == EventMessage
}

// EvaluationType distinguishes per-task from whole-program evaluations.
type EvaluationType string

const (
	EvaluationFormative EvaluationType = "formative"
	EvaluationSummative EvaluationType = "summative"
)

// TargetType identifies what an Evaluation scores.
type TargetType string

const (
	TargetTask    TargetType = "task"
	TargetProgram TargetType = "program"
)

// Performance is the coarse band an overall percentage falls into.
type Performance string

const (
	PerformanceExcellent        Performance = "excellent"
	PerformanceGood             Performance = "good"
	PerformanceSatisfactory     Performance = "satisfactory"
	PerformanceNeedsImprovement Performance = "needs-improvement"
)

// CompetencyKind is the KSA category a competency code belongs to.
type CompetencyKind string

const (
	Knowledge CompetencyKind = "knowledge"
	Skill     CompetencyKind = "skill"
	Attitude  CompetencyKind = "attitude"
)

// Valid reports whether k is one of the three KSA categories.
func (k CompetencyKind) Valid() bool {
	return k == Knowledge || k == Skill || k == Attitude
}
