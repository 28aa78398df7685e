package attempt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/pathway/internal/analysis"
	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/catalog"
	"github.com/abhisek/pathway/internal/evaluation"
	"github.com/abhisek/pathway/internal/lifecycle"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/retry"
	"github.com/abhisek/pathway/internal/store"
	"github.com/abhisek/pathway/internal/store/memstore"
)

type harness struct {
	st    *memstore.Store
	lc    *lifecycle.Manager
	rec   *Recorder
	clock time.Time
}

func (h *harness) now() time.Time { return h.clock }

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, *analysis.Request) (*model.Feedback, error) {
	return nil, apperr.Transient("provider down", errors.New("503"))
}

// flakyStatusBackend fails the first pending-to-active swap after the
// interaction has already been appended.
type flakyStatusBackend struct {
	*memstore.Store
	failures int
}

func (b *flakyStatusBackend) Tasks() store.TaskRepo {
	return &flakyStatusTasks{TaskRepo: b.Store.Tasks(), b: b}
}

type flakyStatusTasks struct {
	store.TaskRepo
	b *flakyStatusBackend
}

func (t *flakyStatusTasks) SetTaskStatus(ctx context.Context, id string, from, to model.TaskStatus, at time.Time) (bool, error) {
	if t.b.failures > 0 {
		t.b.failures--
		return false, apperr.Transient("connection reset", errors.New("reset by peer"))
	}
	return t.TaskRepo.SetTaskStatus(ctx, id, from, to, at)
}

func scenarios(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	require.NoError(t, c.Add(&model.Scenario{
		ID:    "logic",
		Mode:  model.ModeAssessment,
		Title: model.LocalizedText{"en": "Logic check"},
		ModeData: model.ModeData{
			TimeLimit:        30 * time.Minute,
			PassingThreshold: 60,
		},
		TaskTemplates: []model.TaskTemplate{{
			Key:     "quiz",
			Domains: []string{"logic"},
			Questions: []model.Question{
				{ID: "q1", CorrectAnswer: "B"},
				{ID: "q2", CorrectAnswer: "Y"},
			},
		}},
	}))
	require.NoError(t, c.Add(&model.Scenario{
		ID:    "steps",
		Mode:  model.ModeStructured,
		Title: model.LocalizedText{"en": "Steps"},
		TaskTemplates: []model.TaskTemplate{
			{Key: "square", ScoringKey: "4"},
			{Key: "cube", ScoringKey: "27"},
		},
	}))
	require.NoError(t, c.Add(&model.Scenario{
		ID:            "talk",
		Mode:          model.ModeExploratory,
		Title:         model.LocalizedText{"en": "Talk"},
		TaskTemplates: []model.TaskTemplate{{Key: "open", MinTurns: 2}},
	}))
	return c
}

func newHarness(t *testing.T, evalOpts ...evaluation.Option) *harness {
	t.Helper()
	h := &harness{st: memstore.New(), clock: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	h.lc = lifecycle.New(h.st, scenarios(t), mode.NewRegistry(), lifecycle.WithClock(h.now))
	evalOpts = append([]evaluation.Option{evaluation.WithClock(h.now)}, evalOpts...)
	eng := evaluation.New(h.st, h.lc, evalOpts...)
	h.rec = New(h.st, h.lc, WithEvaluator(eng), WithClock(h.now))
	return h
}

func (h *harness) start(t *testing.T, scenarioID string) (*model.Program, []*model.Task) {
	t.Helper()
	p, err := h.lc.Start(context.Background(), "learner", scenarioID, mode.StartOptions{})
	require.NoError(t, err)
	tasks, err := h.st.Tasks().ListTasks(context.Background(), p.ID)
	require.NoError(t, err)
	return p, tasks
}

func answer(q string, a any) Submission {
	return Submission{EventType: model.EventAnswer, QuestionID: q, Answer: a}
}

func TestTwoQuestionAssessment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, tasks := h.start(t, "logic")
	task := tasks[0]

	res, err := h.rec.Record(ctx, "learner", task.ID, answer("q1", "B"))
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, model.TaskActive, res.Task.Status)
	require.NotNil(t, res.Interaction.Payload.IsCorrect)
	assert.True(t, *res.Interaction.Payload.IsCorrect)
	assert.Equal(t, 1.0, res.Interaction.Payload.Score)
	assert.False(t, res.Complete)

	h.clock = h.clock.Add(time.Minute)
	res, err = h.rec.Record(ctx, "learner", task.ID, answer("q2", " Y "))
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.True(t, res.Complete)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, 2.0, res.Evaluation.Score)
	assert.Equal(t, 2.0, res.Evaluation.MaxScore)
	assert.Equal(t, model.TaskCompleted, res.Task.Status)

	done, err := h.st.Programs().GetProgram(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgramCompleted, done.Status)
	assert.Equal(t, 1, done.CompletedTaskCount)
	assert.Equal(t, 100.0, done.DomainScores["logic"])
	assert.Equal(t, true, done.Metadata[mode.MetaPassed])
	require.NotNil(t, done.CompletedAt)

	final, err := h.st.Evaluations().ProgramEvaluation(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, model.PerformanceExcellent, final.Metadata.Performance)
}

func TestWrongAnswerDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "logic")
	id := tasks[0].ID

	res, err := h.rec.Record(ctx, "learner", id, answer("q1", "A"))
	require.NoError(t, err)
	assert.False(t, *res.Interaction.Payload.IsCorrect)
	assert.Equal(t, 0.0, res.Interaction.Payload.Score)
	assert.True(t, res.Started)

	res, err = h.rec.Record(ctx, "learner", id, answer("q1", "B"))
	require.NoError(t, err)
	assert.True(t, *res.Interaction.Payload.IsCorrect)
	assert.False(t, res.Started, "replaying the first-interaction fold is a no-op")
	assert.Len(t, res.Task.Interactions, 2)
	assert.Greater(t, res.Task.Interactions[1].Sequence, res.Task.Interactions[0].Sequence)
}

func TestFirstWinsScoresTheEarliestAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "logic")
	id := tasks[0].ID

	_, err := h.rec.Record(ctx, "learner", id, answer("q1", "A"))
	require.NoError(t, err)
	_, err = h.rec.Record(ctx, "learner", id, answer("q1", "B"))
	require.NoError(t, err)
	res, err := h.rec.Record(ctx, "learner", id, answer("q2", "Y"))
	require.NoError(t, err)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, 1.0, res.Evaluation.Score)
	assert.Equal(t, string(mode.FirstWins), res.Evaluation.Metadata.AnswerPolicy)
}

func TestValidationHappensBeforeAnyWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "logic")
	id := tasks[0].ID

	bad := map[string]Submission{
		"no answer":      {EventType: model.EventAnswer, QuestionID: "q1"},
		"blank answer":   answer("q1", "   "),
		"empty message":  {EventType: model.EventMessage},
		"unknown type":   {EventType: "shout", Content: "hi"},
		"negative time":  {EventType: model.EventMessage, Content: "hi", TimeSpentSeconds: -1},
		"answer on chat": {EventType: model.EventMessage, Content: "hi", Answer: "B"},
		"unknown q":      answer("q9", "B"),
		"object answer":  answer("q1", map[string]any{"x": 1}),
	}
	for name, sub := range bad {
		_, err := h.rec.Record(ctx, "learner", id, sub)
		assert.ErrorIs(t, err, apperr.ErrValidation, name)
	}

	task, err := h.st.Tasks().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, task.Interactions)
	assert.Equal(t, model.TaskPending, task.Status)
}

func TestOwnershipAndProgramStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, tasks := h.start(t, "talk")
	id := tasks[0].ID

	_, err := h.rec.Record(ctx, "intruder", id, Submission{EventType: model.EventMessage, Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.rec.Record(ctx, "learner", "no-such-task", Submission{EventType: model.EventMessage, Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.lc.Abandon(ctx, "learner", p.ID)
	require.NoError(t, err)
	_, err = h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventMessage, Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	task, err := h.st.Tasks().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, task.Interactions)
}

func TestCompletedProgramRejectsInteractions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "talk")
	id := tasks[0].ID

	for _, msg := range []string{"first thought", "second thought"} {
		_, err := h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventMessage, Content: msg})
		require.NoError(t, err)
	}
	_, err := h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventMessage, Content: "late"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	task, err := h.st.Tasks().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Len(t, task.Interactions, 2)
}

func TestSequentialOrderAndImplicitQuestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "steps")

	_, err := h.rec.Record(ctx, "learner", tasks[1].ID, answer("", "27"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	res, err := h.rec.Record(ctx, "learner", tasks[0].ID, answer("", 4.0))
	require.NoError(t, err)
	assert.Equal(t, "square", res.Interaction.Payload.QuestionID)
	assert.Equal(t, "4", res.Interaction.Payload.Answer)
	assert.True(t, *res.Interaction.Payload.IsCorrect)
	require.NotNil(t, res.Evaluation, "a solved single-question task completes")

	res, err = h.rec.Record(ctx, "learner", tasks[1].ID, answer("", "26"))
	require.NoError(t, err)
	assert.False(t, res.Complete, "attempts remain")
}

func TestDeadlineGuard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "logic")

	h.clock = h.clock.Add(31 * time.Minute)
	_, err := h.rec.Record(ctx, "learner", tasks[0].ID, answer("q1", "B"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestHintsDoNotStartTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "talk")
	id := tasks[0].ID

	res, err := h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventHint})
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Equal(t, model.TaskPending, res.Task.Status)

	res, err = h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventMessage, Content: "ok"})
	require.NoError(t, err)
	assert.True(t, res.Started)

	first, ok := FirstQualifying(res.Task.Interactions)
	require.True(t, ok)
	assert.Equal(t, model.EventMessage, first.EventType)
}

func TestRetryAfterFailedStartActivatesTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, tasks := h.start(t, "logic")
	id := tasks[0].ID

	flaky := &flakyStatusBackend{Store: h.st, failures: 1}
	h.rec = New(flaky, h.lc, WithEvaluator(evaluation.New(h.st, h.lc, evaluation.WithClock(h.now))), WithClock(h.now))

	_, err := h.rec.Record(ctx, "learner", id, answer("q1", "B"))
	require.ErrorIs(t, err, apperr.ErrTransient)
	task, err := h.st.Tasks().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Len(t, task.Interactions, 1)

	res, err := h.rec.Record(ctx, "learner", id, answer("q1", "B"))
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, model.TaskActive, res.Task.Status)

	res, err = h.rec.Record(ctx, "learner", id, answer("q2", "Y"))
	require.NoError(t, err)
	assert.False(t, res.Started)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, model.TaskCompleted, res.Task.Status)
}

func TestEvaluationFailureKeepsRecordedResult(t *testing.T) {
	h := newHarness(t,
		evaluation.WithAnalyzer(failingAnalyzer{}),
		evaluation.WithRetryPolicy(retry.Policy{MaxAttempts: 1}),
	)
	ctx := context.Background()
	_, tasks := h.start(t, "talk")
	id := tasks[0].ID

	_, err := h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventMessage, Content: "a"})
	require.NoError(t, err)
	res, err := h.rec.Record(ctx, "learner", id, Submission{EventType: model.EventMessage, Content: "b"})
	assert.ErrorIs(t, err, apperr.ErrTransient)
	require.NotNil(t, res)
	assert.True(t, res.Complete)
	assert.Nil(t, res.Evaluation)

	task, err := h.st.Tasks().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskActive, task.Status)
	assert.Len(t, task.Interactions, 2)
}

func TestWithoutEvaluatorTasksStayActive(t *testing.T) {
	h := newHarness(t)
	h.rec = New(h.st, h.lc, WithClock(h.now))
	ctx := context.Background()
	_, tasks := h.start(t, "steps")

	res, err := h.rec.Record(ctx, "learner", tasks[0].ID, answer("", "4"))
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Nil(t, res.Evaluation)
	assert.Equal(t, model.TaskActive, res.Task.Status)
}

func TestAnswerText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{" B ", "B"},
		{3.5, "3.5"},
		{27.0, "27"},
		{true, "true"},
		{12, "12"},
	}
	for _, tt := range tests {
		got, err := answerText(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := answerText(nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
