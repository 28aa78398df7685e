package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/catalog"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store/memstore"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeFinalizer struct{ calls []string }

func (f *fakeFinalizer) FinalizeLocked(_ context.Context, p *model.Program) (*model.Evaluation, error) {
	f.calls = append(f.calls, p.ID)
	return &model.Evaluation{ProgramID: p.ID}, nil
}

func newManager(t *testing.T) (*Manager, *memstore.Store) {
	t.Helper()
	c := catalog.New()
	require.NoError(t, c.Add(&model.Scenario{
		ID:    "practice",
		Mode:  model.ModeStructured,
		Title: model.LocalizedText{"en": "Practice", "de": "Übung"},
		TaskTemplates: []model.TaskTemplate{
			{Key: "a", ScoringKey: "1", Title: model.LocalizedText{"en": "A"}},
			{Key: "b", ScoringKey: "2"},
			{Key: "c", ScoringKey: "3"},
		},
	}))
	require.NoError(t, c.Add(&model.Scenario{
		ID:            "talk",
		Mode:          model.ModeExploratory,
		Title:         model.LocalizedText{"en": "Talk"},
		TaskTemplates: []model.TaskTemplate{{Key: "t1"}, {Key: "t2"}, {Key: "t3"}},
	}))
	require.NoError(t, c.Add(&model.Scenario{
		ID:            "retired",
		Mode:          model.ModeExploratory,
		Status:        model.ScenarioArchived,
		Title:         model.LocalizedText{"en": "Old"},
		TaskTemplates: []model.TaskTemplate{{Key: "t"}},
	}))

	st := memstore.New()
	clock := t0
	m := New(st, c, mode.NewRegistry(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	return m, st
}

func complete(t *testing.T, st *memstore.Store, taskID string) {
	t.Helper()
	ctx := context.Background()
	_, err := st.Tasks().SetTaskStatus(ctx, taskID, model.TaskPending, model.TaskActive, t0)
	require.NoError(t, err)
	ok, err := st.Tasks().SetTaskStatus(ctx, taskID, model.TaskActive, model.TaskCompleted, t0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStart(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	p, err := m.Start(ctx, "u1", "practice", mode.StartOptions{Language: "de-AT"})
	require.NoError(t, err)
	assert.Equal(t, model.ProgramActive, p.Status)
	assert.Equal(t, 3, p.TotalTaskCount)
	assert.Equal(t, 0, p.CurrentTaskIndex)
	assert.Equal(t, "de", Language(p))
	assert.False(t, p.StartedAt.IsZero())

	tasks, err := st.Tasks().ListTasks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, i, task.TaskIndex)
		assert.Equal(t, i, task.TemplateIndex)
		assert.Equal(t, model.TaskPending, task.Status)
		assert.Equal(t, model.TaskQuestion, task.Type)
	}
	assert.Equal(t, "A", tasks[0].Content.Title["en"])
}

func TestStartErrors(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "u1", "missing", mode.StartOptions{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = m.Start(ctx, "u1", "retired", mode.StartOptions{})
	assert.ErrorIs(t, err, apperr.ErrNotFound, "archived scenarios cannot start")

	_, err = m.Start(ctx, "", "practice", mode.StartOptions{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAdvanceWrapsAndFinalizes(t *testing.T) {
	m, st := newManager(t)
	fin := &fakeFinalizer{}
	m.SetFinalizer(fin)
	ctx := context.Background()

	p, err := m.Start(ctx, "u1", "talk", mode.StartOptions{})
	require.NoError(t, err)
	tasks, _ := st.Tasks().ListTasks(ctx, p.ID)

	_, err = m.Focus(ctx, "u1", p.ID, 2)
	require.NoError(t, err)
	complete(t, st, tasks[2].ID)

	p, err = m.Advance(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedTaskCount)
	assert.Equal(t, 0, p.CurrentTaskIndex, "pointer wraps to the first open task")

	complete(t, st, tasks[0].ID)
	p, err = m.Advance(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentTaskIndex)
	assert.Empty(t, fin.calls)

	complete(t, st, tasks[1].ID)
	p, err = m.Advance(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.CompletedTaskCount)
	assert.Equal(t, 1, p.CurrentTaskIndex, "unchanged when nothing is open")
	assert.Equal(t, []string{p.ID}, fin.calls)
}

func TestAbandon(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	p, err := m.Start(ctx, "u1", "talk", mode.StartOptions{})
	require.NoError(t, err)

	_, err = m.Abandon(ctx, "u2", p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "foreign programs are hidden")

	got, err := m.Abandon(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgramAbandoned, got.Status)
	assert.Nil(t, got.CompletedAt)

	_, err = m.Abandon(ctx, "u1", p.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = m.Advance(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = m.Focus(ctx, "u1", p.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestFocus(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	talk, err := m.Start(ctx, "u1", "talk", mode.StartOptions{})
	require.NoError(t, err)
	got, err := m.Focus(ctx, "u1", talk.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentTaskIndex)

	_, err = m.Focus(ctx, "u1", talk.ID, 3)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	tasks, _ := st.Tasks().ListTasks(ctx, talk.ID)
	complete(t, st, tasks[0].ID)
	_, err = m.Focus(ctx, "u1", talk.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "completed tasks cannot be focused")

	practice, err := m.Start(ctx, "u1", "practice", mode.StartOptions{})
	require.NoError(t, err)
	_, err = m.Focus(ctx, "u1", practice.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "sequential modes cannot jump")
	_, err = m.Focus(ctx, "u1", practice.ID, 0)
	assert.NoError(t, err)
}

func TestGetAndList(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	a, err := m.Start(ctx, "u1", "talk", mode.StartOptions{})
	require.NoError(t, err)
	b, err := m.Start(ctx, "u1", "practice", mode.StartOptions{})
	require.NoError(t, err)
	_, err = m.Start(ctx, "u2", "talk", mode.StartOptions{})
	require.NoError(t, err)

	_, err = m.Get(ctx, "u2", a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = m.Tasks(ctx, "u2", a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := m.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "most recent first")
}
