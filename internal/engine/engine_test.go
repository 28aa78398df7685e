package engine

import (
	"context"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/abhisek/pathway/internal/analysis"
	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/attempt"
	"github.com/abhisek/pathway/internal/catalog"
	"github.com/abhisek/pathway/internal/config"
	"github.com/abhisek/pathway/internal/llm"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
	"github.com/abhisek/pathway/internal/store/memstore"
	"github.com/abhisek/pathway/scenarios"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.LoadFS(context.Background(), scenarios.FS))
	return New(memstore.New(), cat, opts...)
}

func answer(q, a string) attempt.Submission {
	return attempt.Submission{EventType: model.EventAnswer, QuestionID: q, Answer: a}
}

func message(s string) attempt.Submission {
	return attempt.Submission{EventType: model.EventMessage, Content: s}
}

func TestAssessmentRunToCompletion(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	p, err := e.Start(ctx, "ana", "logic-check", mode.StartOptions{})
	require.NoError(t, err)
	r, err := e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)
	require.Len(t, r.Tasks, 1)
	task := r.Tasks[0]

	res, err := e.Submit(ctx, "ana", task.ID, answer("q1", "B"))
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.False(t, res.Complete)

	res, err = e.Submit(ctx, "ana", task.ID, answer("q2", "Y"))
	require.NoError(t, err)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, 2.0, res.Evaluation.Score)

	r, err = e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgramCompleted, r.Program.Status)
	require.NotNil(t, r.Summary)
	assert.Equal(t, model.PerformanceExcellent, r.Summary.Metadata.Performance)
	assert.Equal(t, true, r.Program.Metadata[mode.MetaPassed])
	assert.Contains(t, r.Evaluations, task.ID)
	assert.Equal(t, "Logic check", r.Scenario.Title.Get("en"))

	again, err := e.Finalize(ctx, "ana", p.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Summary.ID, again.ID)
}

func TestOwnershipIsEnforced(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	p, err := e.Start(ctx, "ana", "fractions-practice", mode.StartOptions{})
	require.NoError(t, err)
	r, err := e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)

	_, err = e.Status(ctx, "ben", p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.Submit(ctx, "ben", r.Tasks[0].ID, answer("eq-1", "B"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.Evaluate(ctx, "ben", r.Tasks[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.Finalize(ctx, "ben", p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.Abandon(ctx, "ben", p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := e.Programs(ctx, "ben")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManualEvaluation(t *testing.T) {
	e := newEngine(t, WithAutoEvaluate(false))
	ctx := context.Background()

	p, err := e.Start(ctx, "ana", "fractions-practice", mode.StartOptions{Language: "de"})
	require.NoError(t, err)
	r, err := e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)
	first := r.Tasks[0]

	_, err = e.Submit(ctx, "ana", r.Tasks[1].ID, answer("add-1", "3/4"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "structured tasks run in order")

	_, err = e.Submit(ctx, "ana", first.ID, answer("eq-1", "B"))
	require.NoError(t, err)
	res, err := e.Submit(ctx, "ana", first.ID, answer("eq-2", "1/2"))
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Nil(t, res.Evaluation)

	ev, err := e.Evaluate(ctx, "ana", first.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ev.Percentage())

	p, err = e.Lifecycle().Get(ctx, "ana", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentTaskIndex)
	assert.Equal(t, "de", p.Metadata["language"])
}

func TestExploratoryWithAnalysis(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(map[string]any{
		"quality": 0.75, "summary": "Clear reasons.", "strengths": []string{"examples"}, "improvements": []string{"counterpoints"},
	}))
	e := newEngine(t, WithAnalyzer(analysis.New(mock, analysis.DefaultConfig())))
	ctx := context.Background()

	p, err := e.Start(ctx, "ana", "ethics-dialogue", mode.StartOptions{})
	require.NoError(t, err)
	r, err := e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)

	second := r.Tasks[1]
	_, err = e.Focus(ctx, "ana", p.ID, 1)
	require.NoError(t, err)

	var res *attempt.Result
	for _, m := range []string{"Whoever benefits most.", "Or everyone equally."} {
		res, err = e.Submit(ctx, "ana", second.ID, message(m))
		require.NoError(t, err)
	}
	require.NotNil(t, res.Evaluation)
	require.NotNil(t, res.Evaluation.Feedback)
	assert.Equal(t, "Clear reasons.", res.Evaluation.Feedback.Summary)
	// two of four turns for full engagement, blended with quality 75
	assert.InDelta(t, 62.5, res.Evaluation.Score, 1e-9)

	r, err = e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgramActive, r.Program.Status)
	assert.Equal(t, 0, r.Program.CurrentTaskIndex, "advance wraps to the open task")
}

func TestSpansAreRecorded(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e := newEngine(t, WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	p, err := e.Start(ctx, "ana", "logic-check", mode.StartOptions{})
	require.NoError(t, err)
	_, err = e.Abandon(ctx, "ana", p.ID)
	require.NoError(t, err)
	_, err = e.Abandon(ctx, "ana", p.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	spans := sr.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"pathway.Start", "pathway.Abandon", "pathway.Abandon"}, names)
	assert.Equal(t, otelcodes.Unset, spans[1].Status().Code)
	assert.Equal(t, otelcodes.Error, spans[2].Status().Code)
}

func TestOpenFromConfig(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"PATHWAY_DB_DRIVER":    "memory",
		"PATHWAY_LLM_PROVIDER": "mock",
	})
	require.NoError(t, err)

	ctx := context.Background()
	e, err := Open(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer e.Close(ctx)

	list, err := e.Scenarios().ListScenarios(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, sc := range list {
		ids = append(ids, sc.ID)
	}
	assert.True(t, slices.Contains(ids, "ethics-dialogue"))

	p, err := e.Start(ctx, "ana", "ethics-dialogue", mode.StartOptions{})
	require.NoError(t, err)
	r, err := e.Status(ctx, "ana", p.ID)
	require.NoError(t, err)

	var res *attempt.Result
	for _, m := range []string{"a", "b", "c"} {
		res, err = e.Submit(ctx, "ana", r.Tasks[0].ID, message(m))
		require.NoError(t, err)
	}
	require.NotNil(t, res.Evaluation)
	require.NotNil(t, res.Evaluation.Feedback)

	events, err := e.LLMEvents().QueryLLMEvents(ctx, store.QueryOpts{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
