// Package engine wires the lifecycle manager, attempt recorder and
// evaluation engine over one backend and exposes them as a single API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/pathway/internal/analysis"
	"github.com/abhisek/pathway/internal/attempt"
	"github.com/abhisek/pathway/internal/backend"
	"github.com/abhisek/pathway/internal/catalog"
	"github.com/abhisek/pathway/internal/config"
	"github.com/abhisek/pathway/internal/evaluation"
	"github.com/abhisek/pathway/internal/lifecycle"
	"github.com/abhisek/pathway/internal/llm"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/retry"
	"github.com/abhisek/pathway/internal/store"
	"github.com/abhisek/pathway/internal/tracing"
	"github.com/abhisek/pathway/scenarios"
)

// Engine is the entry point for callers.
type Engine struct {
	backend   store.Backend
	scenarios store.ScenarioRepo
	lifecycle *lifecycle.Manager
	recorder  *attempt.Recorder
	evaluator *evaluation.Engine
	tracer    trace.Tracer
	logger    *slog.Logger
	closers   []func(context.Context) error
}

type settings struct {
	logger          *slog.Logger
	now             func() time.Time
	policy          mode.AnswerPolicy
	retry           retry.Policy
	analysisTimeout time.Duration
	analyzer        evaluation.Analyzer
	autoEvaluate    bool
	tracer          trace.Tracer
}

// Option configures an Engine.
type Option func(*settings)

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func WithAnswerPolicy(p mode.AnswerPolicy) Option {
	return func(s *settings) { s.policy = p }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *settings) { s.retry = p }
}

func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *settings) { s.analysisTimeout = d }
}

// WithAnalyzer enables qualitative feedback. A nil analyzer disables it.
func WithAnalyzer(a evaluation.Analyzer) Option {
	return func(s *settings) { s.analyzer = a }
}

// WithAutoEvaluate controls whether tasks are evaluated as soon as an
// interaction completes them. It is on by default.
func WithAutoEvaluate(on bool) Option {
	return func(s *settings) { s.autoEvaluate = on }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// New wires an Engine over backend and scenarios.
func New(b store.Backend, sc store.ScenarioRepo, opts ...Option) *Engine {
	s := settings{
		logger:          slog.Default(),
		now:             time.Now,
		policy:          mode.DefaultAnswerPolicy,
		retry:           retry.DefaultPolicy(),
		analysisTimeout: 30 * time.Second,
		autoEvaluate:    true,
		tracer:          tracing.Tracer(),
	}
	for _, o := range opts {
		o(&s)
	}

	lc := lifecycle.New(b, sc, mode.NewRegistry(),
		lifecycle.WithLogger(s.logger), lifecycle.WithClock(s.now))

	evalOpts := []evaluation.Option{
		evaluation.WithLogger(s.logger),
		evaluation.WithClock(s.now),
		evaluation.WithAnswerPolicy(s.policy),
		evaluation.WithRetryPolicy(s.retry),
		evaluation.WithAnalysisTimeout(s.analysisTimeout),
	}
	if s.analyzer != nil {
		evalOpts = append(evalOpts, evaluation.WithAnalyzer(s.analyzer))
	}
	ev := evaluation.New(b, lc, evalOpts...)

	recOpts := []attempt.Option{attempt.WithLogger(s.logger), attempt.WithClock(s.now)}
	if s.autoEvaluate {
		recOpts = append(recOpts, attempt.WithEvaluator(ev))
	}

	return &Engine{
		backend:   b,
		scenarios: sc,
		lifecycle: lc,
		recorder:  attempt.New(b, lc, recOpts...),
		evaluator: ev,
		tracer:    s.tracer,
		logger:    s.logger,
	}
}

// Open builds an Engine from process configuration: tracing, the backend,
// the bundled and configured scenario catalog and the analysis provider.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	shutdown, err := tracing.Setup(ctx, cfg.OTELEndpoint)
	if err != nil {
		return nil, err
	}

	b, err := backend.FromConfig(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open backend: %w", err)
	}
	cleanup := func() {
		b.Close()
		_ = shutdown(ctx)
	}

	cat := catalog.New(catalog.WithLogger(logger))
	if err := cat.LoadFS(ctx, scenarios.FS); err != nil {
		cleanup()
		return nil, fmt.Errorf("load bundled scenarios: %w", err)
	}
	if cfg.CatalogDir != "" {
		if err := cat.LoadDir(ctx, cfg.CatalogDir); err != nil {
			cleanup()
			return nil, fmt.Errorf("load scenarios from %s: %w", cfg.CatalogDir, err)
		}
	}

	llmCfg := cfg.LLM
	llmCfg.Discover()
	provider, err := llm.NewProvider(ctx, llmCfg, b.LLMEvents(), logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	opts := []Option{
		WithLogger(logger),
		WithAnswerPolicy(cfg.AnswerPolicy),
		WithRetryPolicy(cfg.Retry),
		WithAnalysisTimeout(cfg.AnalysisTimeout),
		WithAutoEvaluate(cfg.AutoEvaluate),
	}
	if provider != nil {
		logger.Debug("analysis enabled", "provider", provider.Name(), "model", provider.ModelID())
		opts = append(opts, WithAnalyzer(analysis.New(provider, analysis.DefaultConfig())))
	}

	e := New(b, cat, opts...)
	e.closers = append(e.closers, func(context.Context) error { return b.Close() }, shutdown)
	return e, nil
}

// Close releases the backend and flushes traces.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c(ctx))
	}
	return errors.Join(errs...)
}

func (e *Engine) Scenarios() store.ScenarioRepo { return e.scenarios }
func (e *Engine) LLMEvents() store.LLMEventRepo { return e.backend.LLMEvents() }
func (e *Engine) Lifecycle() *lifecycle.Manager { return e.lifecycle }
func (e *Engine) Evaluator() *evaluation.Engine { return e.evaluator }

// Start instantiates a scenario for the user.
func (e *Engine) Start(ctx context.Context, userID, scenarioID string, opts mode.StartOptions) (p *model.Program, err error) {
	ctx, span := e.span(ctx, "Start", attribute.String("user.id", userID), attribute.String("scenario.id", scenarioID))
	defer func() { end(span, err) }()
	return e.lifecycle.Start(ctx, userID, scenarioID, opts)
}

// Submit records one interaction.
func (e *Engine) Submit(ctx context.Context, userID, taskID string, sub attempt.Submission) (res *attempt.Result, err error) {
	ctx, span := e.span(ctx, "Submit",
		attribute.String("user.id", userID), attribute.String("task.id", taskID),
		attribute.String("event.type", string(sub.EventType)))
	defer func() { end(span, err) }()
	return e.recorder.Record(ctx, userID, taskID, sub)
}

// Evaluate scores a completed task owned by the user.
func (e *Engine) Evaluate(ctx context.Context, userID, taskID string) (ev *model.Evaluation, err error) {
	ctx, span := e.span(ctx, "Evaluate", attribute.String("user.id", userID), attribute.String("task.id", taskID))
	defer func() { end(span, err) }()

	t, err := e.backend.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := e.lifecycle.Get(ctx, userID, t.ProgramID); err != nil {
		return nil, err
	}
	return e.evaluator.EvaluateTask(ctx, taskID)
}

// Finalize completes a program whose tasks are all completed.
func (e *Engine) Finalize(ctx context.Context, userID, programID string) (ev *model.Evaluation, err error) {
	ctx, span := e.span(ctx, "Finalize", attribute.String("user.id", userID), attribute.String("program.id", programID))
	defer func() { end(span, err) }()

	if _, err := e.lifecycle.Get(ctx, userID, programID); err != nil {
		return nil, err
	}
	return e.evaluator.FinalizeProgram(ctx, programID)
}

func (e *Engine) Abandon(ctx context.Context, userID, programID string) (p *model.Program, err error) {
	ctx, span := e.span(ctx, "Abandon", attribute.String("user.id", userID), attribute.String("program.id", programID))
	defer func() { end(span, err) }()
	return e.lifecycle.Abandon(ctx, userID, programID)
}

func (e *Engine) Focus(ctx context.Context, userID, programID string, taskIndex int) (p *model.Program, err error) {
	ctx, span := e.span(ctx, "Focus",
		attribute.String("user.id", userID), attribute.String("program.id", programID),
		attribute.Int("task.index", taskIndex))
	defer func() { end(span, err) }()
	return e.lifecycle.Focus(ctx, userID, programID, taskIndex)
}

// Programs lists the user's programs, newest first.
func (e *Engine) Programs(ctx context.Context, userID string) ([]*model.Program, error) {
	return e.lifecycle.List(ctx, userID)
}

// Report is a program with everything needed to display its progress.
type Report struct {
	Program     *model.Program
	Scenario    *model.Scenario
	Tasks       []*model.Task
	Evaluations map[string]*model.Evaluation // by task id
	Summary     *model.Evaluation
}

// Status assembles the report for one of the user's programs.
func (e *Engine) Status(ctx context.Context, userID, programID string) (*Report, error) {
	p, err := e.lifecycle.Get(ctx, userID, programID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.lifecycle.Tasks(ctx, userID, programID)
	if err != nil {
		return nil, err
	}
	evals, err := e.backend.Evaluations().ListEvaluations(ctx, programID)
	if err != nil {
		return nil, err
	}
	sc, err := e.scenarios.GetScenario(ctx, p.ScenarioID)
	if err != nil {
		// The scenario may have left the catalog since the program started.
		e.logger.Warn("scenario unavailable for report", "scenario_id", p.ScenarioID, "error", err)
	}

	r := &Report{Program: p, Scenario: sc, Tasks: tasks, Evaluations: make(map[string]*model.Evaluation)}
	for _, ev := range evals {
		if ev.Metadata.TargetType == model.TargetProgram {
			r.Summary = ev
			continue
		}
		r.Evaluations[ev.TaskID] = ev
	}
	return r, nil
}

func (e *Engine) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "pathway."+name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
