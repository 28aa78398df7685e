// Package memstore is an in-process store.Backend that keeps every entity as
// an encoded JSON document. Reads decode a fresh copy, so callers never share
// memory with the store. Transactions serialize on one lock and restore a
// snapshot of the document maps on failure; plain reads take the lock only.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

type state struct {
	programs    map[string][]byte
	tasks       map[string][]byte
	taskOrder   map[string][]string // program id -> task ids by index
	evaluations map[string][]byte
	evalOrder   []string
	evalTargets map[string]string // program id + "/" + task id -> evaluation id
	llmEvents   []store.LLMRequestEvent
	seq         int64
}

func (s state) snapshot() state {
	out := s
	out.programs = maps.Clone(s.programs)
	out.tasks = maps.Clone(s.tasks)
	out.taskOrder = maps.Clone(s.taskOrder)
	out.evaluations = maps.Clone(s.evaluations)
	out.evalTargets = maps.Clone(s.evalTargets)
	return out
}

// Store is the in-memory backend.
type Store struct {
	mu        sync.Mutex
	st        state
	snapshots int // transactions started, for tests
	now       func() time.Time
}

var _ store.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		st: state{
			programs:    make(map[string][]byte),
			tasks:       make(map[string][]byte),
			taskOrder:   make(map[string][]string),
			evaluations: make(map[string][]byte),
			evalTargets: make(map[string]string),
		},
		now: time.Now,
	}
}

func (s *Store) Programs() store.ProgramRepo       { return &programRepo{s} }
func (s *Store) Tasks() store.TaskRepo             { return &taskRepo{s} }
func (s *Store) Evaluations() store.EvaluationRepo { return &evaluationRepo{s} }
func (s *Store) LLMEvents() store.LLMEventRepo     { return &llmEventRepo{s} }

// Close is a no-op.
func (s *Store) Close() error { return nil }

type txKey struct{ s *Store }

// WithinTx runs fn while holding the store lock. Every repository call made
// with the derived context joins the transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{s}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.st.snapshot()
	s.snapshots++
	defer func() {
		if v := recover(); v != nil {
			s.st = saved
			panic(v)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.st = saved
		return err
	}
	return nil
}

// run executes a single repository write as its own transaction unless ctx
// already carries one.
func (s *Store) run(ctx context.Context, fn func() error) error {
	return s.WithinTx(ctx, func(context.Context) error { return fn() })
}

// read executes a read-only operation under the lock without taking a
// snapshot. Inside a transaction it joins it.
func (s *Store) read(ctx context.Context, fn func() error) error {
	if ctx.Value(txKey{s}) != nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

func decode[T any](b []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &v, nil
}

type programRepo struct{ s *Store }

func (r *programRepo) CreateProgram(ctx context.Context, p *model.Program, tasks []*model.Task) error {
	return r.s.run(ctx, func() error {
		st := &r.s.st
		if _, ok := st.programs[p.ID]; ok {
			return fmt.Errorf("insert program %s: %w", p.ID, store.ErrConflict)
		}
		doc, err := encode(p)
		if err != nil {
			return err
		}
		st.programs[p.ID] = doc

		ordered := slices.Clone(tasks)
		slices.SortFunc(ordered, func(a, b *model.Task) int { return a.TaskIndex - b.TaskIndex })

		ids := make([]string, 0, len(ordered))
		for i, t := range ordered {
			if _, ok := st.tasks[t.ID]; ok || (i > 0 && ordered[i-1].TaskIndex == t.TaskIndex) {
				return fmt.Errorf("insert task %d: %w", t.TaskIndex, store.ErrConflict)
			}
			t.ProgramID = p.ID
			doc, err := encode(t)
			if err != nil {
				return err
			}
			st.tasks[t.ID] = doc
			ids = append(ids, t.ID)
		}
		st.taskOrder[p.ID] = ids
		return nil
	})
}

func (r *programRepo) GetProgram(ctx context.Context, id string) (*model.Program, error) {
	var out *model.Program
	err := r.s.read(ctx, func() error {
		p, err := r.s.program(id)
		out = p
		return err
	})
	return out, err
}

// LockProgram is GetProgram: the transaction already holds the store lock.
func (r *programRepo) LockProgram(ctx context.Context, id string) (*model.Program, error) {
	return r.GetProgram(ctx, id)
}

func (r *programRepo) ListPrograms(ctx context.Context, userID string) ([]*model.Program, error) {
	var out []*model.Program
	err := r.s.read(ctx, func() error {
		for _, doc := range r.s.st.programs {
			p, err := decode[model.Program](doc)
			if err != nil {
				return err
			}
			if p.UserID == userID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *programRepo) UpdateProgram(ctx context.Context, p *model.Program) error {
	return r.s.run(ctx, func() error {
		cur, err := r.s.program(p.ID)
		if err != nil {
			return err
		}
		if !cur.IsActive() {
			return apperr.InvalidState("program", p.ID, string(cur.Status), "update")
		}
		next := *cur
		next.Status = p.Status
		next.CurrentTaskIndex = p.CurrentTaskIndex
		next.CompletedTaskCount = p.CompletedTaskCount
		next.TotalScore = p.TotalScore
		next.DomainScores = p.DomainScores
		next.Metadata = p.Metadata
		next.LastActivityAt = p.LastActivityAt
		next.CompletedAt = p.CompletedAt
		next.UpdatedAt = p.UpdatedAt
		return r.s.putProgram(&next)
	})
}

func (r *programRepo) SetProgramStatus(ctx context.Context, id string, from, to model.ProgramStatus, at time.Time) (bool, error) {
	swapped := false
	err := r.s.run(ctx, func() error {
		cur, err := r.s.program(id)
		if err != nil {
			return err
		}
		if cur.Status != from {
			return nil
		}
		cur.Status = to
		cur.Touch(at)
		if to == model.ProgramCompleted {
			done := at
			cur.CompletedAt = &done
		}
		swapped = true
		return r.s.putProgram(cur)
	})
	return swapped, err
}

func (s *Store) program(id string) (*model.Program, error) {
	doc, ok := s.st.programs[id]
	if !ok {
		return nil, apperr.NotFound("program", id)
	}
	return decode[model.Program](doc)
}

func (s *Store) putProgram(p *model.Program) error {
	doc, err := encode(p)
	if err != nil {
		return err
	}
	s.st.programs[p.ID] = doc
	return nil
}

type taskRepo struct{ s *Store }

func (r *taskRepo) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var out *model.Task
	err := r.s.read(ctx, func() error {
		t, err := r.s.task(id)
		out = t
		return err
	})
	return out, err
}

func (r *taskRepo) ListTasks(ctx context.Context, programID string) ([]*model.Task, error) {
	var out []*model.Task
	err := r.s.read(ctx, func() error {
		for _, id := range r.s.st.taskOrder[programID] {
			t, err := r.s.task(id)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

func (r *taskRepo) AppendInteraction(ctx context.Context, taskID string, in *model.Interaction) error {
	return r.s.run(ctx, func() error {
		t, err := r.s.task(taskID)
		if err != nil {
			return err
		}
		p, err := r.s.program(t.ProgramID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return apperr.InvalidState("program", p.ID, string(p.Status), "record interaction on")
		}
		if t.Status == model.TaskCompleted {
			return apperr.InvalidState("task", t.ID, string(t.Status), "record interaction on")
		}

		r.s.st.seq++
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.TaskID = taskID
		in.Sequence = r.s.st.seq
		in.Timestamp = in.Timestamp.UTC()

		t.Interactions = append(t.Interactions, *in)
		t.UpdatedAt = model.Later(t.UpdatedAt, in.Timestamp)
		if err := r.s.putTask(t); err != nil {
			return err
		}
		p.Touch(in.Timestamp)
		return r.s.putProgram(p)
	})
}

func (r *taskRepo) SetTaskStatus(ctx context.Context, id string, from, to model.TaskStatus, at time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, apperr.InvalidState("task", id, string(from), "move to "+string(to)+" from")
	}
	swapped := false
	err := r.s.run(ctx, func() error {
		t, err := r.s.task(id)
		if err != nil {
			return err
		}
		if t.Status != from {
			return nil
		}
		t.Status = to
		t.UpdatedAt = at
		if to == model.TaskCompleted {
			done := at
			t.CompletedAt = &done
		}
		swapped = true
		return r.s.putTask(t)
	})
	return swapped, err
}

func (s *Store) task(id string) (*model.Task, error) {
	doc, ok := s.st.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task", id)
	}
	return decode[model.Task](doc)
}

func (s *Store) putTask(t *model.Task) error {
	doc, err := encode(t)
	if err != nil {
		return err
	}
	s.st.tasks[t.ID] = doc
	return nil
}

type evaluationRepo struct{ s *Store }

func (r *evaluationRepo) CreateEvaluation(ctx context.Context, e *model.Evaluation) error {
	return r.s.run(ctx, func() error {
		if _, ok := r.s.st.programs[e.ProgramID]; !ok {
			return apperr.NotFound("program", e.ProgramID)
		}
		key := e.ProgramID + "/" + e.TaskID
		if _, ok := r.s.st.evalTargets[key]; ok {
			return fmt.Errorf("insert evaluation for %s: %w", key, store.ErrConflict)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		doc, err := encode(e)
		if err != nil {
			return err
		}
		r.s.st.evaluations[e.ID] = doc
		r.s.st.evalTargets[key] = e.ID
		r.s.st.evalOrder = append(r.s.st.evalOrder, e.ID)
		return nil
	})
}

func (r *evaluationRepo) TaskEvaluation(ctx context.Context, taskID string) (*model.Evaluation, error) {
	var out *model.Evaluation
	err := r.s.read(ctx, func() error {
		for _, id := range r.s.st.evalOrder {
			e, err := decode[model.Evaluation](r.s.st.evaluations[id])
			if err != nil {
				return err
			}
			if e.TaskID == taskID && e.EvaluationType == model.EvaluationFormative {
				out = e
			}
		}
		return nil
	})
	return out, err
}

func (r *evaluationRepo) ProgramEvaluation(ctx context.Context, programID string) (*model.Evaluation, error) {
	var out *model.Evaluation
	err := r.s.read(ctx, func() error {
		id, ok := r.s.st.evalTargets[programID+"/"]
		if !ok {
			return nil
		}
		e, err := decode[model.Evaluation](r.s.st.evaluations[id])
		out = e
		return err
	})
	return out, err
}

func (r *evaluationRepo) ListEvaluations(ctx context.Context, programID string) ([]*model.Evaluation, error) {
	var out []*model.Evaluation
	err := r.s.read(ctx, func() error {
		for _, id := range r.s.st.evalOrder {
			e, err := decode[model.Evaluation](r.s.st.evaluations[id])
			if err != nil {
				return err
			}
			if e.ProgramID == programID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

type llmEventRepo struct{ s *Store }

func (r *llmEventRepo) AppendLLMRequest(ctx context.Context, data store.LLMRequestEventData) error {
	return r.s.run(ctx, func() error {
		r.s.st.seq++
		r.s.st.llmEvents = append(r.s.st.llmEvents, store.LLMRequestEvent{
			ID:                  int64(len(r.s.st.llmEvents) + 1),
			Sequence:            r.s.st.seq,
			Timestamp:           r.s.now().UTC(),
			LLMRequestEventData: data,
		})
		return nil
	})
}

func (r *llmEventRepo) QueryLLMEvents(ctx context.Context, opts store.QueryOpts) ([]store.LLMRequestEvent, error) {
	var out []store.LLMRequestEvent
	err := r.s.read(ctx, func() error {
		events := r.s.st.llmEvents
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			if opts.Purpose != "" && e.Purpose != opts.Purpose {
				continue
			}
			if !opts.From.IsZero() && e.Timestamp.Before(opts.From) {
				continue
			}
			if !opts.To.IsZero() && e.Timestamp.After(opts.To) {
				continue
			}
			out = append(out, e)
			if opts.Limit > 0 && len(out) == opts.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *llmEventRepo) GetLLMEvent(ctx context.Context, id int64) (*store.LLMRequestEvent, error) {
	var out *store.LLMRequestEvent
	err := r.s.read(ctx, func() error {
		if id < 1 || int(id) > len(r.s.st.llmEvents) {
			return nil
		}
		e := r.s.st.llmEvents[id-1]
		out = &e
		return nil
	})
	return out, err
}

func (r *llmEventRepo) LLMUsageByPurpose(ctx context.Context) ([]store.LLMUsage, error) {
	return r.usage(ctx, func(e store.LLMRequestEvent) string { return e.Purpose })
}

func (r *llmEventRepo) LLMUsageByModel(ctx context.Context) ([]store.LLMUsage, error) {
	return r.usage(ctx, func(e store.LLMRequestEvent) string { return e.Model })
}

func (r *llmEventRepo) usage(ctx context.Context, key func(store.LLMRequestEvent) string) ([]store.LLMUsage, error) {
	groups := make(map[string]*store.LLMUsage)
	latency := make(map[string]int64)
	err := r.s.read(ctx, func() error {
		for _, e := range r.s.st.llmEvents {
			k := key(e)
			u, ok := groups[k]
			if !ok {
				u = &store.LLMUsage{Key: k}
				groups[k] = u
			}
			u.Calls++
			u.InputTokens += e.InputTokens
			u.OutputTokens += e.OutputTokens
			latency[k] += e.LatencyMs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.LLMUsage, 0, len(groups))
	for k, u := range groups {
		u.AvgLatencyMs = latency[k] / int64(u.Calls)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
