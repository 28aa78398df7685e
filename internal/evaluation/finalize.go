package evaluation

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

// FinalizeProgram stores the program evaluation and completes the program.
// It is idempotent: a completed program returns its existing evaluation.
func (e *Engine) FinalizeProgram(ctx context.Context, programID string) (*model.Evaluation, error) {
	return e.shared(ctx, "program/"+programID, func() (*model.Evaluation, error) {
		var out *model.Evaluation
		err := e.backend.WithinTx(ctx, func(ctx context.Context) error {
			p, err := e.backend.Programs().LockProgram(ctx, programID)
			if err != nil {
				return err
			}
			switch p.Status {
			case model.ProgramCompleted:
				out, err = e.existingProgramEvaluation(ctx, programID)
				return err
			case model.ProgramAbandoned:
				return apperr.InvalidState("program", p.ID, string(p.Status), "finalize")
			}
			out, err = e.FinalizeLocked(ctx, p)
			return err
		})
		return out, err
	})
}

// FinalizeLocked finalizes p inside the caller's transaction, which must
// hold the program lock. Every task must be completed.
func (e *Engine) FinalizeLocked(ctx context.Context, p *model.Program) (*model.Evaluation, error) {
	tasks, err := e.backend.Tasks().ListTasks(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.Status != model.TaskCompleted {
			err := apperr.InvalidState("program", p.ID, string(p.Status), "finalize with open tasks")
			err.Metadata["open_task"] = t.ID
			return nil, err
		}
	}
	evals, err := e.backend.Evaluations().ListEvaluations(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	strategy, err := e.lifecycle.StrategyFor(ctx, p)
	if err != nil {
		return nil, err
	}

	agg := Summarize(strategy, taskEvaluations(evals))
	agg.TaskCount = len(tasks)
	agg.TimeTakenSeconds = p.LastActivityAt.Sub(p.StartedAt).Seconds()

	now := e.now().UTC()
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	final := strategy.OnProgramComplete(p, agg)
	maps.Copy(p.Metadata, final)

	eval := &model.Evaluation{
		UserID:           p.UserID,
		ProgramID:        p.ID,
		Mode:             p.Mode,
		EvaluationType:   model.EvaluationSummative,
		Score:            agg.Score,
		MaxScore:         agg.MaxScore,
		DomainScores:     agg.DomainScores,
		TimeTakenSeconds: agg.TimeTakenSeconds,
		Metadata: model.EvaluationMetadata{
			TargetType:   model.TargetProgram,
			Performance:  agg.Performance,
			KSA:          agg.KSA,
			AnswerPolicy: string(e.policy),
			Extra:        final,
		},
		CreatedAt: now,
	}
	if err := e.backend.Evaluations().CreateEvaluation(ctx, eval); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return e.existingProgramEvaluation(ctx, p.ID)
		}
		return nil, fmt.Errorf("store evaluation of program %s: %w", p.ID, err)
	}

	p.CompletedTaskCount = len(tasks)
	p.TotalScore = agg.Score
	p.DomainScores = agg.DomainScores
	p.Touch(now)
	if err := e.backend.Programs().UpdateProgram(ctx, p); err != nil {
		return nil, err
	}
	ok, err := e.backend.Programs().SetProgramStatus(ctx, p.ID, model.ProgramActive, model.ProgramCompleted, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState("program", p.ID, "changed", "complete")
	}

	e.logger.Info("program finalized",
		"program_id", p.ID, "score", agg.Score, "max_score", agg.MaxScore,
		"percentage", agg.Percentage, "performance", agg.Performance)
	return eval, nil
}

func (e *Engine) existingProgramEvaluation(ctx context.Context, programID string) (*model.Evaluation, error) {
	eval, err := e.backend.Evaluations().ProgramEvaluation(ctx, programID)
	if err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, apperr.NotFound("evaluation of program", programID)
	}
	return eval, nil
}

func taskEvaluations(evals []*model.Evaluation) []*model.Evaluation {
	out := make([]*model.Evaluation, 0, len(evals))
	for _, ev := range evals {
		if ev.Metadata.TargetType == model.TargetTask {
			out = append(out, ev)
		}
	}
	return out
}

// Summarize rolls task evaluations up into a program aggregate: the overall
// percentage, the mean of the strategy-weighted domain scores, and the KSA
// sub-scores when the scenario declares competencies.
func Summarize(strategy mode.Strategy, evals []*model.Evaluation) mode.Aggregate {
	var agg mode.Aggregate
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, ev := range evals {
		agg.Score += ev.Score
		agg.MaxScore += ev.MaxScore
		for d, raw := range ev.DomainScores {
			sums[d] += strategy.WeightDomain(d, raw)
			counts[d]++
		}
	}
	if agg.MaxScore > 0 {
		agg.Percentage = agg.Score / agg.MaxScore * 100
	}
	agg.DomainScores = make(map[string]float64, len(sums))
	for d, s := range sums {
		agg.DomainScores[d] = s / float64(counts[d])
	}
	agg.KSA = ksa(strategy.Scenario(), evals)
	agg.Performance = PerformanceFor(agg.Percentage)
	return agg
}

func ksa(sc *model.Scenario, evals []*model.Evaluation) map[model.CompetencyKind]float64 {
	kinds := sc.ModeData.Competencies
	if len(kinds) == 0 {
		return nil
	}
	tallies := make(map[model.CompetencyKind]model.Tally)
	for _, ev := range evals {
		for code, tally := range ev.Metadata.Competencies {
			if kind, ok := kinds[code]; ok {
				tallies[kind] = tallies[kind].Add(tally)
			}
		}
	}
	if len(tallies) == 0 {
		return nil
	}
	out := make(map[model.CompetencyKind]float64, len(tallies))
	for kind, tally := range tallies {
		out[kind] = tally.Ratio() * 100
	}
	return out
}

// PerformanceFor buckets a percentage.
func PerformanceFor(pct float64) model.Performance {
	switch {
	case pct >= 90:
		return model.PerformanceExcellent
	case pct >= 75:
		return model.PerformanceGood
	case pct >= 60:
		return model.PerformanceSatisfactory
	}
	return model.PerformanceNeedsImprovement
}
