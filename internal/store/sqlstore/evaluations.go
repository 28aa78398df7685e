package sqlstore

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/google/uuid"

	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

var evaluationColumns = []string{
	"id", "user_id", "program_id", "task_id", "mode", "evaluation_type",
	"score", "max_score", "domain_scores", "feedback", "time_taken_seconds",
	"metadata", "created_at",
}

type evaluationRepo struct {
	s *Store
}

func (r *evaluationRepo) CreateEvaluation(ctx context.Context, e *model.Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	domains, err := encodeJSON(e.DomainScores)
	if err != nil {
		return err
	}
	feedback, err := encodeJSON(e.Feedback)
	if err != nil {
		return err
	}
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return err
	}
	e.CreatedAt = e.CreatedAt.UTC()

	ins := r.s.builder().Insert("evaluations").
		Columns(evaluationColumns...).
		Values(
			e.ID, e.UserID, e.ProgramID, e.TaskID, string(e.Mode), string(e.EvaluationType),
			e.Score, e.MaxScore, domains, feedback, e.TimeTakenSeconds,
			meta, e.CreatedAt,
		)
	if _, err := r.s.exec(ctx, ins); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return fmt.Errorf("insert evaluation for %s/%s: %w", e.ProgramID, e.TaskID, store.ErrConflict)
		}
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (r *evaluationRepo) TaskEvaluation(ctx context.Context, taskID string) (*model.Evaluation, error) {
	evals, err := r.list(ctx, entsql.And(
		entsql.EQ("task_id", taskID),
		entsql.EQ("evaluation_type", string(model.EvaluationFormative)),
	))
	if err != nil || len(evals) == 0 {
		return nil, err
	}
	return evals[len(evals)-1], nil
}

func (r *evaluationRepo) ProgramEvaluation(ctx context.Context, programID string) (*model.Evaluation, error) {
	evals, err := r.list(ctx, entsql.And(
		entsql.EQ("program_id", programID),
		entsql.EQ("task_id", ""),
	))
	if err != nil || len(evals) == 0 {
		return nil, err
	}
	return evals[0], nil
}

func (r *evaluationRepo) ListEvaluations(ctx context.Context, programID string) ([]*model.Evaluation, error) {
	return r.list(ctx, entsql.EQ("program_id", programID))
}

func (r *evaluationRepo) list(ctx context.Context, pred *entsql.Predicate) ([]*model.Evaluation, error) {
	b := r.s.builder()
	sel := b.Select(evaluationColumns...).
		From(b.Table("evaluations")).
		Where(pred).
		OrderBy("created_at", "id")

	var out []*model.Evaluation
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		var (
			e                       model.Evaluation
			mode, evalType          string
			domains, feedback, meta []byte
		)
		err := rows.Scan(
			&e.ID, &e.UserID, &e.ProgramID, &e.TaskID, &mode, &evalType,
			&e.Score, &e.MaxScore, &domains, &feedback, &e.TimeTakenSeconds,
			&meta, &e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan evaluation: %w", err)
		}
		e.Mode = model.Mode(mode)
		e.EvaluationType = model.EvaluationType(evalType)
		if err := decodeJSON(domains, &e.DomainScores); err != nil {
			return fmt.Errorf("decode domain scores: %w", err)
		}
		if err := decodeJSON(feedback, &e.Feedback); err != nil {
			return fmt.Errorf("decode feedback: %w", err)
		}
		if err := decodeJSON(meta, &e.Metadata); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return out, nil
}
