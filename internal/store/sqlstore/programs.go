package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

var programColumns = []string{
	"id", "scenario_id", "user_id", "mode", "status",
	"current_task_index", "completed_task_count", "total_task_count",
	"total_score", "domain_scores", "metadata",
	"started_at", "last_activity_at", "completed_at", "updated_at",
}

var taskColumns = []string{
	"id", "program_id", "task_index", "template_index", "type", "status",
	"content", "created_at", "updated_at", "completed_at",
}

type programRepo struct {
	s *Store
}

func (r *programRepo) CreateProgram(ctx context.Context, p *model.Program, tasks []*model.Task) error {
	return r.s.WithinTx(ctx, func(ctx context.Context) error {
		domains, err := encodeJSON(p.DomainScores)
		if err != nil {
			return err
		}
		meta, err := encodeJSON(p.Metadata)
		if err != nil {
			return err
		}
		ins := r.s.builder().Insert("programs").
			Columns(programColumns...).
			Values(
				p.ID, p.ScenarioID, p.UserID, string(p.Mode), string(p.Status),
				p.CurrentTaskIndex, p.CompletedTaskCount, p.TotalTaskCount,
				p.TotalScore, domains, meta,
				p.StartedAt, p.LastActivityAt, nullTime(p.CompletedAt), p.UpdatedAt,
			)
		if _, err := r.s.exec(ctx, ins); err != nil {
			return fmt.Errorf("insert program: %w", err)
		}

		for _, t := range tasks {
			content, err := encodeJSON(t.Content)
			if err != nil {
				return err
			}
			ins := r.s.builder().Insert("tasks").
				Columns(taskColumns...).
				Values(
					t.ID, p.ID, t.TaskIndex, t.TemplateIndex, string(t.Type), string(t.Status),
					content, t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt),
				)
			if _, err := r.s.exec(ctx, ins); err != nil {
				if sqlgraph.IsUniqueConstraintError(err) {
					return fmt.Errorf("insert task %d: %w: %v", t.TaskIndex, store.ErrConflict, err)
				}
				return fmt.Errorf("insert task %d: %w", t.TaskIndex, err)
			}
		}
		return nil
	})
}

func (r *programRepo) GetProgram(ctx context.Context, id string) (*model.Program, error) {
	return r.get(ctx, id, false)
}

func (r *programRepo) LockProgram(ctx context.Context, id string) (*model.Program, error) {
	return r.get(ctx, id, r.s.inTx(ctx) && r.s.dialect == dialect.Postgres)
}

func (r *programRepo) get(ctx context.Context, id string, forUpdate bool) (*model.Program, error) {
	b := r.s.builder()
	sel := b.Select(programColumns...).
		From(b.Table("programs")).
		Where(entsql.EQ("id", id))
	if forUpdate {
		sel.ForUpdate()
	}

	var out *model.Program
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		p, err := scanProgram(rows)
		out = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get program %s: %w", id, err)
	}
	if out == nil {
		return nil, apperr.NotFound("program", id)
	}
	return out, nil
}

func (r *programRepo) ListPrograms(ctx context.Context, userID string) ([]*model.Program, error) {
	b := r.s.builder()
	sel := b.Select(programColumns...).
		From(b.Table("programs")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy("id")

	var out []*model.Program
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		p, err := scanProgram(rows)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	slices.SortStableFunc(out, func(a, b *model.Program) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return out, nil
}

func (r *programRepo) UpdateProgram(ctx context.Context, p *model.Program) error {
	domains, err := encodeJSON(p.DomainScores)
	if err != nil {
		return err
	}
	meta, err := encodeJSON(p.Metadata)
	if err != nil {
		return err
	}
	upd := r.s.builder().Update("programs").
		Set("status", string(p.Status)).
		Set("current_task_index", p.CurrentTaskIndex).
		Set("completed_task_count", p.CompletedTaskCount).
		Set("total_score", p.TotalScore).
		Set("domain_scores", domains).
		Set("metadata", meta).
		Set("last_activity_at", p.LastActivityAt).
		Set("completed_at", nullTime(p.CompletedAt)).
		Set("updated_at", p.UpdatedAt).
		Where(entsql.And(
			entsql.EQ("id", p.ID),
			entsql.EQ("status", string(model.ProgramActive)),
		))

	n, err := r.s.exec(ctx, upd)
	if err != nil {
		return fmt.Errorf("update program %s: %w", p.ID, err)
	}
	if n == 0 {
		return r.rejectUpdate(ctx, p.ID, "update")
	}
	return nil
}

func (r *programRepo) SetProgramStatus(ctx context.Context, id string, from, to model.ProgramStatus, at time.Time) (bool, error) {
	upd := r.s.builder().Update("programs").
		Set("status", string(to)).
		Set("updated_at", at).
		Set("last_activity_at", at)
	if to == model.ProgramCompleted {
		upd.Set("completed_at", at)
	}
	upd.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(from)),
	))

	n, err := r.s.exec(ctx, upd)
	if err != nil {
		return false, fmt.Errorf("set program status %s: %w", id, err)
	}
	if n == 0 {
		if _, err := r.GetProgram(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// rejectUpdate explains why a guarded update touched no row.
func (r *programRepo) rejectUpdate(ctx context.Context, id, op string) error {
	cur, err := r.GetProgram(ctx, id)
	if err != nil {
		return err
	}
	return apperr.InvalidState("program", id, string(cur.Status), op)
}

func scanProgram(rows *entsql.Rows) (*model.Program, error) {
	var (
		p             model.Program
		mode, status  string
		domains, meta []byte
		completedAt   sql.NullTime
	)
	err := rows.Scan(
		&p.ID, &p.ScenarioID, &p.UserID, &mode, &status,
		&p.CurrentTaskIndex, &p.CompletedTaskCount, &p.TotalTaskCount,
		&p.TotalScore, &domains, &meta,
		&p.StartedAt, &p.LastActivityAt, &completedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan program: %w", err)
	}
	p.Mode = model.Mode(mode)
	p.Status = model.ProgramStatus(status)
	if err := decodeJSON(domains, &p.DomainScores); err != nil {
		return nil, fmt.Errorf("decode domain scores: %w", err)
	}
	if err := decodeJSON(meta, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	p.CompletedAt = timePtr(completedAt)
	normalizeProgramTimes(&p)
	return &p, nil
}

func normalizeProgramTimes(p *model.Program) {
	p.StartedAt = p.StartedAt.UTC()
	p.LastActivityAt = p.LastActivityAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
