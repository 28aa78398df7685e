package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

var interactionColumns = []string{
	"id", "task_id", "sequence", "event_type", "payload", "timestamp",
}

type taskRepo struct {
	s *Store
}

func (r *taskRepo) GetTask(ctx context.Context, id string) (*model.Task, error) {
	tasks, err := r.load(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if len(tasks) == 0 {
		return nil, apperr.NotFound("task", id)
	}
	return tasks[0], nil
}

func (r *taskRepo) ListTasks(ctx context.Context, programID string) ([]*model.Task, error) {
	tasks, err := r.load(ctx, entsql.EQ("program_id", programID))
	if err != nil {
		return nil, fmt.Errorf("list tasks of %s: %w", programID, err)
	}
	return tasks, nil
}

// load selects tasks matching pred, ordered by index, and attaches each
// task's interactions in sequence order.
func (r *taskRepo) load(ctx context.Context, pred *entsql.Predicate) ([]*model.Task, error) {
	b := r.s.builder()
	sel := b.Select(taskColumns...).
		From(b.Table("tasks")).
		Where(pred).
		OrderBy("task_index")

	var tasks []*model.Task
	byID := make(map[string]*model.Task)
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		t, err := scanTask(rows)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
		return nil
	})
	if err != nil || len(tasks) == 0 {
		return tasks, err
	}

	ids := make([]any, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	isel := b.Select(interactionColumns...).
		From(b.Table("interactions")).
		Where(entsql.In("task_id", ids...)).
		OrderBy("sequence")
	err = r.s.query(ctx, isel, func(rows *entsql.Rows) error {
		in, err := scanInteraction(rows)
		if err != nil {
			return err
		}
		if t, ok := byID[in.TaskID]; ok {
			t.Interactions = append(t.Interactions, *in)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepo) AppendInteraction(ctx context.Context, taskID string, in *model.Interaction) error {
	return r.s.WithinTx(ctx, func(ctx context.Context) error {
		task, err := r.header(ctx, taskID)
		if err != nil {
			return err
		}
		programs := &programRepo{r.s}
		p, err := programs.LockProgram(ctx, task.ProgramID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return apperr.InvalidState("program", p.ID, string(p.Status), "record interaction on")
		}
		if task.Status == model.TaskCompleted {
			return apperr.InvalidState("task", task.ID, string(task.Status), "record interaction on")
		}

		seq, err := r.s.nextSequence(ctx)
		if err != nil {
			return err
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.TaskID = taskID
		in.Sequence = seq
		in.Timestamp = in.Timestamp.UTC()

		payload, err := encodeJSON(in.Payload)
		if err != nil {
			return err
		}
		ins := r.s.builder().Insert("interactions").
			Columns(interactionColumns...).
			Values(in.ID, taskID, seq, string(in.EventType), payload, in.Timestamp)
		if _, err := r.s.exec(ctx, ins); err != nil {
			return fmt.Errorf("insert interaction: %w", err)
		}

		updTask := r.s.builder().Update("tasks").
			Set("updated_at", model.Later(task.UpdatedAt, in.Timestamp)).
			Where(entsql.EQ("id", taskID))
		if _, err := r.s.exec(ctx, updTask); err != nil {
			return fmt.Errorf("touch task: %w", err)
		}

		p.Touch(in.Timestamp)
		updProgram := r.s.builder().Update("programs").
			Set("last_activity_at", p.LastActivityAt).
			Set("updated_at", p.UpdatedAt).
			Where(entsql.And(
				entsql.EQ("id", p.ID),
				entsql.EQ("status", string(model.ProgramActive)),
			))
		if _, err := r.s.exec(ctx, updProgram); err != nil {
			return fmt.Errorf("touch program: %w", err)
		}
		return nil
	})
}

func (r *taskRepo) SetTaskStatus(ctx context.Context, id string, from, to model.TaskStatus, at time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, apperr.InvalidState("task", id, string(from), "move to "+string(to)+" from")
	}
	upd := r.s.builder().Update("tasks").
		Set("status", string(to)).
		Set("updated_at", at)
	if to == model.TaskCompleted {
		upd.Set("completed_at", at)
	}
	upd.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(from)),
	))

	n, err := r.s.exec(ctx, upd)
	if err != nil {
		return false, fmt.Errorf("set task status %s: %w", id, err)
	}
	if n == 0 {
		if _, err := r.header(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// header loads a task row without its interactions.
func (r *taskRepo) header(ctx context.Context, id string) (*model.Task, error) {
	b := r.s.builder()
	sel := b.Select(taskColumns...).
		From(b.Table("tasks")).
		Where(entsql.EQ("id", id))

	var out *model.Task
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		t, err := scanTask(rows)
		out = t
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if out == nil {
		return nil, apperr.NotFound("task", id)
	}
	return out, nil
}

func scanTask(rows *entsql.Rows) (*model.Task, error) {
	var (
		t           model.Task
		typ, status string
		content     []byte
		completedAt sql.NullTime
	)
	err := rows.Scan(
		&t.ID, &t.ProgramID, &t.TaskIndex, &t.TemplateIndex, &typ, &status,
		&content, &t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Type = model.TaskType(typ)
	t.Status = model.TaskStatus(status)
	if err := decodeJSON(content, &t.Content); err != nil {
		return nil, fmt.Errorf("decode task content: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

func scanInteraction(rows *entsql.Rows) (*model.Interaction, error) {
	var (
		in        model.Interaction
		eventType string
		payload   []byte
	)
	if err := rows.Scan(&in.ID, &in.TaskID, &in.Sequence, &eventType, &payload, &in.Timestamp); err != nil {
		return nil, fmt.Errorf("scan interaction: %w", err)
	}
	in.EventType = model.EventType(eventType)
	if err := decodeJSON(payload, &in.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	in.Timestamp = in.Timestamp.UTC()
	return &in, nil
}
