package sqlstore

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/pathway/internal/store"
)

var llmColumns = []string{
	"id", "sequence", "timestamp", "provider", "model", "purpose",
	"input_tokens", "output_tokens", "latency_ms", "success",
	"error_message", "request_body", "response_body",
}

// llmEventRepo implements store.LLMEventRepo backed by the global sequence
// counter shared with interactions.
type llmEventRepo struct {
	s *Store
}

func (r *llmEventRepo) AppendLLMRequest(ctx context.Context, data store.LLMRequestEventData) error {
	return r.s.WithinTx(ctx, func(ctx context.Context) error {
		seqNum, err := r.s.nextSequence(ctx)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		ins := r.s.builder().Insert("llm_requests").
			Columns(llmColumns[1:]...).
			Values(
				seqNum, time.Now().UTC(), data.Provider, data.Model, data.Purpose,
				data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success,
				data.ErrorMessage, data.RequestBody, data.ResponseBody,
			)
		if _, err := r.s.exec(ctx, ins); err != nil {
			return fmt.Errorf("save LLM request event: %w", err)
		}
		return nil
	})
}

func (r *llmEventRepo) QueryLLMEvents(ctx context.Context, opts store.QueryOpts) ([]store.LLMRequestEvent, error) {
	b := r.s.builder()
	sel := b.Select(llmColumns...).
		From(b.Table("llm_requests")).
		OrderBy(entsql.Desc("id"))

	var preds []*entsql.Predicate
	if opts.Purpose != "" {
		preds = append(preds, entsql.EQ("purpose", opts.Purpose))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("timestamp", opts.From.UTC()))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE("timestamp", opts.To.UTC()))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	var out []store.LLMRequestEvent
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		e, err := scanLLMEvent(rows)
		if err != nil {
			return err
		}
		out = append(out, *e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	return out, nil
}

func (r *llmEventRepo) GetLLMEvent(ctx context.Context, id int64) (*store.LLMRequestEvent, error) {
	b := r.s.builder()
	sel := b.Select(llmColumns...).
		From(b.Table("llm_requests")).
		Where(entsql.EQ("id", id))

	var out *store.LLMRequestEvent
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		e, err := scanLLMEvent(rows)
		out = e
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get LLM event %d: %w", id, err)
	}
	return out, nil
}

func (r *llmEventRepo) LLMUsageByPurpose(ctx context.Context) ([]store.LLMUsage, error) {
	return r.usage(ctx, "purpose")
}

func (r *llmEventRepo) LLMUsageByModel(ctx context.Context) ([]store.LLMUsage, error) {
	return r.usage(ctx, "model")
}

func (r *llmEventRepo) usage(ctx context.Context, key string) ([]store.LLMUsage, error) {
	b := r.s.builder()
	sel := b.Select(key).
		AppendSelectExprAs(entsql.Expr("COUNT(*)"), "calls").
		AppendSelectExprAs(entsql.Expr("COALESCE(SUM(input_tokens), 0)"), "input_tokens").
		AppendSelectExprAs(entsql.Expr("COALESCE(SUM(output_tokens), 0)"), "output_tokens").
		AppendSelectExprAs(entsql.Expr("COALESCE(AVG(latency_ms), 0)"), "avg_latency").
		From(b.Table("llm_requests")).
		GroupBy(key).
		OrderBy(key)

	var out []store.LLMUsage
	err := r.s.query(ctx, sel, func(rows *entsql.Rows) error {
		var (
			u   store.LLMUsage
			avg float64
		)
		if err := rows.Scan(&u.Key, &u.Calls, &u.InputTokens, &u.OutputTokens, &avg); err != nil {
			return fmt.Errorf("scan usage: %w", err)
		}
		u.AvgLatencyMs = int64(avg)
		out = append(out, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query usage by %s: %w", key, err)
	}
	return out, nil
}

func scanLLMEvent(rows *entsql.Rows) (*store.LLMRequestEvent, error) {
	var e store.LLMRequestEvent
	err := rows.Scan(
		&e.ID, &e.Sequence, &e.Timestamp, &e.Provider, &e.Model, &e.Purpose,
		&e.InputTokens, &e.OutputTokens, &e.LatencyMs, &e.Success,
		&e.ErrorMessage, &e.RequestBody, &e.ResponseBody,
	)
	if err != nil {
		return nil, fmt.Errorf("scan LLM event: %w", err)
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
