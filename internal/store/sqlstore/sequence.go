package sqlstore

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// The global sequence orders interactions across every task and program.
// Per-row ids are random, so a single counter row assigns the ordering used
// for first-interaction classification and answer policies. The increment is
// issued on the caller's transaction so a rolled back append never consumes
// the row lock past its own lifetime.

func (s *Store) seedSequence(ctx context.Context) error {
	q := `INSERT INTO global_sequence (id, next_val) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`
	if err := s.drv.Exec(ctx, q, []any{}, nil); err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	return nil
}

// nextSequence atomically returns the next sequence number and increments
// the counter.
func (s *Store) nextSequence(ctx context.Context) (int64, error) {
	q := `UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`

	var rows entsql.Rows
	if err := s.conn(ctx).Query(ctx, q, []any{}, &rows); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("next sequence: %w", err)
		}
		return 0, fmt.Errorf("next sequence: counter row missing")
	}
	var seq int64
	if err := rows.Scan(&seq); err != nil {
		return 0, fmt.Errorf("scan sequence: %w", err)
	}
	return seq, nil
}
