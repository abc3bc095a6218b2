package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
)

type HistoryRepo struct {
	pool *pgxpool.Pool
	keep int
}

func NewHistoryRepo(pool *pgxpool.Pool, keep int) *HistoryRepo {
	if keep <= 0 {
		keep = 50
	}
	return &HistoryRepo{pool: pool, keep: keep}
}

// Append stores one record and trims the user's window back to the cap in
// the same transaction. Eviction is by insertion order (row id), not by
// timestamp, so same-second bursts evict deterministically.
func (r *HistoryRepo) Append(ctx context.Context, userID int64, direction enums.Direction, content string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	return WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(txCtx, `
INSERT INTO history (user_id, direction, content, created_at)
VALUES ($1, $2, $3, NOW())
`, userID, string(direction), content); err != nil {
			return fmt.Errorf("insert history record: %w", err)
		}

		if _, err := tx.Exec(txCtx, `
DELETE FROM history
WHERE user_id = $1 AND id NOT IN (
	SELECT id FROM history
	WHERE user_id = $1
	ORDER BY id DESC
	LIMIT $2
)
`, userID, r.keep); err != nil {
			return fmt.Errorf("trim history window: %w", err)
		}

		return nil
	})
}

// Recent returns the user's records newest-first, capped at limit.
func (r *HistoryRepo) Recent(ctx context.Context, userID int64, limit int) ([]model.HistoryRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 || limit > r.keep {
		limit = r.keep
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id, direction, content, created_at
FROM history
WHERE user_id = $1
ORDER BY id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent history: %w", err)
	}
	defer rows.Close()

	var records []model.HistoryRecord
	for rows.Next() {
		var (
			record    model.HistoryRecord
			direction string
		)
		if err := rows.Scan(&record.UserID, &direction, &record.Content, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		record.Direction = enums.Direction(direction)
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate history records: %w", rows.Err())
	}

	return records, nil
}
