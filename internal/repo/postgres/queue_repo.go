package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
)

type QueueRepo struct {
	pool *pgxpool.Pool
}

func NewQueueRepo(pool *pgxpool.Pool) *QueueRepo {
	return &QueueRepo{pool: pool}
}

// Enqueue inserts the seeker, replacing any prior entry so a user holds at
// most one queue slot.
func (r *QueueRepo) Enqueue(ctx context.Context, userID int64, filter enums.Sex) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO search_queue (user_id, sex_filter, queued_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE SET
	sex_filter = EXCLUDED.sex_filter,
	queued_at = EXCLUDED.queued_at
`, userID, string(filter)); err != nil {
		return fmt.Errorf("enqueue seeker: %w", err)
	}

	return nil
}

// Dequeue removes the user's entry. Idempotent when absent.
func (r *QueueRepo) Dequeue(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM search_queue WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("dequeue seeker: %w", err)
	}

	return nil
}

// DequeueTx removes the user's entry inside the caller's transaction.
func (r *QueueRepo) DequeueTx(ctx context.Context, tx pgx.Tx, userID int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	if _, err := tx.Exec(ctx, `
DELETE FROM search_queue WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("dequeue seeker in tx: %w", err)
	}

	return nil
}

// Candidates returns queued user ids matching the filter, oldest first.
// The excluded id (usually the seeker itself) is never returned.
func (r *QueueRepo) Candidates(ctx context.Context, filter enums.Sex, exclude int64) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id
FROM search_queue
WHERE sex_filter = $1 AND user_id <> $2
ORDER BY queued_at ASC, user_id ASC
`, string(filter), exclude)
	if err != nil {
		return nil, fmt.Errorf("list queue candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan queue candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate queue candidates: %w", rows.Err())
	}

	return ids, nil
}

// Entries lists the whole queue, oldest first. Used by the cleanup job.
func (r *QueueRepo) Entries(ctx context.Context) ([]model.QueueEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id, sex_filter, queued_at
FROM search_queue
ORDER BY queued_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var (
			entry  model.QueueEntry
			filter string
		)
		if err := rows.Scan(&entry.UserID, &filter, &entry.QueuedAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entry.SexFilter = enums.Sex(filter)
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", rows.Err())
	}

	return entries, nil
}

// DeleteOlderThan drops entries queued before the cutoff and returns how
// many were removed.
func (r *QueueRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM search_queue WHERE queued_at < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale queue entries: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteInvalid drops entries whose owner is banned or already paired.
func (r *QueueRepo) DeleteInvalid(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM search_queue q
USING users u
WHERE u.id = q.user_id AND (u.banned OR u.partner IS NOT NULL)
`)
	if err != nil {
		return 0, fmt.Errorf("delete invalid queue entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
