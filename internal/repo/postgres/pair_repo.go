package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStalePair means one side of an attempted pairing was banned, vanished
// or got paired by a concurrent matcher between the queue scan and commit.
var ErrStalePair = errors.New("pairing no longer possible")

// PairRepo owns the atomic both-or-neither pairing mutations. No caller may
// set users.partner outside of this type.
type PairRepo struct {
	pool *pgxpool.Pool
}

func NewPairRepo(pool *pgxpool.Pool) *PairRepo {
	return &PairRepo{pool: pool}
}

// Establish links seeker and candidate and removes both queue entries in a
// single transaction. Each partner write is conditional on the row still
// being unpaired and unbanned; a failed condition aborts with ErrStalePair.
// Rows are touched in ascending id order to keep row-lock order stable.
func (r *PairRepo) Establish(ctx context.Context, seekerID, candidateID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if seekerID <= 0 || candidateID <= 0 || seekerID == candidateID {
		return fmt.Errorf("invalid pairing payload")
	}

	first, second := seekerID, candidateID
	if first > second {
		first, second = second, first
	}

	return WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		for _, side := range [2][2]int64{{first, second}, {second, first}} {
			tag, err := tx.Exec(txCtx, `
UPDATE users
SET partner = $2
WHERE id = $1 AND partner IS NULL AND NOT banned
`, side[0], side[1])
			if err != nil {
				return fmt.Errorf("set partner for %d: %w", side[0], err)
			}
			if tag.RowsAffected() == 0 {
				return ErrStalePair
			}
		}

		if _, err := tx.Exec(txCtx, `
DELETE FROM search_queue WHERE user_id IN ($1, $2)
`, seekerID, candidateID); err != nil {
			return fmt.Errorf("remove paired users from queue: %w", err)
		}

		return nil
	})
}

// Teardown clears both sides of the pairing. Each side is cleared only if
// it still references the other, so a user who already re-paired elsewhere
// is left alone.
func (r *PairRepo) Teardown(ctx context.Context, userID, partnerID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 || partnerID <= 0 {
		return fmt.Errorf("invalid teardown payload")
	}

	return WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(txCtx, `
UPDATE users
SET partner = NULL
WHERE (id = $1 AND partner = $2) OR (id = $2 AND partner = $1)
`, userID, partnerID); err != nil {
			return fmt.Errorf("clear pairing: %w", err)
		}
		return nil
	})
}

// ClearForUser drops the user's pairing inside the caller's transaction and
// returns the ex-partner id (0 when the user was not paired).
func (r *PairRepo) ClearForUser(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction is required")
	}
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}

	var partner int64
	err := tx.QueryRow(ctx, `
SELECT COALESCE(partner, 0) FROM users WHERE id = $1 FOR UPDATE
`, userID).Scan(&partner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("read partner for clear: %w", err)
	}
	if partner == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx, `
UPDATE users
SET partner = NULL
WHERE id = $1 OR (id = $2 AND partner = $1)
`, userID, partner); err != nil {
		return 0, fmt.Errorf("clear pairing for user: %w", err)
	}

	return partner, nil
}
