package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Ensure creates the user on first contact or refreshes username/name on
// subsequent ones. Profile fields, flags and pairing state are untouched.
func (r *UserRepo) Ensure(ctx context.Context, userID int64, username, name string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO users (id, username, name, sex, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE SET
	username = EXCLUDED.username,
	name = EXCLUDED.name
`, userID, strings.TrimSpace(username), strings.TrimSpace(name), string(enums.SexUnset)); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID int64) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.User{}, fmt.Errorf("invalid user id")
	}

	var (
		user      model.User
		sex       string
		interests string
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, COALESCE(username, ''), COALESCE(name, ''), sex, age, interests,
       vip, COALESCE(partner, 0), banned, created_at
FROM users
WHERE id = $1
`, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&sex,
		&user.Age,
		&interests,
		&user.VIP,
		&user.Partner,
		&user.Banned,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	user.Sex = enums.Sex(sex)
	if trimmed := strings.TrimSpace(interests); trimmed != "" {
		user.Interests = strings.Split(trimmed, ",")
	}

	return user, nil
}

func (r *UserRepo) SetSex(ctx context.Context, userID int64, sex enums.Sex) error {
	return r.setField(ctx, userID, "sex", string(sex))
}

func (r *UserRepo) SetAge(ctx context.Context, userID int64, age int) error {
	return r.setField(ctx, userID, "age", age)
}

func (r *UserRepo) SetInterests(ctx context.Context, userID int64, interests []string) error {
	return r.setField(ctx, userID, "interests", strings.Join(interests, ","))
}

func (r *UserRepo) SetVIP(ctx context.Context, userID int64, vip bool) error {
	return r.setField(ctx, userID, "vip", vip)
}

func (r *UserRepo) setField(ctx context.Context, userID int64, column string, value any) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE users SET %s = $2 WHERE id = $1`, column),
		userID, value)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetBanned flips the ban flag inside the caller's transaction so queue and
// pairing cleanup commit together with it.
func (r *UserRepo) SetBanned(ctx context.Context, tx pgx.Tx, userID int64, banned bool) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	tag, err := tx.Exec(ctx, `
UPDATE users SET banned = $2 WHERE id = $1
`, userID, banned)
	if err != nil {
		return fmt.Errorf("set user banned flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

type Stats struct {
	Total  int64
	VIP    int64
	Banned int64
	Queued int64
}

func (r *UserRepo) Stats(ctx context.Context) (Stats, error) {
	if r.pool == nil {
		return Stats{}, fmt.Errorf("postgres pool is nil")
	}

	var stats Stats
	err := r.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM users),
	(SELECT COUNT(*) FROM users WHERE vip),
	(SELECT COUNT(*) FROM users WHERE banned),
	(SELECT COUNT(*) FROM search_queue)
`).Scan(&stats.Total, &stats.VIP, &stats.Banned, &stats.Queued)
	if err != nil {
		return Stats{}, fmt.Errorf("collect user stats: %w", err)
	}

	return stats, nil
}

func (r *UserRepo) ListIDs(ctx context.Context) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate user ids: %w", rows.Err())
	}

	return ids, nil
}
