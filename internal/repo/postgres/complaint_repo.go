package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asasin266/bot/internal/domain/model"
)

type ComplaintRepo struct {
	pool *pgxpool.Pool
}

func NewComplaintRepo(pool *pgxpool.Pool) *ComplaintRepo {
	return &ComplaintRepo{pool: pool}
}

// Create appends one complaint. Records are never updated or deleted.
func (r *ComplaintRepo) Create(ctx context.Context, fromUser, aboutUser int64, reason string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if fromUser <= 0 || aboutUser <= 0 || fromUser == aboutUser {
		return 0, fmt.Errorf("invalid complaint payload")
	}
	if strings.TrimSpace(reason) == "" {
		return 0, fmt.Errorf("complaint reason is required")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO complaints (from_user, about_user, reason, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING id
`, fromUser, aboutUser, strings.TrimSpace(reason)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create complaint: %w", err)
	}

	return id, nil
}

func (r *ComplaintRepo) Recent(ctx context.Context, limit int) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, from_user, about_user, reason, created_at
FROM complaints
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent complaints: %w", err)
	}
	defer rows.Close()

	var complaints []model.Complaint
	for rows.Next() {
		var c model.Complaint
		if err := rows.Scan(&c.ID, &c.FromUser, &c.AboutUser, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		complaints = append(complaints, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate complaints: %w", rows.Err())
	}

	return complaints, nil
}
