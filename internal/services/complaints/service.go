package complaints

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/asasin266/bot/internal/domain/model"
	"github.com/asasin266/bot/internal/pkg/sanitize"
)

const reasonMaxLen = 500

var ErrValidation = errors.New("validation failed")

type Store interface {
	Create(ctx context.Context, fromUser, aboutUser int64, reason string) (int64, error)
	Recent(ctx context.Context, limit int) ([]model.Complaint, error)
}

// Notifier forwards a filed complaint to the operator channel.
type Notifier interface {
	NotifyComplaint(ctx context.Context, complaint model.Complaint) error
}

type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

type Dependencies struct {
	Store    Store
	Notifier Notifier
	Logger   *zap.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    deps.Store,
		notifier: deps.Notifier,
		logger:   logger,
	}
}

// File records a complaint and notifies the operator. The record is the
// source of truth; a failed notification is logged and never undoes it.
func (s *Service) File(ctx context.Context, fromUser, aboutUser int64, reason string) (int64, error) {
	if s.store == nil {
		return 0, fmt.Errorf("complaints service is not configured")
	}
	if fromUser <= 0 || aboutUser <= 0 {
		return 0, fmt.Errorf("%w: invalid user id", ErrValidation)
	}
	if fromUser == aboutUser {
		return 0, fmt.Errorf("%w: cannot complain about yourself", ErrValidation)
	}

	reason = sanitize.Text(reason, reasonMaxLen)

	id, err := s.store.Create(ctx, fromUser, aboutUser, reason)
	if err != nil {
		return 0, fmt.Errorf("create complaint: %w", err)
	}

	if s.notifier != nil {
		complaint := model.Complaint{ID: id, FromUser: fromUser, AboutUser: aboutUser, Reason: reason}
		if err := s.notifier.NotifyComplaint(ctx, complaint); err != nil {
			s.logger.Error("complaint notification failed",
				zap.Int64("complaint_id", id),
				zap.Int64("about_user", aboutUser),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("complaint filed",
		zap.Int64("complaint_id", id),
		zap.Int64("from_user", fromUser),
		zap.Int64("about_user", aboutUser),
	)
	return id, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]model.Complaint, error) {
	if s.store == nil {
		return nil, fmt.Errorf("complaints service is not configured")
	}
	return s.store.Recent(ctx, limit)
}
