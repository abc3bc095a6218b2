package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
	"github.com/asasin266/bot/internal/pkg/sanitize"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
)

const (
	nameMaxLen     = 64
	interestMaxLen = 50
	minAge         = 5
	maxAge         = 120
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("user not found")
)

type DirectoryStore interface {
	Ensure(ctx context.Context, userID int64, username, name string) error
	Get(ctx context.Context, userID int64) (model.User, error)
	SetSex(ctx context.Context, userID int64, sex enums.Sex) error
	SetAge(ctx context.Context, userID int64, age int) error
	SetInterests(ctx context.Context, userID int64, interests []string) error
	SetVIP(ctx context.Context, userID int64, vip bool) error
	SetBanned(ctx context.Context, tx pgx.Tx, userID int64, banned bool) error
	Stats(ctx context.Context) (pgrepo.Stats, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

type PairStore interface {
	ClearForUser(ctx context.Context, tx pgx.Tx, userID int64) (int64, error)
}

type QueueStore interface {
	DequeueTx(ctx context.Context, tx pgx.Tx, userID int64) error
}

// Service is the authoritative User Directory: profile state, VIP and ban
// flags. Pairing establishment lives in the match service; the directory
// only tears pairings down as part of a ban.
type Service struct {
	directory DirectoryStore
	pairs     PairStore
	queue     QueueStore

	runTx func(context.Context, func(context.Context, pgx.Tx) error) error
}

type Dependencies struct {
	Pool      *pgxpool.Pool
	Directory DirectoryStore
	Pairs     PairStore
	Queue     QueueStore
}

func NewService(deps Dependencies) *Service {
	return &Service{
		directory: deps.Directory,
		pairs:     deps.Pairs,
		queue:     deps.Queue,
		runTx: func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
			return pgrepo.WithTx(ctx, deps.Pool, fn)
		},
	}
}

// EnsureUser registers the user on first contact and refreshes the mutable
// Telegram attributes afterwards.
func (s *Service) EnsureUser(ctx context.Context, userID int64, username, name string) error {
	if userID <= 0 {
		return ErrValidation
	}
	if s.directory == nil {
		return fmt.Errorf("directory store is nil")
	}

	return s.directory.Ensure(ctx,
		userID,
		sanitize.Text(username, nameMaxLen),
		sanitize.Text(name, nameMaxLen),
	)
}

func (s *Service) Get(ctx context.Context, userID int64) (model.User, error) {
	if userID <= 0 {
		return model.User{}, ErrValidation
	}
	if s.directory == nil {
		return model.User{}, fmt.Errorf("directory store is nil")
	}

	user, err := s.directory.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (s *Service) SetSex(ctx context.Context, userID int64, value string) error {
	if userID <= 0 {
		return ErrValidation
	}
	sex, ok := enums.ParseSex(value)
	if !ok {
		return ErrValidation
	}
	if s.directory == nil {
		return fmt.Errorf("directory store is nil")
	}

	return s.mapNotFound(s.directory.SetSex(ctx, userID, sex))
}

func (s *Service) SetAge(ctx context.Context, userID int64, age int) error {
	if userID <= 0 || age < minAge || age > maxAge {
		return ErrValidation
	}
	if s.directory == nil {
		return fmt.Errorf("directory store is nil")
	}

	return s.mapNotFound(s.directory.SetAge(ctx, userID, age))
}

func (s *Service) SetInterests(ctx context.Context, userID int64, raw string) error {
	if userID <= 0 {
		return ErrValidation
	}
	if s.directory == nil {
		return fmt.Errorf("directory store is nil")
	}

	var interests []string
	for _, item := range strings.Split(raw, ",") {
		clean := sanitize.Text(item, interestMaxLen)
		if clean == "" {
			continue
		}
		interests = append(interests, clean)
	}

	return s.mapNotFound(s.directory.SetInterests(ctx, userID, interests))
}

func (s *Service) GrantVIP(ctx context.Context, userID int64) error {
	return s.setVIP(ctx, userID, true)
}

func (s *Service) RevokeVIP(ctx context.Context, userID int64) error {
	return s.setVIP(ctx, userID, false)
}

func (s *Service) setVIP(ctx context.Context, userID int64, vip bool) error {
	if userID <= 0 {
		return ErrValidation
	}
	if s.directory == nil {
		return fmt.Errorf("directory store is nil")
	}

	return s.mapNotFound(s.directory.SetVIP(ctx, userID, vip))
}

// Ban flags the user, clears both sides of any active pairing and removes
// the queue entry in one transaction. The ex-partner id is returned so the
// caller can notify the abandoned side (0 when the user was not paired).
func (s *Service) Ban(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, ErrValidation
	}
	if s.directory == nil || s.pairs == nil || s.queue == nil {
		return 0, fmt.Errorf("ban dependencies are not configured")
	}

	var exPartner int64
	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if err := s.directory.SetBanned(txCtx, tx, userID, true); err != nil {
			return err
		}
		partner, err := s.pairs.ClearForUser(txCtx, tx, userID)
		if err != nil {
			return err
		}
		exPartner = partner
		return s.queue.DequeueTx(txCtx, tx, userID)
	})
	if err != nil {
		return 0, s.mapNotFound(err)
	}

	return exPartner, nil
}

func (s *Service) Unban(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrValidation
	}
	if s.directory == nil {
		return fmt.Errorf("directory store is nil")
	}

	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		return s.directory.SetBanned(txCtx, tx, userID, false)
	})
	return s.mapNotFound(err)
}

func (s *Service) Stats(ctx context.Context) (pgrepo.Stats, error) {
	if s.directory == nil {
		return pgrepo.Stats{}, fmt.Errorf("directory store is nil")
	}
	return s.directory.Stats(ctx)
}

func (s *Service) ListIDs(ctx context.Context) ([]int64, error) {
	if s.directory == nil {
		return nil, fmt.Errorf("directory store is nil")
	}
	return s.directory.ListIDs(ctx)
}

func (s *Service) mapNotFound(err error) error {
	if errors.Is(err, pgrepo.ErrUserNotFound) {
		return ErrNotFound
	}
	return err
}
