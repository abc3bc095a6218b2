package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
	"github.com/asasin266/bot/internal/pkg/pairlock"
	"github.com/asasin266/bot/internal/pkg/sanitize"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
)

var (
	ErrBanned             = errors.New("user is banned")
	ErrNotPaired          = errors.New("user has no active partner")
	ErrPartnerUnavailable = errors.New("partner is unavailable")

	// ErrRecipientUnreachable is returned by a Deliverer when the recipient
	// can no longer receive messages (blocked the bot, deleted the account).
	ErrRecipientUnreachable = errors.New("recipient unreachable")
)

// RateLimitedError reports a denied send and how long the sender has to
// wait before a slot frees up.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

// PayloadRejectedError reports a payload refused by policy before any
// delivery attempt.
type PayloadRejectedError struct {
	Reason string
}

func (e *PayloadRejectedError) Error() string {
	return fmt.Sprintf("payload rejected: %s", e.Reason)
}

// Payload is a single message on its way from sender to partner. FileID is
// the transport's opaque handle for media; FileSize and FileName are only
// populated for payloads that carry a file.
type Payload struct {
	Kind     enums.PayloadKind
	Text     string
	Caption  string
	FileID   string
	FileName string
	FileSize int64
}

type DirectoryStore interface {
	Get(ctx context.Context, userID int64) (model.User, error)
}

type PairStore interface {
	Teardown(ctx context.Context, userID, partnerID int64) error
}

type HistoryStore interface {
	Append(ctx context.Context, userID int64, direction enums.Direction, content string) error
}

type Limiter interface {
	Allow(ctx context.Context, userID int64) (time.Duration, bool, error)
}

// Deliverer pushes a payload out to the transport. Implementations signal
// a dead recipient with ErrRecipientUnreachable.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID int64, payload Payload) error
}

type Policy struct {
	MaxFileSize       int64
	AllowedExtensions []string
	TextMaxLen        int
}

// Service relays messages between paired users: rate limit, policy checks,
// delivery, then a history record on both sides.
type Service struct {
	directory DirectoryStore
	pairs     PairStore
	history   HistoryStore
	limiter   Limiter
	deliverer Deliverer
	locker    *pairlock.Locker
	policy    Policy
	logger    *zap.Logger
}

type Dependencies struct {
	Directory DirectoryStore
	Pairs     PairStore
	History   HistoryStore
	Limiter   Limiter
	Deliverer Deliverer
	Locker    *pairlock.Locker
	Policy    Policy
	Logger    *zap.Logger
}

func NewService(deps Dependencies) *Service {
	locker := deps.Locker
	if locker == nil {
		locker = pairlock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		directory: deps.Directory,
		pairs:     deps.Pairs,
		history:   deps.History,
		limiter:   deps.Limiter,
		deliverer: deps.Deliverer,
		locker:    locker,
		policy:    deps.Policy,
		logger:    logger,
	}
}

// Relay forwards a payload from the sender to their current partner. It
// returns the partner id on success. Nothing is delivered or recorded when
// the rate limit or a policy check rejects the payload.
func (s *Service) Relay(ctx context.Context, senderID int64, payload Payload) (int64, error) {
	if senderID <= 0 {
		return 0, fmt.Errorf("invalid sender id")
	}
	if s.directory == nil || s.pairs == nil || s.deliverer == nil {
		return 0, fmt.Errorf("relay service is not configured")
	}

	if s.limiter != nil {
		retryAfter, allowed, err := s.limiter.Allow(ctx, senderID)
		if err != nil {
			return 0, fmt.Errorf("check rate limit: %w", err)
		}
		if !allowed {
			return 0, &RateLimitedError{RetryAfter: retryAfter}
		}
	}

	sender, err := s.directory.Get(ctx, senderID)
	if err != nil {
		return 0, fmt.Errorf("load sender: %w", err)
	}
	if sender.Banned {
		return 0, ErrBanned
	}
	if !sender.Paired() {
		return 0, ErrNotPaired
	}
	partnerID := sender.Partner

	recipient, err := s.directory.Get(ctx, partnerID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return 0, s.dropPair(ctx, senderID, partnerID)
		}
		return 0, fmt.Errorf("load recipient: %w", err)
	}
	if recipient.Banned || recipient.Partner != senderID {
		return 0, s.dropPair(ctx, senderID, partnerID)
	}

	if err := s.checkPolicy(payload); err != nil {
		return 0, err
	}

	if err := s.deliverer.Deliver(ctx, partnerID, payload); err != nil {
		if errors.Is(err, ErrRecipientUnreachable) {
			return 0, s.dropPair(ctx, senderID, partnerID)
		}
		return 0, fmt.Errorf("deliver payload: %w", err)
	}

	s.record(ctx, senderID, partnerID, payload)
	return partnerID, nil
}

func (s *Service) checkPolicy(payload Payload) error {
	if payload.FileSize > 0 && s.policy.MaxFileSize > 0 && payload.FileSize > s.policy.MaxFileSize {
		return &PayloadRejectedError{Reason: "file too large"}
	}
	if payload.Kind == enums.PayloadDocument {
		ext := strings.ToLower(filepath.Ext(payload.FileName))
		if !s.extensionAllowed(ext) {
			return &PayloadRejectedError{Reason: fmt.Sprintf("file type %q not allowed", ext)}
		}
	}
	return nil
}

func (s *Service) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range s.policy.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// dropPair tears the stale pairing down symmetrically and reports the
// partner as gone.
func (s *Service) dropPair(ctx context.Context, senderID, partnerID int64) error {
	unlock := s.locker.LockPair(senderID, partnerID)
	err := s.pairs.Teardown(ctx, senderID, partnerID)
	unlock()
	if err != nil {
		s.logger.Error("teardown of stale pairing failed",
			zap.Int64("user_id", senderID),
			zap.Int64("partner_id", partnerID),
			zap.Error(err),
		)
	}
	return ErrPartnerUnavailable
}

// record appends the exchange to both sides of the history. A history
// failure never undoes a delivered message.
func (s *Service) record(ctx context.Context, senderID, partnerID int64, payload Payload) {
	if s.history == nil {
		return
	}
	content := s.summarize(payload)
	if err := s.history.Append(ctx, senderID, enums.DirectionOut, content); err != nil {
		s.logger.Error("append outgoing history failed", zap.Int64("user_id", senderID), zap.Error(err))
	}
	if err := s.history.Append(ctx, partnerID, enums.DirectionIn, content); err != nil {
		s.logger.Error("append incoming history failed", zap.Int64("user_id", partnerID), zap.Error(err))
	}
}

func (s *Service) summarize(payload Payload) string {
	switch payload.Kind {
	case enums.PayloadText:
		return sanitize.Text(payload.Text, s.policy.TextMaxLen)
	case enums.PayloadDocument:
		if payload.FileName != "" {
			return fmt.Sprintf("[документ: %s]", payload.FileName)
		}
		return "[документ]"
	case enums.PayloadPhoto:
		return "[фото]"
	case enums.PayloadVoice:
		return "[голосовое сообщение]"
	case enums.PayloadSticker:
		return "[стикер]"
	case enums.PayloadVideo:
		return "[видео]"
	default:
		return "[вложение]"
	}
}
