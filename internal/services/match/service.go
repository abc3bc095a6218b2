package match

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
	"github.com/asasin266/bot/internal/pkg/pairlock"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
)

// maxMatchAttempts bounds the retry loop when a scanned candidate turns
// stale before the pairing commits. After the cap the seeker simply stays
// queued; the next search trigger retries.
const maxMatchAttempts = 3

var (
	ErrBanned        = errors.New("user is banned")
	ErrAlreadyPaired = errors.New("user is already in a dialog")
	ErrNotPaired     = errors.New("user is not in a dialog")
)

type DirectoryStore interface {
	Get(ctx context.Context, userID int64) (model.User, error)
}

type QueueStore interface {
	Enqueue(ctx context.Context, userID int64, filter enums.Sex) error
	Dequeue(ctx context.Context, userID int64) error
	Candidates(ctx context.Context, filter enums.Sex, exclude int64) ([]int64, error)
}

type PairStore interface {
	Establish(ctx context.Context, seekerID, candidateID int64) error
	Teardown(ctx context.Context, userID, partnerID int64) error
}

// Service owns the search queue scan, partner selection and every pairing
// transition. All pair mutations run under the pair locker; the store's
// conditional writes are the final arbiter against concurrent matchers.
type Service struct {
	directory DirectoryStore
	queue     QueueStore
	pairs     PairStore
	locker    *pairlock.Locker
	logger    *zap.Logger
}

type Dependencies struct {
	Directory DirectoryStore
	Queue     QueueStore
	Pairs     PairStore
	Locker    *pairlock.Locker
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
		queue:     deps.Queue,
		pairs:     deps.Pairs,
		locker:    locker,
		logger:    logger,
	}
}

// Search enqueues the seeker under the filter (replacing any prior entry)
// and tries to pair immediately. Returns the partner id on success and 0
// when nobody suitable is queued, in which case the seeker keeps waiting.
func (s *Service) Search(ctx context.Context, seekerID int64, filter enums.Sex) (int64, error) {
	if seekerID <= 0 {
		return 0, fmt.Errorf("invalid seeker id")
	}
	if s.directory == nil || s.queue == nil || s.pairs == nil {
		return 0, fmt.Errorf("match dependencies are not configured")
	}

	seeker, err := s.directory.Get(ctx, seekerID)
	if err != nil {
		return 0, err
	}
	if seeker.Banned {
		return 0, ErrBanned
	}
	if seeker.Paired() {
		return 0, ErrAlreadyPaired
	}

	if err := s.queue.Enqueue(ctx, seekerID, filter); err != nil {
		return 0, err
	}

	return s.tryMatch(ctx, seekerID, filter)
}

func (s *Service) tryMatch(ctx context.Context, seekerID int64, filter enums.Sex) (int64, error) {
	for attempt := 1; attempt <= maxMatchAttempts; attempt++ {
		candidateID, err := s.pickCandidate(ctx, seekerID, filter)
		if err != nil {
			return 0, err
		}
		if candidateID == 0 {
			return 0, nil
		}

		unlock := s.locker.LockPair(seekerID, candidateID)
		err = s.pairs.Establish(ctx, seekerID, candidateID)
		unlock()

		if err == nil {
			s.logger.Info("pairing established",
				zap.Int64("seeker_id", seekerID),
				zap.Int64("partner_id", candidateID),
				zap.Int("attempt", attempt),
			)
			return candidateID, nil
		}
		if !errors.Is(err, pgrepo.ErrStalePair) {
			return 0, err
		}

		s.logger.Debug("candidate went stale, rescanning queue",
			zap.Int64("seeker_id", seekerID),
			zap.Int64("candidate_id", candidateID),
			zap.Int("attempt", attempt),
		)
	}

	return 0, nil
}

// pickCandidate scans the FIFO candidate list for the filter, falling back
// to the universal filter when it yields nothing. Stale entries (banned or
// already paired owners) are skipped; the first VIP preempts earlier
// non-VIP candidates.
func (s *Service) pickCandidate(ctx context.Context, seekerID int64, filter enums.Sex) (int64, error) {
	filters := []enums.Sex{filter}
	if filter != enums.SexAny {
		filters = append(filters, enums.SexAny)
	}

	for _, f := range filters {
		ids, err := s.queue.Candidates(ctx, f, seekerID)
		if err != nil {
			return 0, err
		}

		var firstValid int64
		for _, id := range ids {
			candidate, err := s.directory.Get(ctx, id)
			if err != nil {
				if errors.Is(err, pgrepo.ErrUserNotFound) {
					continue
				}
				return 0, err
			}
			if candidate.Banned || candidate.Paired() {
				continue
			}
			if candidate.VIP {
				return id, nil
			}
			if firstValid == 0 {
				firstValid = id
			}
		}
		if firstValid != 0 {
			return firstValid, nil
		}
	}

	return 0, nil
}

// EndChat tears the dialog down symmetrically and returns the ex-partner
// id so the caller can notify them.
func (s *Service) EndChat(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if s.directory == nil || s.pairs == nil {
		return 0, fmt.Errorf("match dependencies are not configured")
	}

	user, err := s.directory.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.Paired() {
		return 0, ErrNotPaired
	}

	unlock := s.locker.LockPair(userID, user.Partner)
	err = s.pairs.Teardown(ctx, userID, user.Partner)
	unlock()
	if err != nil {
		return 0, err
	}

	s.logger.Info("dialog ended",
		zap.Int64("user_id", userID),
		zap.Int64("partner_id", user.Partner),
	)
	return user.Partner, nil
}

// NextPartner ends the current dialog and re-enqueues the initiator under
// the universal filter. The abandoned partner id is returned for the
// caller's notification. Matching is not attempted inline; the initiator
// waits for the next seeker like everyone else.
func (s *Service) NextPartner(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if s.directory == nil || s.queue == nil || s.pairs == nil {
		return 0, fmt.Errorf("match dependencies are not configured")
	}

	user, err := s.directory.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.Banned {
		return 0, ErrBanned
	}
	if !user.Paired() {
		return 0, ErrNotPaired
	}

	unlock := s.locker.LockPair(userID, user.Partner)
	err = s.pairs.Teardown(ctx, userID, user.Partner)
	unlock()
	if err != nil {
		return 0, err
	}

	if err := s.queue.Enqueue(ctx, userID, enums.SexAny); err != nil {
		return 0, err
	}

	return user.Partner, nil
}

// CancelSearch removes the user's queue entry. Idempotent when absent.
func (s *Service) CancelSearch(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	if s.queue == nil {
		return fmt.Errorf("queue store is nil")
	}

	return s.queue.Dequeue(ctx, userID)
}
