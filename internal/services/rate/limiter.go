package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// WindowStore is the sliding-log backend (redis in production). A single
// call both checks the cap and claims a slot, so concurrent senders cannot
// race past the limit between a check and a separate record step.
type WindowStore interface {
	SlidingAllow(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (allowed bool, oldest time.Time, err error)
}

// Limiter enforces a per-user cap over a sliding window. An allowed call
// consumes one slot; a denied call consumes nothing, so hammering the bot
// while limited does not extend the penalty.
type Limiter struct {
	store  WindowStore
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(store WindowStore, limit int, window time.Duration) *Limiter {
	if limit < 0 {
		limit = 0
	}
	if window <= 0 {
		window = time.Minute
	}

	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the limiter's clock. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Allow reports whether the user may act now. When denied, retryAfter is
// the time until the oldest window entry expires.
func (l *Limiter) Allow(ctx context.Context, userID int64) (retryAfter time.Duration, allowed bool, err error) {
	if userID <= 0 {
		return 0, false, fmt.Errorf("invalid user id")
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}
	if l.limit == 0 {
		return 0, true, nil
	}

	now := l.now()

	ok, oldest, err := l.store.SlidingAllow(ctx, messageKey(userID), l.window, l.limit, now)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}

	retry := oldest.Add(l.window).Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return retry, false, nil
}

func messageKey(userID int64) string {
	return "rate:msg:" + strconv.FormatInt(userID, 10)
}
