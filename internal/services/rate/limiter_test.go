package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/asasin266/bot/internal/repo/redis"
)

func TestLimiterBlocksOverCapWithinWindow(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(redrepo.NewRateRepo(client), 20, time.Minute).WithClock(clock.Now)

	ctx := context.Background()
	userID := int64(42)

	for i := 0; i < 20; i++ {
		retryAfter, allowed, err := limiter.Allow(ctx, userID)
		if err != nil {
			t.Fatalf("allow #%d: %v", i+1, err)
		}
		if !allowed || retryAfter != 0 {
			t.Fatalf("unexpected denial on #%d: allowed=%v retry_after=%s", i+1, allowed, retryAfter)
		}
		clock.Advance(time.Second)
	}

	retryAfter, allowed, err := limiter.Allow(ctx, userID)
	if err != nil {
		t.Fatalf("allow #21: %v", err)
	}
	if allowed {
		t.Fatal("expected 21st message inside the window to be blocked")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %s", retryAfter)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(redrepo.NewRateRepo(client), 3, time.Minute).WithClock(clock.Now)

	ctx := context.Background()
	userID := int64(7)

	// t=0s, 10s, 20s: fill the cap
	for i := 0; i < 3; i++ {
		if _, allowed, err := limiter.Allow(ctx, userID); err != nil || !allowed {
			t.Fatalf("fill #%d: allowed=%v err=%v", i+1, allowed, err)
		}
		clock.Advance(10 * time.Second)
	}

	// t=30s: still blocked
	if _, allowed, err := limiter.Allow(ctx, userID); err != nil {
		t.Fatalf("allow at 30s: %v", err)
	} else if allowed {
		t.Fatal("expected block at 30s with a full window")
	}

	// t=61s: the t=0s entry has left the window; one slot frees up,
	// even though fewer than 60s passed since the last action.
	clock.Advance(31 * time.Second)
	if _, allowed, err := limiter.Allow(ctx, userID); err != nil {
		t.Fatalf("allow at 61s: %v", err)
	} else if !allowed {
		t.Fatal("expected sliding window to free one slot at 61s")
	}

	// the freed slot is consumed again, the t=10s entry still counts
	if _, allowed, err := limiter.Allow(ctx, userID); err != nil {
		t.Fatalf("allow after refill: %v", err)
	} else if allowed {
		t.Fatal("expected block after the freed slot was consumed")
	}
}

func TestLimiterDenialConsumesNoSlot(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(redrepo.NewRateRepo(client), 1, time.Minute).WithClock(clock.Now)

	ctx := context.Background()
	userID := int64(9)

	if _, allowed, err := limiter.Allow(ctx, userID); err != nil || !allowed {
		t.Fatalf("first allow: allowed=%v err=%v", allowed, err)
	}

	// spam while limited: none of these extend the window
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if _, allowed, err := limiter.Allow(ctx, userID); err != nil {
			t.Fatalf("spam allow: %v", err)
		} else if allowed {
			t.Fatal("expected denial while window is full")
		}
	}

	clock.Advance(56 * time.Second)
	if _, allowed, err := limiter.Allow(ctx, userID); err != nil {
		t.Fatalf("allow after window: %v", err)
	} else if !allowed {
		t.Fatal("expected allowance 61s after the only counted action")
	}
}

func TestLimiterConcurrentSendsRespectCap(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(redrepo.NewRateRepo(client), 2, time.Minute).WithClock(clock.Now)

	ctx := context.Background()
	userID := int64(11)

	if _, allowed, err := limiter.Allow(ctx, userID); err != nil || !allowed {
		t.Fatalf("fill first slot: allowed=%v err=%v", allowed, err)
	}

	// one slot left; two simultaneous sends must not both take it
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := limiter.Allow(ctx, userID)
			if err != nil {
				t.Errorf("concurrent allow: %v", err)
				return
			}
			if allowed {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Fatalf("expected exactly one concurrent send to claim the last slot, got %d", got)
	}
}

func TestLimiterZeroLimitDisables(t *testing.T) {
	limiter := NewLimiter(nil, 0, time.Minute)
	if _, allowed, err := limiter.Allow(context.Background(), 1); err != nil || !allowed {
		t.Fatalf("zero limit should disable limiting: allowed=%v err=%v", allowed, err)
	}
}

type fakeClock struct {
	current time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{current: start}
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
