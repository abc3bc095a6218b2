package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSweepUsesRetentionCutoff(t *testing.T) {
	store := &queueStub{}
	job := New(Dependencies{Queue: store, Retention: time.Hour})
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	job.sweep(context.Background())

	if store.invalidCalls != 1 {
		t.Fatalf("expected one invalid sweep, got %d", store.invalidCalls)
	}
	want := fixed.Add(-time.Hour)
	if !store.lastCutoff.Equal(want) {
		t.Fatalf("unexpected cutoff: %s, want %s", store.lastCutoff, want)
	}
}

func TestSweepSkipsRetentionWhenDisabled(t *testing.T) {
	store := &queueStub{}
	job := New(Dependencies{Queue: store})

	job.sweep(context.Background())

	if store.invalidCalls != 1 {
		t.Fatalf("expected one invalid sweep, got %d", store.invalidCalls)
	}
	if store.cutoffCalls != 0 {
		t.Fatalf("expected no retention sweep, got %d", store.cutoffCalls)
	}
}

func TestSweepContinuesPastErrors(t *testing.T) {
	store := &queueStub{invalidErr: errors.New("db down")}
	job := New(Dependencies{Queue: store, Retention: time.Hour})

	job.sweep(context.Background())

	if store.cutoffCalls != 1 {
		t.Fatal("retention sweep skipped after invalid-sweep error")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &queueStub{}
	job := New(Dependencies{Queue: store, Interval: 5 * time.Millisecond, Retention: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not stop after cancel")
	}
	if store.calls() == 0 {
		t.Fatal("job never swept")
	}
}

func TestRunWithoutStoreReturns(t *testing.T) {
	job := New(Dependencies{Interval: time.Millisecond})

	done := make(chan struct{})
	go func() {
		job.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job without a store must return immediately")
	}
}

type queueStub struct {
	mu           sync.Mutex
	invalidCalls int
	cutoffCalls  int
	lastCutoff   time.Time
	invalidErr   error
}

func (q *queueStub) DeleteInvalid(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.invalidCalls++
	if q.invalidErr != nil {
		return 0, q.invalidErr
	}
	return 1, nil
}

func (q *queueStub) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cutoffCalls++
	q.lastCutoff = cutoff
	return 0, nil
}

func (q *queueStub) calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.invalidCalls
}
