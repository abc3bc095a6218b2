package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// QueueStore is the slice of the queue repo the janitor needs.
type QueueStore interface {
	DeleteInvalid(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job periodically evicts search queue entries whose owners went away
// (banned or already paired) and entries older than the retention window.
type Job struct {
	queue     QueueStore
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type Dependencies struct {
	Queue     QueueStore
	Interval  time.Duration
	Retention time.Duration
	Logger    *zap.Logger
}

func New(deps Dependencies) *Job {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Job{
		queue:     deps.Queue,
		interval:  interval,
		retention: deps.Retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Run blocks until the context is canceled, sweeping once per interval.
func (j *Job) Run(ctx context.Context) {
	if j.queue == nil {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("queue cleanup started",
		zap.Duration("interval", j.interval),
		zap.Duration("retention", j.retention),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("queue cleanup stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Job) sweep(ctx context.Context) {
	invalid, err := j.queue.DeleteInvalid(ctx)
	if err != nil {
		j.logger.Error("evict invalid queue entries failed", zap.Error(err))
	}

	var expired int64
	if j.retention > 0 {
		expired, err = j.queue.DeleteOlderThan(ctx, j.now().Add(-j.retention))
		if err != nil {
			j.logger.Error("evict expired queue entries failed", zap.Error(err))
		}
	}

	if invalid > 0 || expired > 0 {
		j.logger.Info("queue swept",
			zap.Int64("invalid", invalid),
			zap.Int64("expired", expired),
		)
	}
}
