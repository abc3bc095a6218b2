package model

import (
	"time"

	"github.com/asasin266/bot/internal/domain/enums"
)

// QueueEntry is one waiting seeker. At most one entry exists per user.
type QueueEntry struct {
	UserID    int64
	SexFilter enums.Sex
	QueuedAt  time.Time
}
