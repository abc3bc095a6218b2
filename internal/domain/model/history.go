package model

import (
	"time"

	"github.com/asasin266/bot/internal/domain/enums"
)

// HistoryRecord is a bounded-window trace of one relayed message as seen
// from one side of the dialog. Content is sanitized text for text payloads
// and a type tag (e.g. "[photo]") for everything else.
type HistoryRecord struct {
	UserID    int64
	Direction enums.Direction
	Content   string
	CreatedAt time.Time
}
