package model

import "time"

// Complaint is append-only; the core never mutates or deletes records.
type Complaint struct {
	ID        int64
	FromUser  int64
	AboutUser int64
	Reason    string
	CreatedAt time.Time
}
