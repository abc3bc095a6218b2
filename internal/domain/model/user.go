package model

import (
	"time"

	"github.com/asasin266/bot/internal/domain/enums"
)

// User is the directory record. Partner is 0 when the user is not in a
// dialog; when set, the relation is symmetric and never self-referential.
type User struct {
	ID        int64
	Username  string
	Name      string
	Sex       enums.Sex
	Age       int
	Interests []string
	VIP       bool
	Partner   int64
	Banned    bool
	CreatedAt time.Time
}

func (u User) Paired() bool {
	return u.Partner != 0
}
