package users

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
)

func TestEnsureUserSanitizesNames(t *testing.T) {
	dir := newDirectoryStub()
	svc := newTestService(dir, nil, nil)

	err := svc.EnsureUser(context.Background(), 1, "  @alice\x00  ", "  Алиса  ")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if dir.lastUsername != "@alice" || dir.lastName != "Алиса" {
		t.Fatalf("names not sanitized: %q %q", dir.lastUsername, dir.lastName)
	}
}

func TestSetSexValidatesValue(t *testing.T) {
	dir := newDirectoryStub()
	dir.users[1] = &model.User{ID: 1}
	svc := newTestService(dir, nil, nil)

	if err := svc.SetSex(context.Background(), 1, "Мужчина"); err != nil {
		t.Fatalf("set sex: %v", err)
	}
	if dir.users[1].Sex != enums.SexMale {
		t.Fatalf("sex not stored: %q", dir.users[1].Sex)
	}
	if err := svc.SetSex(context.Background(), 1, "dragon"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSetAgeBounds(t *testing.T) {
	dir := newDirectoryStub()
	dir.users[1] = &model.User{ID: 1}
	svc := newTestService(dir, nil, nil)

	for _, age := range []int{4, 121, -1} {
		if err := svc.SetAge(context.Background(), 1, age); !errors.Is(err, ErrValidation) {
			t.Fatalf("age %d: expected ErrValidation, got %v", age, err)
		}
	}
	if err := svc.SetAge(context.Background(), 1, 25); err != nil {
		t.Fatalf("set age: %v", err)
	}
	if dir.users[1].Age != 25 {
		t.Fatalf("age not stored: %d", dir.users[1].Age)
	}
}

func TestSetInterestsSplitsAndDropsEmpty(t *testing.T) {
	dir := newDirectoryStub()
	dir.users[1] = &model.User{ID: 1}
	svc := newTestService(dir, nil, nil)

	if err := svc.SetInterests(context.Background(), 1, " музыка , , кино,  "); err != nil {
		t.Fatalf("set interests: %v", err)
	}
	got := dir.users[1].Interests
	if len(got) != 2 || got[0] != "музыка" || got[1] != "кино" {
		t.Fatalf("unexpected interests: %v", got)
	}
}

func TestBanClearsPairingAndQueue(t *testing.T) {
	dir := newDirectoryStub()
	dir.users[1] = &model.User{ID: 1, Partner: 2}
	pairs := &pairStub{partners: map[int64]int64{1: 2}}
	queue := &queueStub{queued: map[int64]bool{1: true}}
	svc := newTestService(dir, pairs, queue)

	exPartner, err := svc.Ban(context.Background(), 1)
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if exPartner != 2 {
		t.Fatalf("unexpected ex-partner: %d", exPartner)
	}
	if !dir.users[1].Banned {
		t.Fatal("ban flag not set")
	}
	if pairs.partners[1] != 0 {
		t.Fatal("pairing not cleared")
	}
	if queue.queued[1] {
		t.Fatal("queue entry not removed")
	}
}

func TestBanUnpairedUserReturnsZeroPartner(t *testing.T) {
	dir := newDirectoryStub()
	dir.users[1] = &model.User{ID: 1}
	svc := newTestService(dir, &pairStub{partners: map[int64]int64{}}, &queueStub{queued: map[int64]bool{}})

	exPartner, err := svc.Ban(context.Background(), 1)
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if exPartner != 0 {
		t.Fatalf("unexpected ex-partner: %d", exPartner)
	}
}

func TestUnbanLiftsFlag(t *testing.T) {
	dir := newDirectoryStub()
	dir.users[1] = &model.User{ID: 1, Banned: true}
	svc := newTestService(dir, nil, nil)

	if err := svc.Unban(context.Background(), 1); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if dir.users[1].Banned {
		t.Fatal("ban flag still set")
	}
}

func TestMissingUserMapsToErrNotFound(t *testing.T) {
	dir := newDirectoryStub()
	svc := newTestService(dir, nil, nil)

	if _, err := svc.Get(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.SetAge(context.Background(), 42, 30); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func newTestService(dir *directoryStub, pairs *pairStub, queue *queueStub) *Service {
	deps := Dependencies{Directory: dir}
	if pairs != nil {
		deps.Pairs = pairs
	}
	if queue != nil {
		deps.Queue = queue
	}
	svc := NewService(deps)
	// no database in unit tests, run the callback outside a real tx
	svc.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return fn(ctx, nil)
	}
	return svc
}

type directoryStub struct {
	users        map[int64]*model.User
	lastUsername string
	lastName     string
}

func newDirectoryStub() *directoryStub {
	return &directoryStub{users: make(map[int64]*model.User)}
}

func (d *directoryStub) Ensure(_ context.Context, userID int64, username, name string) error {
	d.lastUsername, d.lastName = username, name
	if _, ok := d.users[userID]; !ok {
		d.users[userID] = &model.User{ID: userID}
	}
	d.users[userID].Username = username
	d.users[userID].Name = name
	return nil
}

func (d *directoryStub) Get(_ context.Context, userID int64) (model.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return model.User{}, pgrepo.ErrUserNotFound
	}
	return *u, nil
}

func (d *directoryStub) SetSex(_ context.Context, userID int64, sex enums.Sex) error {
	u, ok := d.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	u.Sex = sex
	return nil
}

func (d *directoryStub) SetAge(_ context.Context, userID int64, age int) error {
	u, ok := d.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	u.Age = age
	return nil
}

func (d *directoryStub) SetInterests(_ context.Context, userID int64, interests []string) error {
	u, ok := d.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	u.Interests = interests
	return nil
}

func (d *directoryStub) SetVIP(_ context.Context, userID int64, vip bool) error {
	u, ok := d.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	u.VIP = vip
	return nil
}

func (d *directoryStub) SetBanned(_ context.Context, _ pgx.Tx, userID int64, banned bool) error {
	u, ok := d.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	u.Banned = banned
	return nil
}

func (d *directoryStub) Stats(context.Context) (pgrepo.Stats, error) {
	return pgrepo.Stats{Total: int64(len(d.users))}, nil
}

func (d *directoryStub) ListIDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	return ids, nil
}

type pairStub struct {
	partners map[int64]int64
}

func (p *pairStub) ClearForUser(_ context.Context, _ pgx.Tx, userID int64) (int64, error) {
	partner := p.partners[userID]
	p.partners[userID] = 0
	if partner != 0 {
		p.partners[partner] = 0
	}
	return partner, nil
}

type queueStub struct {
	queued map[int64]bool
}

func (q *queueStub) DequeueTx(_ context.Context, _ pgx.Tx, userID int64) error {
	delete(q.queued, userID)
	return nil
}
