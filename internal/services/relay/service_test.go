package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
)

const testMaxFileSize = 10 * 1024 * 1024

func TestRelayDeliversAndRecordsBothSides(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)

	svc := env.service()

	partner, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "  привет  "})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if partner != 2 {
		t.Fatalf("unexpected partner: %d", partner)
	}
	if len(env.deliverer.delivered) != 1 || env.deliverer.delivered[0].recipient != 2 {
		t.Fatalf("unexpected deliveries: %+v", env.deliverer.delivered)
	}
	env.history.assert(t, 1, enums.DirectionOut, "привет")
	env.history.assert(t, 2, enums.DirectionIn, "привет")
}

func TestRelayRateLimitedConsumesNothing(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)
	env.limiter.allowed = false
	env.limiter.retryAfter = 12 * time.Second

	svc := env.service()

	_, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "hi"})
	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rle.RetryAfter != 12*time.Second {
		t.Fatalf("unexpected retry-after: %s", rle.RetryAfter)
	}
	if len(env.deliverer.delivered) != 0 || len(env.history.records) != 0 {
		t.Fatal("rate limited send must not deliver or record")
	}
}

func TestRelayOversizedRejectedForAnyKind(t *testing.T) {
	kinds := []enums.PayloadKind{
		enums.PayloadPhoto,
		enums.PayloadVoice,
		enums.PayloadDocument,
		enums.PayloadVideo,
	}
	for _, kind := range kinds {
		env := newTestEnv()
		env.addPair(1, 2)

		svc := env.service()

		payload := Payload{
			Kind:     kind,
			FileID:   "f1",
			FileName: "clip.mp4",
			FileSize: testMaxFileSize + 1,
		}
		_, err := svc.Relay(context.Background(), 1, payload)
		var pre *PayloadRejectedError
		if !errors.As(err, &pre) {
			t.Fatalf("kind %s: expected PayloadRejectedError, got %v", kind, err)
		}
		if len(env.deliverer.delivered) != 0 || len(env.history.records) != 0 {
			t.Fatalf("kind %s: rejected payload must not deliver or record", kind)
		}
	}
}

func TestRelayDocumentExtensionPolicy(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		wantOK   bool
	}{
		{"pdf allowed", "report.pdf", true},
		{"uppercase normalized", "PHOTO.JPG", true},
		{"executable rejected", "malware.exe", false},
		{"no extension rejected", "README", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.addPair(1, 2)

			svc := env.service()

			payload := Payload{
				Kind:     enums.PayloadDocument,
				FileID:   "f1",
				FileName: tc.fileName,
				FileSize: 1024,
			}
			_, err := svc.Relay(context.Background(), 1, payload)
			if tc.wantOK {
				if err != nil {
					t.Fatalf("relay: %v", err)
				}
				return
			}
			var pre *PayloadRejectedError
			if !errors.As(err, &pre) {
				t.Fatalf("expected PayloadRejectedError, got %v", err)
			}
		})
	}
}

func TestRelayWithoutPartner(t *testing.T) {
	env := newTestEnv()
	env.addUser(1, false)

	svc := env.service()

	if _, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "hi"}); !errors.Is(err, ErrNotPaired) {
		t.Fatalf("expected ErrNotPaired, got %v", err)
	}
}

func TestRelayBannedSender(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)
	env.directory.users[1].Banned = true

	svc := env.service()

	if _, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "hi"}); !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
}

func TestRelayBannedPartnerTearsDownPairing(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)
	env.directory.users[2].Banned = true

	svc := env.service()

	_, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "hi"})
	if !errors.Is(err, ErrPartnerUnavailable) {
		t.Fatalf("expected ErrPartnerUnavailable, got %v", err)
	}
	if !env.pairs.torn(1, 2) {
		t.Fatal("expected stale pairing torn down")
	}
}

func TestRelayUnreachableRecipientTearsDownPairing(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)
	env.deliverer.err = ErrRecipientUnreachable

	svc := env.service()

	_, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "hi"})
	if !errors.Is(err, ErrPartnerUnavailable) {
		t.Fatalf("expected ErrPartnerUnavailable, got %v", err)
	}
	if !env.pairs.torn(1, 2) {
		t.Fatal("expected pairing torn down after unreachable recipient")
	}
	if len(env.history.records) != 0 {
		t.Fatal("undelivered payload must not be recorded")
	}
}

func TestRelayHistoryFailureDoesNotFailDelivery(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)
	env.history.err = errors.New("history down")

	svc := env.service()

	partner, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: "hi"})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if partner != 2 {
		t.Fatalf("unexpected partner: %d", partner)
	}
	if len(env.deliverer.delivered) != 1 {
		t.Fatal("payload not delivered")
	}
}

func TestRelayMediaSummaries(t *testing.T) {
	cases := []struct {
		payload Payload
		want    string
	}{
		{Payload{Kind: enums.PayloadPhoto, FileID: "f", FileSize: 1}, "[фото]"},
		{Payload{Kind: enums.PayloadVoice, FileID: "f", FileSize: 1}, "[голосовое сообщение]"},
		{Payload{Kind: enums.PayloadSticker, FileID: "f"}, "[стикер]"},
		{Payload{Kind: enums.PayloadDocument, FileID: "f", FileName: "a.pdf", FileSize: 1}, "[документ: a.pdf]"},
	}
	for _, tc := range cases {
		env := newTestEnv()
		env.addPair(1, 2)

		svc := env.service()

		if _, err := svc.Relay(context.Background(), 1, tc.payload); err != nil {
			t.Fatalf("relay %s: %v", tc.payload.Kind, err)
		}
		env.history.assert(t, 1, enums.DirectionOut, tc.want)
	}
}

func TestRelayHistoryEvictsOldestBeyondCap(t *testing.T) {
	env := newTestEnv()
	env.addPair(1, 2)
	history := newCappedHistoryStub(50)

	svc := env.serviceWithHistory(history)

	for i := 1; i <= 55; i++ {
		text := fmt.Sprintf("сообщение %d", i)
		if _, err := svc.Relay(context.Background(), 1, Payload{Kind: enums.PayloadText, Text: text}); err != nil {
			t.Fatalf("relay #%d: %v", i, err)
		}
	}

	for _, userID := range []int64{1, 2} {
		records := history.forUser(userID)
		if len(records) != 50 {
			t.Fatalf("user %d: expected 50 retained records, got %d", userID, len(records))
		}
		// the 5 oldest are gone, the rest survive in send order
		if records[0].content != "сообщение 6" {
			t.Fatalf("user %d: unexpected oldest record %q", userID, records[0].content)
		}
		if records[len(records)-1].content != "сообщение 55" {
			t.Fatalf("user %d: unexpected newest record %q", userID, records[len(records)-1].content)
		}
		for i, rec := range records {
			if want := fmt.Sprintf("сообщение %d", i+6); rec.content != want {
				t.Fatalf("user %d: record %d is %q, want %q", userID, i, rec.content, want)
			}
		}
	}
}

type testEnv struct {
	directory *directoryStub
	pairs     *pairStub
	history   *historyStub
	limiter   *limiterStub
	deliverer *delivererStub
}

func newTestEnv() *testEnv {
	return &testEnv{
		directory: &directoryStub{users: make(map[int64]*model.User)},
		pairs:     &pairStub{},
		history:   &historyStub{},
		limiter:   &limiterStub{allowed: true},
		deliverer: &delivererStub{},
	}
}

func (e *testEnv) service() *Service {
	return e.serviceWithHistory(e.history)
}

func (e *testEnv) serviceWithHistory(history HistoryStore) *Service {
	return NewService(Dependencies{
		Directory: e.directory,
		Pairs:     e.pairs,
		History:   history,
		Limiter:   e.limiter,
		Deliverer: e.deliverer,
		Policy: Policy{
			MaxFileSize:       testMaxFileSize,
			AllowedExtensions: []string{".pdf", ".txt", ".jpg", ".jpeg", ".png", ".mp3", ".ogg", ".mp4", ".webm"},
			TextMaxLen:        2000,
		},
	})
}

func (e *testEnv) addUser(id int64, banned bool) {
	e.directory.users[id] = &model.User{ID: id, Banned: banned}
}

func (e *testEnv) addPair(a, b int64) {
	e.addUser(a, false)
	e.addUser(b, false)
	e.directory.users[a].Partner = b
	e.directory.users[b].Partner = a
}

type directoryStub struct {
	users map[int64]*model.User
}

func (d *directoryStub) Get(_ context.Context, userID int64) (model.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return model.User{}, pgrepo.ErrUserNotFound
	}
	return *u, nil
}

type pairStub struct {
	teardowns [][2]int64
}

func (p *pairStub) Teardown(_ context.Context, userID, partnerID int64) error {
	p.teardowns = append(p.teardowns, [2]int64{userID, partnerID})
	return nil
}

func (p *pairStub) torn(a, b int64) bool {
	for _, pair := range p.teardowns {
		if pair == [2]int64{a, b} || pair == [2]int64{b, a} {
			return true
		}
	}
	return false
}

type historyRecord struct {
	userID    int64
	direction enums.Direction
	content   string
}

type historyStub struct {
	records []historyRecord
	err     error
}

func (h *historyStub) Append(_ context.Context, userID int64, direction enums.Direction, content string) error {
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, historyRecord{userID: userID, direction: direction, content: content})
	return nil
}

func (h *historyStub) assert(t *testing.T, userID int64, direction enums.Direction, content string) {
	t.Helper()
	for _, rec := range h.records {
		if rec.userID == userID && rec.direction == direction && rec.content == content {
			return
		}
	}
	t.Fatalf("missing history record {%d %s %q}, have %+v", userID, direction, content, h.records)
}

// cappedHistoryStub mirrors the postgres repo's retention: after every
// append only the keep most recent records per user remain, oldest first
// out.
type cappedHistoryStub struct {
	keep    int
	perUser map[int64][]historyRecord
}

func newCappedHistoryStub(keep int) *cappedHistoryStub {
	return &cappedHistoryStub{keep: keep, perUser: make(map[int64][]historyRecord)}
}

func (h *cappedHistoryStub) Append(_ context.Context, userID int64, direction enums.Direction, content string) error {
	records := append(h.perUser[userID], historyRecord{userID: userID, direction: direction, content: content})
	if len(records) > h.keep {
		records = records[len(records)-h.keep:]
	}
	h.perUser[userID] = records
	return nil
}

func (h *cappedHistoryStub) forUser(userID int64) []historyRecord {
	return h.perUser[userID]
}

type limiterStub struct {
	allowed    bool
	retryAfter time.Duration
}

func (l *limiterStub) Allow(context.Context, int64) (time.Duration, bool, error) {
	return l.retryAfter, l.allowed, nil
}

type delivery struct {
	recipient int64
	payload   Payload
}

type delivererStub struct {
	delivered []delivery
	err       error
}

func (d *delivererStub) Deliver(_ context.Context, recipientID int64, payload Payload) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, delivery{recipient: recipientID, payload: payload})
	return nil
}
