package complaints

import (
	"context"
	"errors"
	"testing"

	"github.com/asasin266/bot/internal/domain/model"
)

func TestFileCreatesAndNotifies(t *testing.T) {
	store := &storeStub{nextID: 7}
	notifier := &notifierStub{}
	svc := NewService(Dependencies{Store: store, Notifier: notifier})

	id, err := svc.File(context.Background(), 1, 2, "  спам\x00 и оскорбления  ")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if id != 7 {
		t.Fatalf("unexpected id: %d", id)
	}
	if store.lastReason != "спам и оскорбления" {
		t.Fatalf("reason not sanitized: %q", store.lastReason)
	}
	if len(notifier.seen) != 1 || notifier.seen[0].ID != 7 || notifier.seen[0].AboutUser != 2 {
		t.Fatalf("unexpected notifications: %+v", notifier.seen)
	}
}

func TestFileNotifierFailureDoesNotFail(t *testing.T) {
	store := &storeStub{nextID: 3}
	notifier := &notifierStub{err: errors.New("operator offline")}
	svc := NewService(Dependencies{Store: store, Notifier: notifier})

	id, err := svc.File(context.Background(), 1, 2, "reason")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if id != 3 {
		t.Fatalf("unexpected id: %d", id)
	}
}

func TestFileRejectsSelfComplaint(t *testing.T) {
	svc := NewService(Dependencies{Store: &storeStub{}})

	if _, err := svc.File(context.Background(), 5, 5, "reason"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFileRejectsInvalidIDs(t *testing.T) {
	svc := NewService(Dependencies{Store: &storeStub{}})

	if _, err := svc.File(context.Background(), 0, 2, "r"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero from, got %v", err)
	}
	if _, err := svc.File(context.Background(), 1, -2, "r"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative about, got %v", err)
	}
}

type storeStub struct {
	nextID     int64
	lastReason string
	recent     []model.Complaint
}

func (s *storeStub) Create(_ context.Context, fromUser, aboutUser int64, reason string) (int64, error) {
	s.lastReason = reason
	return s.nextID, nil
}

func (s *storeStub) Recent(context.Context, int) ([]model.Complaint, error) {
	return s.recent, nil
}

type notifierStub struct {
	seen []model.Complaint
	err  error
}

func (n *notifierStub) NotifyComplaint(_ context.Context, complaint model.Complaint) error {
	if n.err != nil {
		return n.err
	}
	n.seen = append(n.seen, complaint)
	return nil
}
