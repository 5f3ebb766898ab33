package razorpaywebhook

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	keys   map[string]time.Duration
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]time.Duration{}}
}

func (s *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = ttl
	return true, nil
}

func (s *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}

func (s *fakeStore) WebhookEventKey(provider, eventID string) string {
	return "lh:webhook:" + provider + ":" + eventID
}

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	store := newFakeStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || seen {
		t.Fatalf("first delivery: seen=%v err=%v", seen, err)
	}
	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || !seen {
		t.Fatalf("redelivery: seen=%v err=%v", seen, err)
	}
	if ttl := store.keys["lh:webhook:razorpay:evt_1"]; ttl != time.Hour {
		t.Fatalf("expected ttl to be forwarded, got %v", ttl)
	}

	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(context.Background(), "evt_1")
	if seen {
		t.Fatalf("expected event to be processable after delete")
	}
}

func TestIdempotencyGuardErrors(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Hour); err == nil {
		t.Fatalf("expected nil store to be rejected")
	}
	store := newFakeStore()
	guard, _ := NewIdempotencyGuard(store, time.Hour)
	if _, err := guard.CheckAndMark(context.Background(), ""); err == nil {
		t.Fatalf("expected empty event id to be rejected")
	}
	store.setErr = errors.New("redis down")
	if _, err := guard.CheckAndMark(context.Background(), "evt_2"); err == nil {
		t.Fatalf("expected store error to surface")
	}
}
