package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/convention-registry/member-api/internal/ports/out/idempotency"
)

func TestStore_PutThenGet(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Hour)
	fp := idempotency.Fingerprint{
		Key:      "k1",
		Actor:    "admin@example.com",
		Method:   "POST",
		Route:    "/people",
		BodyHash: "abc123",
	}
	rec := idempotency.Record{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"status":"success"}`),
	}

	if err := s.Put(context.Background(), fp, rec); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	got, ok, err := s.Get(context.Background(), fp)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if !ok {
		t.Fatalf("Get() ok=false, want true")
	}
	if got.StatusCode != rec.StatusCode || got.ContentType != rec.ContentType || string(got.Body) != string(rec.Body) {
		t.Fatalf("Get()=%+v, want %+v", got, rec)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("Get().CreatedAt is zero")
	}
}

func TestStore_ExpiredRecordIsNotReplayed(t *testing.T) {
	t.Parallel()

	now := time.Unix(10_000, 0).UTC()
	s := NewStore(time.Minute)
	s.now = func() time.Time { return now }

	fp := idempotency.Fingerprint{Key: "k1", Actor: "a", Method: "POST", Route: "/people"}
	if err := s.Put(context.Background(), fp, idempotency.Record{StatusCode: 200}); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, err := s.Get(context.Background(), fp); err != nil || ok {
		t.Fatalf("Get() ok=%v err=%v, want miss", ok, err)
	}
}

func TestStore_PurgeRemovesExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(10_000, 0).UTC()
	s := NewStore(time.Minute)
	s.now = func() time.Time { return now }

	old := idempotency.Fingerprint{Key: "old", Actor: "a", Method: "POST", Route: "/people"}
	if err := s.Put(context.Background(), old, idempotency.Record{StatusCode: 200}); err != nil {
		t.Fatalf("Put(old) err=%v", err)
	}
	now = now.Add(2 * time.Minute)
	fresh := idempotency.Fingerprint{Key: "fresh", Actor: "a", Method: "POST", Route: "/people"}
	if err := s.Put(context.Background(), fresh, idempotency.Record{StatusCode: 200}); err != nil {
		t.Fatalf("Put(fresh) err=%v", err)
	}

	n, err := s.Purge(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Purge()=%d,%v, want 1,nil", n, err)
	}
	if _, ok, _ := s.Get(context.Background(), fresh); !ok {
		t.Fatalf("Get(fresh) ok=false after purge")
	}
}
