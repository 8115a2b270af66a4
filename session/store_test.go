package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T, maxPerUser int) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "sb", maxPerUser)
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord(sessionID string, userID int64, created int64) *Record {
	return &Record{
		SessionID: sessionID,
		UserID:    userID,
		Secret:    []byte("sealed-secret-" + sessionID),
		Phone:     []byte("sealed-phone-" + sessionID),
		CreatedAt: created,
	}
}

func TestPutEnforcesCapacity(t *testing.T) {
	store, _, done := newStoreTest(t, 2)
	defer done()
	ctx := context.Background()
	now := time.Now().Unix()

	for i := 0; i < 2; i++ {
		rec := testRecord(fmt.Sprintf("sid-%d", i), 7, now+int64(i))
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	err := store.Put(ctx, testRecord("sid-over", 7, now+10))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := store.Get(ctx, "sid-over"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected put must write nothing, got %v", err)
	}

	// Capacity is per user; a different user still has room.
	if err := store.Put(ctx, testRecord("sid-other", 8, now)); err != nil {
		t.Fatalf("put for second user: %v", err)
	}
}

func TestRevokeFreesCapacitySlot(t *testing.T) {
	store, _, done := newStoreTest(t, 1)
	defer done()
	ctx := context.Background()
	now := time.Now().Unix()

	if err := store.Put(ctx, testRecord("sid-1", 7, now)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, testRecord("sid-2", 7, now+1)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	ok, err := store.Revoke(ctx, "sid-1")
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%t err=%v", ok, err)
	}
	if err := store.Put(ctx, testRecord("sid-2", 7, now+1)); err != nil {
		t.Fatalf("put after revoke: %v", err)
	}
}

func TestRevokeIdempotentAndMonotonic(t *testing.T) {
	store, _, done := newStoreTest(t, 3)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("sid-1", 7, time.Now().Unix())); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err := store.Revoke(ctx, "sid-1")
	if err != nil || !ok {
		t.Fatalf("first revoke: ok=%t err=%v", ok, err)
	}
	ok, err = store.Revoke(ctx, "sid-1")
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if ok {
		t.Fatalf("second revoke must report false")
	}

	ok, err = store.Revoke(ctx, "sid-missing")
	if err != nil {
		t.Fatalf("revoke missing: %v", err)
	}
	if ok {
		t.Fatalf("revoking an unknown session must report false")
	}

	rec, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Revoked {
		t.Fatalf("revoked flag must stay set")
	}
}

func TestListActiveNewestFirst(t *testing.T) {
	store, _, done := newStoreTest(t, 5)
	defer done()
	ctx := context.Background()
	base := time.Now().Unix()

	for i := 0; i < 3; i++ {
		rec := testRecord(fmt.Sprintf("sid-%d", i), 7, base+int64(i))
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if _, err := store.Revoke(ctx, "sid-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	records, err := store.ListActive(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 active records, got %d", len(records))
	}
	if records[0].SessionID != "sid-2" || records[1].SessionID != "sid-0" {
		t.Fatalf("expected newest first [sid-2 sid-0], got [%s %s]",
			records[0].SessionID, records[1].SessionID)
	}
}

func TestCountActiveTracksRevocation(t *testing.T) {
	store, _, done := newStoreTest(t, 5)
	defer done()
	ctx := context.Background()
	now := time.Now().Unix()

	if n, err := store.CountActive(ctx, 7); err != nil || n != 0 {
		t.Fatalf("empty count: n=%d err=%v", n, err)
	}
	if err := store.Put(ctx, testRecord("sid-1", 7, now)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, testRecord("sid-2", 7, now+1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if n, _ := store.CountActive(ctx, 7); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if _, err := store.Revoke(ctx, "sid-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n, _ := store.CountActive(ctx, 7); n != 1 {
		t.Fatalf("expected 1 after revoke, got %d", n)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, _, done := newStoreTest(t, 5)
	defer done()
	ctx := context.Background()
	now := time.Now().Unix()

	for i := 0; i < 3; i++ {
		if err := store.Put(ctx, testRecord(fmt.Sprintf("sid-%d", i), 7, now+int64(i))); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if err := store.Put(ctx, testRecord("sid-other", 8, now)); err != nil {
		t.Fatalf("put other user: %v", err)
	}

	n, err := store.RevokeAllForUser(ctx, 7)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked, got %d", n)
	}
	if count, _ := store.CountActive(ctx, 7); count != 0 {
		t.Fatalf("expected 0 active, got %d", count)
	}
	// Other users are untouched.
	if count, _ := store.CountActive(ctx, 8); count != 1 {
		t.Fatalf("expected other user untouched, got %d", count)
	}

	// Second sweep finds nothing.
	n, err = store.RevokeAllForUser(ctx, 7)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestStatsAggregates(t *testing.T) {
	store, _, done := newStoreTest(t, 5)
	defer done()
	ctx := context.Background()
	now := time.Now().Unix()

	recA := testRecord("sid-a", 7, now)
	recA.HasSecondFactor = true
	if err := store.Put(ctx, recA); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := store.Put(ctx, testRecord("sid-b", 8, now)); err != nil {
		t.Fatalf("put b: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 2 {
		t.Fatalf("expected 2 users, got %d", stats.TotalUsers)
	}
	if stats.ActiveSessions != 2 {
		t.Fatalf("expected 2 active, got %d", stats.ActiveSessions)
	}
	if stats.SecondFactorSessions != 1 {
		t.Fatalf("expected 1 second-factor session, got %d", stats.SecondFactorSessions)
	}
	if stats.CreatedLast24h != 2 {
		t.Fatalf("expected 2 created in window, got %d", stats.CreatedLast24h)
	}

	if _, err := store.Revoke(ctx, "sid-a"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after revoke: %v", err)
	}
	if stats.ActiveSessions != 1 {
		t.Fatalf("expected 1 active after revoke, got %d", stats.ActiveSessions)
	}
	if stats.SecondFactorSessions != 0 {
		t.Fatalf("expected 0 second-factor after revoke, got %d", stats.SecondFactorSessions)
	}
}

func TestGetCorruptRecord(t *testing.T) {
	store, rdb, done := newStoreTest(t, 5)
	defer done()
	ctx := context.Background()

	if err := rdb.HSet(ctx, store.recordKey("sid-bad"), "secret", "x").Err(); err != nil {
		t.Fatalf("seed corrupt hash: %v", err)
	}
	if _, err := store.Get(ctx, "sid-bad"); !errors.Is(err, ErrRecordCorrupt) {
		t.Fatalf("expected ErrRecordCorrupt, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	store, rdb, done := newStoreTest(t, 5)
	done()
	_ = rdb

	_, err := store.Get(context.Background(), "sid-1")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
