package credlock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newChallengeStore(t *testing.T) (*mfaChallengeStore, func(string) bool) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	return newMFAChallengeStore(rdb), mr.Exists
}

func TestChallengeSaveGetRoundTrip(t *testing.T) {
	store, exists := newChallengeStore(t)
	ctx := context.Background()
	now := time.Now()

	record := &mfaChallenge{
		UserID:    "u1",
		ExpiresAt: now.Add(3 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "c1", record, 3*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !exists("clc:c1") {
		t.Fatal("expected challenge record in redis")
	}

	got, err := store.Get(ctx, "c1", now)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.ExpiresAt != record.ExpiresAt || got.Attempts != 0 {
		t.Fatalf("record mismatch: %+v", got)
	}
}

func TestChallengeGetMissing(t *testing.T) {
	store, _ := newChallengeStore(t)

	_, err := store.Get(context.Background(), "ghost", time.Now())
	if !errors.Is(err, errMFAChallengeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestChallengeGetExpiredDeletesRecord(t *testing.T) {
	store, exists := newChallengeStore(t)
	ctx := context.Background()
	now := time.Now()

	record := &mfaChallenge{
		UserID:    "u1",
		ExpiresAt: now.Add(-time.Second).Unix(),
	}
	if err := store.Save(ctx, "c1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := store.Get(ctx, "c1", now)
	if !errors.Is(err, errMFAChallengeExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if exists("clc:c1") {
		t.Fatal("expected lapsed challenge removed")
	}
}

func TestChallengeDeleteReportsOwnership(t *testing.T) {
	store, _ := newChallengeStore(t)
	ctx := context.Background()

	record := &mfaChallenge{
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	}
	if err := store.Save(ctx, "c1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deleted, err := store.Delete(ctx, "c1")
	if err != nil || !deleted {
		t.Fatalf("expected first delete to win, got %v (%v)", deleted, err)
	}
	deleted, err = store.Delete(ctx, "c1")
	if err != nil || deleted {
		t.Fatalf("expected second delete to lose, got %v (%v)", deleted, err)
	}
}

func TestChallengeRecordFailureCountsToCap(t *testing.T) {
	store, exists := newChallengeStore(t)
	ctx := context.Background()
	now := time.Now()

	record := &mfaChallenge{
		UserID:    "u1",
		ExpiresAt: now.Add(3 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "c1", record, 3*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 1; i <= 2; i++ {
		exceeded, err := store.RecordFailure(ctx, "c1", 3, now)
		if err != nil || exceeded {
			t.Fatalf("failure %d: expected under cap, got %v (%v)", i, exceeded, err)
		}
		got, err := store.Get(ctx, "c1", now)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if int(got.Attempts) != i {
			t.Fatalf("expected %d attempts, got %d", i, got.Attempts)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "c1", 3, now)
	if err != nil || !exceeded {
		t.Fatalf("expected cap reached, got %v (%v)", exceeded, err)
	}
	if exists("clc:c1") {
		t.Fatal("expected challenge deleted at the cap")
	}
}

func TestChallengeRecordFailureMissing(t *testing.T) {
	store, _ := newChallengeStore(t)

	_, err := store.RecordFailure(context.Background(), "ghost", 3, time.Now())
	if !errors.Is(err, errMFAChallengeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestChallengeRecordFailureExpired(t *testing.T) {
	store, exists := newChallengeStore(t)
	ctx := context.Background()
	now := time.Now()

	record := &mfaChallenge{
		UserID:    "u1",
		ExpiresAt: now.Add(-time.Second).Unix(),
	}
	if err := store.Save(ctx, "c1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := store.RecordFailure(ctx, "c1", 3, now)
	if !errors.Is(err, errMFAChallengeExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if exists("clc:c1") {
		t.Fatal("expected lapsed challenge removed")
	}
}

func TestChallengeFailureKeepsAbsoluteDeadline(t *testing.T) {
	store, _ := newChallengeStore(t)
	ctx := context.Background()
	now := time.Now()

	record := &mfaChallenge{
		UserID:    "u1",
		ExpiresAt: now.Add(3 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "c1", record, 3*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A failure one minute in must not push the deadline out.
	later := now.Add(time.Minute)
	if _, err := store.RecordFailure(ctx, "c1", 3, later); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	got, err := store.Get(ctx, "c1", later)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ExpiresAt != record.ExpiresAt {
		t.Fatalf("deadline moved: %d -> %d", record.ExpiresAt, got.ExpiresAt)
	}
}

func TestChallengeCodecRejectsGarbage(t *testing.T) {
	if _, err := decodeMFAChallenge(nil); err == nil {
		t.Fatal("expected error for empty blob")
	}
	if _, err := decodeMFAChallenge([]byte{2, 0, 0}); err == nil {
		t.Fatal("expected error for unknown version")
	}

	encoded, err := encodeMFAChallenge(&mfaChallenge{
		UserID:    "u1",
		ExpiresAt: 1700000000,
		Attempts:  2,
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := decodeMFAChallenge(encoded[:len(encoded)-1]); err == nil {
		t.Fatal("expected error for truncated blob")
	}

	got, err := decodeMFAChallenge(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.UserID != "u1" || got.ExpiresAt != 1700000000 || got.Attempts != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
