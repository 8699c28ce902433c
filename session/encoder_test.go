package session

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"strings"
	"testing"
)

func sampleSession() *Session {
	return &Session{
		SessionID:       "sess-1",
		UserID:          "u1",
		UserAgent:       "cli/1.0",
		IP:              "192.0.2.10",
		RefreshHash:     sha256.Sum256([]byte("current")),
		PrevRefreshHash: sha256.Sum256([]byte("prior")),
		CreatedAt:       1700000000,
		LastRotatedAt:   1700000600,
		ExpiresAt:       1700604800,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleSession()

	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(want.SessionID, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.SessionID != want.SessionID || got.UserID != want.UserID {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if got.UserAgent != want.UserAgent || got.IP != want.IP {
		t.Fatalf("annotation mismatch: %+v", got)
	}
	if got.RefreshHash != want.RefreshHash || got.PrevRefreshHash != want.PrevRefreshHash {
		t.Fatal("hash slots mismatch")
	}
	if got.CreatedAt != want.CreatedAt || got.LastRotatedAt != want.LastRotatedAt || got.ExpiresAt != want.ExpiresAt {
		t.Fatalf("timestamp mismatch: %+v", got)
	}
	if got.Revoked {
		t.Fatal("revoked flag set on fresh session")
	}
}

func TestEncodeDecodeRevokedFlag(t *testing.T) {
	sess := sampleSession()
	sess.Revoked = true

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(sess.SessionID, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Revoked {
		t.Fatal("revoked flag lost in round trip")
	}
}

func TestEncodeDecodeEmptyAnnotations(t *testing.T) {
	sess := sampleSession()
	sess.UserAgent = ""
	sess.IP = ""

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(sess.SessionID, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.UserAgent != "" || got.IP != "" {
		t.Fatalf("expected empty annotations, got %+v", got)
	}
}

func TestEncodeRequiresUserID(t *testing.T) {
	sess := sampleSession()
	sess.UserID = ""
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected error for empty user id")
	}

	sess.UserID = strings.Repeat("x", 256)
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected error for overlong user id")
	}
}

func TestEncodeTruncatesAnnotations(t *testing.T) {
	sess := sampleSession()
	sess.UserAgent = strings.Repeat("a", 300)
	sess.IP = strings.Repeat("b", 300)

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(sess.SessionID, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got.UserAgent) != 255 || len(got.IP) != 255 {
		t.Fatalf("expected 255-byte truncation, got %d and %d", len(got.UserAgent), len(got.IP))
	}
}

func TestDecodeRejectsShortBlob(t *testing.T) {
	if _, err := Decode("sess-1", []byte("short")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data[0] = 2
	if _, err := Decode("sess-1", data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsUnknownFlagBits(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data[1] |= 0x02
	if _, err := Decode("sess-1", data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data = append(data, 0x00)
	if _, err := Decode("sess-1", data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsTruncatedTail(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Decode("sess-1", data[:len(data)-1]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsBitFlippedLengthPrefix(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Inflate the user id length so the tail reads past the end.
	data[fixedHeaderSize] = 0xFF
	if _, err := Decode("sess-1", data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("identical sessions must encode identically")
	}
}
