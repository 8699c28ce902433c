package credlock

import (
	"encoding/base32"
	"testing"
	"time"
)

// RFC 6238 appendix B vectors, SHA-1, 8 digits, 30 second steps.
func TestVerifyCodeRFC6238Vectors(t *testing.T) {
	manager := newTOTPManager(MFAConfig{
		Issuer:     "credlock",
		Digits:     8,
		Period:     30,
		Skew:       0,
		SecretSize: 20,
	})
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).
		EncodeToString([]byte("12345678901234567890"))

	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		ok, counter, err := manager.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil {
			t.Fatalf("vector at t=%d errored: %v", tc.ts, err)
		}
		if !ok {
			t.Fatalf("vector at t=%d rejected", tc.ts)
		}
		if want := uint64(tc.ts / 30); counter != want {
			t.Fatalf("vector at t=%d matched counter %d, want %d", tc.ts, counter, want)
		}
	}

	if ok, _, err := manager.VerifyCode(secret, "94287082", time.Unix(2000000000, 0)); err != nil || ok {
		t.Fatalf("code from the wrong step must be rejected, ok=%v err=%v", ok, err)
	}
}
