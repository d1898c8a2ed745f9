package creds

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"
)

// makeToken builds an unsigned JWT-shaped token with the given expiry.
func makeToken(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf(`{"sub":"13","exp":%d}`, exp.Unix())))
	return header + "." + payload + ".sig"
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)

	got, err := TokenExpiry(makeToken(exp))
	if err != nil {
		t.Fatalf("TokenExpiry failed: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
}

func TestTokenExpiry_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two segments", "aaa.bbb"},
		{"bad base64", "aaa.!!!.ccc"},
		{"no exp claim", "aaa." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"13"}`)) + ".ccc"},
		{"not json", "aaa." + base64.RawURLEncoding.EncodeToString([]byte(`garbage`)) + ".ccc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := TokenExpiry(tc.token); !errors.Is(err, ErrMalformedToken) {
				t.Errorf("TokenExpiry(%q) = %v, want ErrMalformedToken", tc.token, err)
			}
		})
	}
}

func TestRemainingLifetime(t *testing.T) {
	now := time.Now()

	remaining, err := RemainingLifetime(makeToken(now.Add(5*time.Minute)), now)
	if err != nil {
		t.Fatalf("RemainingLifetime failed: %v", err)
	}
	if remaining < 4*time.Minute+59*time.Second || remaining > 5*time.Minute {
		t.Errorf("remaining = %v, want ~5m", remaining)
	}

	// Already expired tokens report a negative lifetime.
	remaining, err = RemainingLifetime(makeToken(now.Add(-time.Minute)), now)
	if err != nil {
		t.Fatalf("RemainingLifetime failed: %v", err)
	}
	if remaining >= 0 {
		t.Errorf("remaining = %v, want negative", remaining)
	}
}
