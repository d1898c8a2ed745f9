package creds

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrMalformedToken is returned when a token's expiry cannot be read.
var ErrMalformedToken = errors.New("malformed token")

// TokenExpiry decodes the expiry claim embedded in a JWT access token.
// Only the payload segment is read (base64url, JSON field "exp" in seconds
// since epoch); the signature is not verified here - the server does that.
func TokenExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, ErrMalformedToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, ErrMalformedToken
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return time.Time{}, ErrMalformedToken
	}

	return time.Unix(claims.Exp, 0), nil
}

// RemainingLifetime returns how long the token stays valid from now.
// Negative values mean the token is already past its expiry.
func RemainingLifetime(token string, now time.Time) (time.Duration, error) {
	exp, err := TokenExpiry(token)
	if err != nil {
		return 0, err
	}
	return exp.Sub(now), nil
}
