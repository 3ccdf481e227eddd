package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTTL is the fixed session lifetime. Sessions are not renewed on activity.
const DefaultTTL = 7 * 24 * time.Hour

// Store maps opaque session tokens to usernames. Implementations own expiry;
// a token past its TTL behaves exactly like an absent one.
type Store interface {
	// Save binds token to username for ttl.
	Save(ctx context.Context, token, username string, ttl time.Duration) error
	// Lookup returns the bound username, or "" when the token is absent or expired.
	Lookup(ctx context.Context, token string) (string, error)
	// Delete removes the binding. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
}

// NewToken mints an unguessable session token.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
