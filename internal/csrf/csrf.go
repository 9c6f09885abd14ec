// Package csrf issues and validates double-submit CSRF tokens. The raw secret
// goes to the client; only its SHA-256 digest is kept, in an HTTP-only cookie.
package csrf

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"time"
)

// Names shared by the issuer and every validator.
const (
	FieldName  = "csrf_token"
	HeaderName = "X-CSRF-Token"
	CookieName = "csrf_token_hash"
)

const (
	secretLen  = 32 // 256 bits
	DefaultTTL = 24 * time.Hour
)

// Service issues and validates tokens against a Store.
type Service struct {
	secure bool
	ttl    time.Duration
	now    func() time.Time
	rand   io.Reader
}

// NewService returns a token service. secure marks the cookie Secure (production).
func NewService(secure bool) *Service {
	return &Service{secure: secure, ttl: DefaultTTL, now: time.Now, rand: rand.Reader}
}

// Issue generates a fresh secret, overwrites the stored digest and returns the secret.
func (s *Service) Issue(store Store) (string, error) {
	b := make([]byte, secretLen)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(b)

	store.Set(&http.Cookie{
		Name:     CookieName,
		Value:    digest(secret),
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		Expires:  s.now().Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return secret, nil
}

// Validate reports whether candidate hashes to the stored digest.
func (s *Service) Validate(store Store, candidate string) bool {
	if candidate == "" {
		return false
	}
	stored, ok := store.Get(CookieName)
	if !ok || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digest(candidate)), []byte(stored)) == 1
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
