package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretHasher produces one-way hashes of refresh tokens and reset codes.
// Inputs are digested with SHA-256 first because bcrypt truncates at 72 bytes
// and a signed JWT is always longer than that.
type SecretHasher struct {
	cost int
}

func NewSecretHasher(cost int) SecretHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return SecretHasher{cost: cost}
}

func (h SecretHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(digest(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(b), nil
}

// Matches reports whether secret hashes to stored. An empty stored hash never matches.
func (h SecretHasher) Matches(stored, secret string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), digest(secret)) == nil
}

func digest(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte(hex.EncodeToString(sum[:]))
}
