package auth

import (
	"context"
	"time"
)

// UserRecord is the slice of a user row the session layer needs.
type UserRecord struct {
	ID                    string
	Email                 string
	Role                  Role
	PasswordHash          string
	IsActive              bool
	RefreshTokenHash      string
	RefreshTokenExpiresAt *time.Time
}

type ResetCredential struct {
	Hash      string
	ExpiresAt time.Time
}

// CredentialStore persists secret hashes on user rows. Implementations write a
// hash and its expiry in one statement and wrap failures with ErrStorage.
// Lookups of a missing user return ErrUserNotFound.
type CredentialStore interface {
	GetByID(ctx context.Context, userID string) (UserRecord, error)
	GetByEmail(ctx context.Context, email string) (UserRecord, error)

	// SetRefreshCredential overwrites the refresh slot. An empty hash clears it.
	SetRefreshCredential(ctx context.Context, userID, hash string, expiresAt time.Time) error
	// RotateRefreshCredential replaces the refresh hash only if it still equals
	// expectedHash, reporting false when another writer got there first.
	RotateRefreshCredential(ctx context.Context, userID, expectedHash, newHash string, expiresAt time.Time) (bool, error)

	SetResetCredential(ctx context.Context, userID, hash string, expiresAt time.Time) error
	ClearResetCredential(ctx context.Context, userID string) error
	// GetResetCredential returns nil when no code is outstanding.
	GetResetCredential(ctx context.Context, userID string) (*ResetCredential, error)
}

// ResetMailer delivers a plaintext reset code to its owner.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, code string, ttl time.Duration) error
}

// Observer receives session lifecycle events, typically for metrics.
type Observer interface {
	LoginIssued()
	RefreshResult(result string)
	ResetStage(stage string)
}

type nopObserver struct{}

func (nopObserver) LoginIssued()         {}
func (nopObserver) RefreshResult(string) {}
func (nopObserver) ResetStage(string)    {}
