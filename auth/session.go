package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type SessionDeps struct {
	Store    CredentialStore
	Tokens   *TokenCodec
	Resets   *ResetCodeIssuer
	Hasher   SecretHasher
	Mailer   ResetMailer
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

// SessionManager owns every write of refresh and reset secrets. Handlers and
// middleware go through it; stores only persist what it hands them.
type SessionManager struct {
	store    CredentialStore
	tokens   *TokenCodec
	resets   *ResetCodeIssuer
	hasher   SecretHasher
	mailer   ResetMailer
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

func NewSessionManager(d SessionDeps) (*SessionManager, error) {
	if d.Store == nil || d.Tokens == nil || d.Resets == nil {
		return nil, errors.New("auth: session manager needs a store, a token codec and a reset issuer")
	}
	if d.Resets.TTL() >= d.Tokens.RefreshTTL() {
		return nil, errors.New("auth: reset code lifetime must be shorter than refresh token lifetime")
	}
	if d.Hasher.cost == 0 {
		d.Hasher = NewSecretHasher(0)
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &SessionManager{
		store:    d.Store,
		tokens:   d.Tokens,
		resets:   d.Resets,
		hasher:   d.Hasher,
		mailer:   d.Mailer,
		observer: d.Observer,
		log:      d.Logger.With(zap.String("component", "auth.sessions")),
		now:      d.Now,
	}, nil
}

func (m *SessionManager) Tokens() *TokenCodec { return m.tokens }

func (m *SessionManager) VerifyAccess(token string) (Identity, error) {
	return m.tokens.VerifyAccess(token)
}

// Login issues a new pair and replaces whatever refresh chain the user had.
func (m *SessionManager) Login(ctx context.Context, id Identity) (TokenPair, error) {
	pair, err := m.tokens.IssuePair(id)
	if err != nil {
		return TokenPair{}, err
	}
	hash, err := m.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if err := m.store.SetRefreshCredential(ctx, id.UserID, hash, pair.RefreshExpiresAt); err != nil {
		return TokenPair{}, err
	}
	m.observer.LoginIssued()
	m.log.Info("session issued", zap.String("user_id", id.UserID), zap.String("role", string(id.Role)))
	return pair, nil
}

// Refresh rotates a refresh token. The presented token must verify and match
// the stored hash, and the swap to the new hash only lands if nobody rotated
// the same token in between.
func (m *SessionManager) Refresh(ctx context.Context, presented string) (Identity, TokenPair, error) {
	claimed, err := m.tokens.VerifyRefresh(presented)
	if err != nil {
		m.observer.RefreshResult("rejected")
		return Identity{}, TokenPair{}, err
	}

	user, err := m.store.GetByID(ctx, claimed.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.observer.RefreshResult("rejected")
			return Identity{}, TokenPair{}, ErrInvalidRefreshToken
		}
		return Identity{}, TokenPair{}, err
	}
	if !user.IsActive || !m.hasher.Matches(user.RefreshTokenHash, presented) {
		m.observer.RefreshResult("rejected")
		return Identity{}, TokenPair{}, ErrInvalidRefreshToken
	}
	if user.RefreshTokenExpiresAt != nil && !m.now().Before(*user.RefreshTokenExpiresAt) {
		m.observer.RefreshResult("rejected")
		return Identity{}, TokenPair{}, ErrExpiredRefreshToken
	}

	// Role changes since the last issuance take effect here.
	id := Identity{UserID: user.ID, Role: user.Role}
	pair, err := m.tokens.IssuePair(id)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}
	newHash, err := m.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}

	swapped, err := m.store.RotateRefreshCredential(ctx, user.ID, user.RefreshTokenHash, newHash, pair.RefreshExpiresAt)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}
	if !swapped {
		m.observer.RefreshResult("lost_race")
		m.log.Warn("refresh rotation lost", zap.String("user_id", user.ID))
		return Identity{}, TokenPair{}, ErrInvalidRefreshToken
	}
	m.observer.RefreshResult("rotated")
	return id, pair, nil
}

// Logout clears the stored refresh credential, which revokes every refresh
// token the user holds.
func (m *SessionManager) Logout(ctx context.Context, userID string) error {
	if err := m.store.SetRefreshCredential(ctx, userID, "", time.Time{}); err != nil {
		return err
	}
	m.log.Info("session revoked", zap.String("user_id", userID))
	return nil
}

// RequestReset issues a reset code for email, stores its hash and hands the
// plaintext to the mailer. Returns ErrUserNotFound for unknown addresses.
func (m *SessionManager) RequestReset(ctx context.Context, email string) (string, error) {
	user, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	code, err := m.resets.Issue()
	if err != nil {
		return "", err
	}
	hash, err := m.hasher.Hash(code.Code)
	if err != nil {
		return "", err
	}
	if err := m.store.SetResetCredential(ctx, user.ID, hash, code.ExpiresAt); err != nil {
		return "", err
	}
	m.observer.ResetStage("requested")
	if m.mailer != nil {
		if err := m.mailer.SendPasswordReset(ctx, user.Email, code.Code, m.resets.TTL()); err != nil {
			m.log.Error("reset code delivery failed", zap.String("user_id", user.ID), zap.Error(err))
			return "", fmt.Errorf("auth: deliver reset code: %w", err)
		}
	}
	return code.Code, nil
}

// VerifyResetCode checks code against the outstanding reset credential
// without consuming it.
func (m *SessionManager) VerifyResetCode(ctx context.Context, email, code string) (bool, error) {
	if !IsWellFormedResetCode(code) {
		return false, nil
	}
	user, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	cred, err := m.store.GetResetCredential(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if cred == nil || cred.Hash == "" {
		return false, nil
	}
	if !m.now().Before(cred.ExpiresAt) {
		return false, nil
	}
	return m.hasher.Matches(cred.Hash, code), nil
}

func (m *SessionManager) ConsumeReset(ctx context.Context, email string) error {
	user, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := m.store.ClearResetCredential(ctx, user.ID); err != nil {
		return err
	}
	m.observer.ResetStage("consumed")
	return nil
}

// PasswordUpdater stores a new password for user.
type PasswordUpdater func(ctx context.Context, user UserRecord) error

// CompleteReset runs the whole reset: verify the code, apply the new password,
// consume the code and revoke the refresh chain. A bad or expired code yields
// ErrResetCodeInvalid and leaves everything untouched.
func (m *SessionManager) CompleteReset(ctx context.Context, email, code string, apply PasswordUpdater) error {
	ok, err := m.VerifyResetCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		m.observer.ResetStage("rejected")
		return ErrResetCodeInvalid
	}
	user, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := apply(ctx, user); err != nil {
		return err
	}
	if err := m.store.ClearResetCredential(ctx, user.ID); err != nil {
		return err
	}
	m.observer.ResetStage("consumed")
	if err := m.Logout(ctx, user.ID); err != nil {
		return err
	}
	m.log.Info("password reset completed", zap.String("user_id", user.ID))
	return nil
}
