package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or rotation hands back to the caller.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

// TokenCodec signs and verifies HS256 access and refresh tokens. The two
// kinds use independent secrets, so neither verifies as the other.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: token secrets must be set")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
	}, nil
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) IssueAccess(id Identity) (string, time.Time, error) {
	return c.issue(id, c.accessSecret, c.accessTTL)
}

func (c *TokenCodec) IssueRefresh(id Identity) (string, time.Time, error) {
	return c.issue(id, c.refreshSecret, c.refreshTTL)
}

// IssuePair signs a fresh access and refresh token for id.
func (c *TokenCodec) IssuePair(id Identity) (TokenPair, error) {
	access, accessExp, err := c.IssueAccess(id)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := c.IssueRefresh(id)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (c *TokenCodec) VerifyAccess(token string) (Identity, error) {
	return c.verify(token, c.accessSecret, ErrInvalidAccessToken, ErrExpiredAccessToken)
}

func (c *TokenCodec) VerifyRefresh(token string) (Identity, error) {
	return c.verify(token, c.refreshSecret, ErrInvalidRefreshToken, ErrExpiredRefreshToken)
}

func (c *TokenCodec) issue(id Identity, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if id.UserID == "" {
		return "", time.Time{}, errors.New("auth: identity without user id")
	}
	if _, err := ParseRole(string(id.Role)); err != nil {
		return "", time.Time{}, err
	}
	now := c.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID: id.UserID,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	// NumericDate has second precision; report what the token actually carries.
	return signed, claims.ExpiresAt.Time, nil
}

func (c *TokenCodec) verify(raw string, secret []byte, errInvalid, errExpired error) (Identity, error) {
	if raw == "" {
		return Identity{}, errInvalid
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errExpired
		}
		return Identity{}, errInvalid
	}
	if !token.Valid || claims.UserID == "" {
		return Identity{}, errInvalid
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, errInvalid
	}
	return Identity{UserID: claims.UserID, Role: role}, nil
}
