package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	resetCodeMin = 100000
	resetCodeMax = 999999
)

type ResetCode struct {
	Code      string
	ExpiresAt time.Time
}

// ResetCodeIssuer produces six-digit one-time codes for password resets.
type ResetCodeIssuer struct {
	ttl  time.Duration
	now  func() time.Time
	draw func() (int64, error)
}

func NewResetCodeIssuer(ttl time.Duration, now func() time.Time) (*ResetCodeIssuer, error) {
	if ttl <= 0 {
		return nil, errors.New("auth: reset code lifetime must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &ResetCodeIssuer{ttl: ttl, now: now, draw: drawOffset}, nil
}

func (r *ResetCodeIssuer) TTL() time.Duration { return r.ttl }

func (r *ResetCodeIssuer) Issue() (ResetCode, error) {
	n, err := r.draw()
	if err != nil {
		return ResetCode{}, fmt.Errorf("auth: generate reset code: %w", err)
	}
	return ResetCode{
		Code:      strconv.FormatInt(n+resetCodeMin, 10),
		ExpiresAt: r.now().Add(r.ttl),
	}, nil
}

// drawOffset returns a uniform value in [0, resetCodeMax-resetCodeMin].
func drawOffset() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeMax-resetCodeMin+1))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// IsWellFormedResetCode reports whether s looks like an issued code.
func IsWellFormedResetCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= resetCodeMin && n <= resetCodeMax
}
