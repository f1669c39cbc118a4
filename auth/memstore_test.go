package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memUser struct {
	rec   UserRecord
	reset *ResetCredential
}

// memStore is a CredentialStore with the same compare-and-swap semantics as
// the database adapters.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*memUser
	failAll error
}

func newMemStore(users ...UserRecord) *memStore {
	s := &memStore{users: make(map[string]*memUser)}
	for _, u := range users {
		s.users[u.ID] = &memUser{rec: u}
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return UserRecord{}, s.failAll
	}
	u, ok := s.users[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u.rec, nil
}

func (s *memStore) GetByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return UserRecord{}, s.failAll
	}
	for _, u := range s.users {
		if strings.EqualFold(u.rec.Email, email) {
			return u.rec, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (s *memStore) SetRefreshCredential(_ context.Context, id, hash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.rec.RefreshTokenHash = hash
	if hash == "" {
		u.rec.RefreshTokenExpiresAt = nil
	} else {
		u.rec.RefreshTokenExpiresAt = &exp
	}
	return nil
}

func (s *memStore) RotateRefreshCredential(_ context.Context, id, expected, next string, exp time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return false, s.failAll
	}
	u, ok := s.users[id]
	if !ok || u.rec.RefreshTokenHash == "" || u.rec.RefreshTokenHash != expected {
		return false, nil
	}
	u.rec.RefreshTokenHash = next
	u.rec.RefreshTokenExpiresAt = &exp
	return true, nil
}

func (s *memStore) SetResetCredential(_ context.Context, id, hash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.reset = &ResetCredential{Hash: hash, ExpiresAt: exp}
	return nil
}

func (s *memStore) ClearResetCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.reset = nil
	return nil
}

func (s *memStore) GetResetCredential(_ context.Context, id string) (*ResetCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if u.reset == nil {
		return nil, nil
	}
	cp := *u.reset
	return &cp, nil
}

func (s *memStore) setRole(id string, role Role) {
	s.mu.Lock()
	s.users[id].rec.Role = role
	s.mu.Unlock()
}

type sentMail struct {
	to, code string
	ttl      time.Duration
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, code: code, ttl: ttl})
	return nil
}
