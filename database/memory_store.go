package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/models"
)

// MemoryStore keeps users and documents in process. It backs the "memory"
// driver for local runs and the HTTP tests; the refresh rotation keeps the
// same compare-and-swap contract as the database adapters.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
	docs  map[string]models.Document
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		users: make(map[string]*models.User),
		docs:  make(map[string]models.Document),
		now:   now,
	}
}

var (
	_ UserStore     = (*MemoryStore)(nil)
	_ DocumentStore = (*MemoryStore)(nil)
)

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) emailTaken(email, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(u.Email)
	if s.emailTaken(email, "") {
		return ErrDuplicateEmail
	}
	now := s.now().UTC()
	stored := models.User{
		ID:           newID(),
		Name:         u.Name,
		Email:        email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		IsActive:     u.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[stored.ID] = &stored
	*u = stored
	return nil
}

func (s *MemoryStore) EnsureAdmin(ctx context.Context, u *models.User) (bool, error) {
	u.Role = auth.RoleAdmin
	u.IsActive = true
	switch err := s.CreateUser(ctx, u); err {
	case nil:
		return true, nil
	case ErrDuplicateEmail:
		return false, nil
	default:
		return false, err
	}
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}
	return *u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = normalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return models.User{}, auth.ErrUserNotFound
}

func (s *MemoryStore) ListUsers(_ context.Context, limit, offset int) ([]models.User, error) {
	s.mu.RLock()
	all := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, *u)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []models.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, id string, patch models.UserPatch) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if s.emailTaken(email, id) {
			return models.User{}, ErrDuplicateEmail
		}
		u.Email = email
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	u.UpdatedAt = s.now().UTC()
	return *u, nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id, hash string) error {
	return s.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (s *MemoryStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) update(id string, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (auth.UserRecord, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return u.Record(), nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (auth.UserRecord, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return u.Record(), nil
}

func (s *MemoryStore) SetRefreshCredential(_ context.Context, id, hash string, exp time.Time) error {
	return s.update(id, func(u *models.User) {
		u.RefreshTokenHash, u.RefreshTokenExpiresAt = hash, timeRef(hash, exp)
	})
}

func (s *MemoryStore) RotateRefreshCredential(_ context.Context, id, expected, next string, exp time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.RefreshTokenHash == "" || u.RefreshTokenHash != expected {
		return false, nil
	}
	u.RefreshTokenHash, u.RefreshTokenExpiresAt = next, timeRef(next, exp)
	u.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *MemoryStore) SetResetCredential(_ context.Context, id, hash string, exp time.Time) error {
	return s.update(id, func(u *models.User) {
		u.ResetCodeHash, u.ResetCodeExpiresAt = hash, timeRef(hash, exp)
	})
}

func (s *MemoryStore) ClearResetCredential(_ context.Context, id string) error {
	return s.update(id, func(u *models.User) {
		u.ResetCodeHash, u.ResetCodeExpiresAt = "", nil
	})
}

func (s *MemoryStore) GetResetCredential(_ context.Context, id string) (*auth.ResetCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	if u.ResetCodeHash == "" || u.ResetCodeExpiresAt == nil {
		return nil, nil
	}
	return &auth.ResetCredential{Hash: u.ResetCodeHash, ExpiresAt: *u.ResetCodeExpiresAt}, nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	d.ID = newID()
	s.docs[d.ID] = *d
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return models.Document{}, ErrDocumentNotFound
	}
	return d, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, userID string) ([]models.Document, error) {
	s.mu.RLock()
	out := []models.Document{}
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func timeRef(hash string, t time.Time) *time.Time {
	if hash == "" {
		return nil
	}
	t = t.UTC()
	return &t
}
