package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/models"
)

const userColumns = `id, name, email, password_hash, role, is_active,
		refresh_token_hash, refresh_token_expires_at, reset_code_hash, reset_code_expires_at,
		created_at, updated_at`

const (
	queryInsertUser = `INSERT INTO users (id, name, email, password_hash, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	queryEnsureAdmin = `INSERT INTO users (id, name, email, password_hash, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'admin', TRUE, $5, $5)
		ON CONFLICT (email) DO NOTHING`

	queryUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	queryUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	queryListUsers   = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	queryUpdatePassword = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	queryDeleteUser     = `DELETE FROM users WHERE id = $1`

	querySetRefresh    = `UPDATE users SET refresh_token_hash = $2, refresh_token_expires_at = $3 WHERE id = $1`
	queryRotateRefresh = `UPDATE users SET refresh_token_hash = $3, refresh_token_expires_at = $4
		WHERE id = $1 AND refresh_token_hash = $2`
	querySetReset = `UPDATE users SET reset_code_hash = $2, reset_code_expires_at = $3 WHERE id = $1`
	queryGetReset = `SELECT reset_code_hash, reset_code_expires_at FROM users WHERE id = $1`
)

type PostgresUserStore struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

func NewPostgresUserStore(db *sql.DB, timeout time.Duration) *PostgresUserStore {
	return &PostgresUserStore{db: db, timeout: timeout, now: time.Now}
}

func (s *PostgresUserStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	u.ID = newID()
	u.Email = normalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, queryInsertUser,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.IsActive, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return storageErr("insert user", err)
	}
	return nil
}

func (s *PostgresUserStore) EnsureAdmin(ctx context.Context, u *models.User) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, queryEnsureAdmin,
		newID(), u.Name, normalizeEmail(u.Email), u.PasswordHash, s.now().UTC())
	if err != nil {
		return false, storageErr("seed admin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("seed admin", err)
	}
	return n == 1, nil
}

func (s *PostgresUserStore) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.queryUser(ctx, queryUserByID, id)
}

func (s *PostgresUserStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.queryUser(ctx, queryUserByEmail, normalizeEmail(email))
}

func (s *PostgresUserStore) queryUser(ctx context.Context, query string, arg any) (models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, auth.ErrUserNotFound
		}
		return models.User{}, storageErr("find user", err)
	}
	return u, nil
}

func (s *PostgresUserStore) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListUsers, limit, offset)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storageErr("list users", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list users", err)
	}
	return out, nil
}

func (s *PostgresUserStore) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, s.now().UTC()}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", normalizeEmail(*patch.Email))
	}
	if patch.Role != nil {
		add("role", string(*patch.Role))
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.User{}, auth.ErrUserNotFound
	case isUniqueViolation(err):
		return models.User{}, ErrDuplicateEmail
	case err != nil:
		return models.User{}, storageErr("update user", err)
	}
	return u, nil
}

func (s *PostgresUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execOne(ctx, "update password", queryUpdatePassword, id, passwordHash, s.now().UTC())
}

func (s *PostgresUserStore) DeleteUser(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete user", queryDeleteUser, id)
}

// auth.CredentialStore

func (s *PostgresUserStore) GetByID(ctx context.Context, userID string) (auth.UserRecord, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return u.Record(), nil
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (auth.UserRecord, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return u.Record(), nil
}

func (s *PostgresUserStore) SetRefreshCredential(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	return s.execOne(ctx, "set refresh credential", querySetRefresh, userID, nullable(hash), nullableTime(hash, expiresAt))
}

func (s *PostgresUserStore) RotateRefreshCredential(ctx context.Context, userID, expectedHash, newHash string, expiresAt time.Time) (bool, error) {
	if expectedHash == "" {
		return false, nil
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, queryRotateRefresh, userID, expectedHash, newHash, expiresAt.UTC())
	if err != nil {
		return false, storageErr("rotate refresh credential", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("rotate refresh credential", err)
	}
	return n == 1, nil
}

func (s *PostgresUserStore) SetResetCredential(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	return s.execOne(ctx, "set reset credential", querySetReset, userID, nullable(hash), nullableTime(hash, expiresAt))
}

func (s *PostgresUserStore) ClearResetCredential(ctx context.Context, userID string) error {
	return s.execOne(ctx, "clear reset credential", querySetReset, userID, nil, nil)
}

func (s *PostgresUserStore) GetResetCredential(ctx context.Context, userID string) (*auth.ResetCredential, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var (
		hash sql.NullString
		exp  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, queryGetReset, userID).Scan(&hash, &exp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, storageErr("get reset credential", err)
	}
	if !hash.Valid || !exp.Valid {
		return nil, nil
	}
	return &auth.ResetCredential{Hash: hash.String, ExpiresAt: exp.Time}, nil
}

func (s *PostgresUserStore) execOne(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u                      models.User
		role                   string
		refreshHash, resetHash sql.NullString
		refreshExp, resetExp   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsActive,
		&refreshHash, &refreshExp, &resetHash, &resetExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	u.Role = auth.Role(role)
	u.RefreshTokenHash = refreshHash.String
	if refreshExp.Valid {
		t := refreshExp.Time
		u.RefreshTokenExpiresAt = &t
	}
	u.ResetCodeHash = resetHash.String
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetCodeExpiresAt = &t
	}
	return u, nil
}

// nullable maps an empty secret to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime writes the expiry only alongside a hash so the pair is always set or cleared together.
func nullableTime(hash string, t time.Time) any {
	if hash == "" {
		return nil
	}
	return t.UTC()
}

var _ UserStore = (*PostgresUserStore)(nil)
