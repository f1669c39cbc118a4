package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/models"
)

var (
	ErrDuplicateEmail   = errors.New("database: email already registered")
	ErrDocumentNotFound = errors.New("database: document not found")
)

// UserStore is the user directory. Besides profile CRUD it carries the
// credential slots the session manager writes through auth.CredentialStore.
type UserStore interface {
	auth.CredentialStore

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error
	// EnsureAdmin creates the user if the email is free and leaves an existing row alone.
	EnsureAdmin(ctx context.Context, u *models.User) (created bool, err error)
	Ping(ctx context.Context) error
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id string) (models.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, auth.ErrStorage, err)
}
