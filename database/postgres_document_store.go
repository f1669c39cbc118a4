package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/studyspark/models"
)

const (
	queryInsertDocument = `INSERT INTO pdf_documents (id, user_id, filename, file_size, object_key, url, source_url, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	documentColumns     = `id, user_id, filename, file_size, object_key, url, source_url, summary, created_at`
	queryDocumentByID   = `SELECT ` + documentColumns + ` FROM pdf_documents WHERE id = $1`
	queryDocumentsOwned = `SELECT ` + documentColumns + ` FROM pdf_documents WHERE user_id = $1 ORDER BY created_at DESC`
)

type PostgresDocumentStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresDocumentStore(db *sql.DB, timeout time.Duration) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db, timeout: timeout}
}

func (s *PostgresDocumentStore) CreateDocument(ctx context.Context, d *models.Document) error {
	summary, err := json.Marshal(d.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	id := newID()

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, queryInsertDocument,
		id, d.UserID, d.Filename, d.SizeBytes, d.ObjectKey, d.URL, d.SourceURL, summary, d.CreatedAt)
	if err != nil {
		return storageErr("insert document", err)
	}
	d.ID = id
	return nil
}

func (s *PostgresDocumentStore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	d, err := scanDocument(s.db.QueryRowContext(ctx, queryDocumentByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, ErrDocumentNotFound
		}
		return models.Document{}, storageErr("find document", err)
	}
	return d, nil
}

func (s *PostgresDocumentStore) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryDocumentsOwned, userID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("list documents", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list documents", err)
	}
	return out, nil
}

func scanDocument(row rowScanner) (models.Document, error) {
	var (
		d       models.Document
		summary []byte
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.SizeBytes, &d.ObjectKey, &d.URL, &d.SourceURL, &summary, &d.CreatedAt); err != nil {
		return models.Document{}, err
	}
	if err := json.Unmarshal(summary, &d.Summary); err != nil {
		return models.Document{}, fmt.Errorf("decode summary: %w", err)
	}
	return d, nil
}

var _ DocumentStore = (*PostgresDocumentStore)(nil)
