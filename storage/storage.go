package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/princinho/studyspark/utils"
)

// ObjectStore keeps uploaded files. Put returns the public URL of the stored object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// DocumentKey names an uploaded document: documents/<user>/<unix>-<uuid>-<slug>.pdf
func DocumentKey(userID, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".pdf"
	}
	slug := utils.GenerateSlug(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if slug == "" {
		slug = "document"
	}
	return fmt.Sprintf("documents/%s/%d-%s-%s%s", userID, now.UTC().Unix(), uuid.NewString(), slug, ext)
}
