// Package storage keeps per-session artifacts: uploaded PDFs, page images,
// coordinate tables and the consolidated OCR text.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"ocr-rag/internal/config"
	"ocr-rag/internal/helper"
)

var ErrNotFound = errors.New("artifact not found")

type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key under prefix; nothing to remove is not an error.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key joins a session id and an artifact name into a storage key.
func Key(sessionID, name string) string {
	return path.Join(helper.SessionKey(sessionID), helper.SafeName(name))
}

// SessionPrefix is the key prefix holding all artifacts of a session.
func SessionPrefix(sessionID string) string {
	return helper.SessionKey(sessionID) + "/"
}

// ContentType guesses the MIME type from the artifact extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".txt", ".tsv":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStorage(cfg.DataDir)
	case "minio", "s3":
		return NewS3Storage(ctx, &cfg.MinIO)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
