package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ocr-rag/internal/helper"
)

type localStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (Storage, error) {
	if err := helper.CreateFolder(baseDir); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	return &localStorage{baseDir: abs}, nil
}

func (s *localStorage) resolve(key string) (string, error) {
	p := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if p != s.baseDir && !strings.HasPrefix(p, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return p, nil
}

func (s *localStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := helper.CreateFolder(filepath.Dir(p)); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *localStorage) Download(ctx context.Context, key string) ([]byte, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes the session directory; prefixes are directory-shaped.
func (s *localStorage) DeletePrefix(ctx context.Context, prefix string) error {
	p, err := s.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	if p == s.baseDir {
		return fmt.Errorf("refusing to delete storage root")
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to delete %s: %w", prefix, err)
	}
	return nil
}
