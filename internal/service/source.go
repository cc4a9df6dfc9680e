package service

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"ocr-rag/internal/helper"
)

// Source is one uploaded PDF.
type Source interface {
	Name() string
	Read() ([]byte, error)
}

type uploadSource struct {
	header *multipart.FileHeader
}

// NewUploadSource wraps a multipart file from a live request.
func NewUploadSource(header *multipart.FileHeader) Source {
	return uploadSource{header: header}
}

func (u uploadSource) Name() string { return u.header.Filename }

func (u uploadSource) Read() ([]byte, error) {
	f, err := u.header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", u.header.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

type fileSource struct {
	name string
	path string
}

// NewFileSource wraps a PDF already written to disk.
func NewFileSource(name, path string) Source {
	return fileSource{name: name, path: path}
}

func (f fileSource) Name() string { return f.name }
func (f fileSource) Path() string { return f.path }

func (f fileSource) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.name, err)
	}
	return data, nil
}

// SpoolFiles writes decoded uploads under the session's spool directory and
// returns disk-backed sources for them.
func (s *Service) SpoolFiles(sessionID string, names []string, payloads [][]byte) ([]Source, error) {
	if len(names) != len(payloads) {
		return nil, ErrUploadMismatch
	}
	dir := s.spoolDir(sessionID)
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(names))
	for i, name := range names {
		path := filepath.Join(dir, helper.SafeName(name))
		if err := os.WriteFile(path, payloads[i], 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		sources = append(sources, NewFileSource(name, path))
	}
	return sources, nil
}

func (s *Service) spoolDir(sessionID string) string {
	return filepath.Join(s.cfg.Storage.DataDir, helper.SessionKey(sessionID), "uploads")
}
