package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ocr-rag/internal/helper"
	"ocr-rag/internal/models"
)

const historyFile = "history.jsonl"

// FileStore appends one JSON line per turn to <baseDir>/<session>/history.jsonl.
type FileStore struct {
	baseDir string
	locks   sync.Map // session id -> *sync.Mutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := helper.CreateFolder(baseDir); err != nil {
		return nil, err
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) lock(sessionID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.baseDir, helper.SessionKey(sessionID), historyFile)
}

func (s *FileStore) Append(ctx context.Context, sessionID string, turn models.HistoryTurn) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal history turn failed: %w", err)
	}

	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	path := s.path(sessionID)
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history failed: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write history failed: %w", err)
	}
	return f.Close()
}

func (s *FileStore) Get(ctx context.Context, sessionID string) ([]models.HistoryTurn, error) {
	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return []models.HistoryTurn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history failed: %w", err)
	}
	defer f.Close()

	turns := []models.HistoryTurn{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var turn models.HistoryTurn
		if err := json.Unmarshal(scanner.Bytes(), &turn); err != nil {
			return nil, fmt.Errorf("parse history line failed: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history failed: %w", err)
	}
	return turns, nil
}

func (s *FileStore) Clear(ctx context.Context, sessionID string) error {
	mu := s.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear history failed: %w", err)
	}
	return nil
}
