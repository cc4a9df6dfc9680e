package history

import (
	"context"
	"fmt"
	"io"

	"ocr-rag/internal/config"
	"ocr-rag/internal/db"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the store selected by cfg.History.Backend. The returned closer
// releases backend connections and is never nil.
func New(ctx context.Context, cfg *config.Config) (Store, io.Closer, error) {
	switch cfg.History.Backend {
	case "file", "":
		s, err := NewFileStore(cfg.Storage.DataDir)
		return s, nopCloser{}, err
	case "memory":
		return NewMemoryStore(), nopCloser{}, nil
	case "redis":
		rc := cfg.History.Redis
		client, err := NewRedisClient(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return nil, nil, err
		}
		s := NewRedisStore(client, rc.KeyPrefix)
		return s, s, nil
	case "postgres":
		sqldb, err := db.ConnectDB(&cfg.History.Database)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewPostgresStore(ctx, db.NewDB(sqldb, cfg.History.Database.Debug))
		if err != nil {
			sqldb.Close()
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unsupported history backend: %s", cfg.History.Backend)
	}
}
