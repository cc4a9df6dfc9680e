package history

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ocr-rag/internal/db"
	"ocr-rag/internal/models"
)

// PostgresStore keeps turns in the history_turns table.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(ctx context.Context, bunDB *bun.DB) (*PostgresStore, error) {
	if err := db.InitDB(ctx, bunDB); err != nil {
		return nil, fmt.Errorf("init history table failed: %w", err)
	}
	return &PostgresStore{db: bunDB}, nil
}

func (s *PostgresStore) Append(ctx context.Context, sessionID string, turn models.HistoryTurn) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	row := &db.HistoryTurn{
		SessionID:   sessionID,
		Question:    turn.Question,
		Answer:      turn.Answer,
		ModelLabel:  turn.ModelLabel,
		SourceLabel: turn.SourceLabel,
		Timestamp:   turn.Timestamp,
	}
	if err := db.InsertTurn(ctx, s.db, row); err != nil {
		return fmt.Errorf("insert history turn failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) ([]models.HistoryTurn, error) {
	rows, err := db.ListTurns(ctx, s.db, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list history failed: %w", err)
	}
	turns := make([]models.HistoryTurn, len(rows))
	for i, r := range rows {
		turns[i] = models.HistoryTurn{
			Question:    r.Question,
			Answer:      r.Answer,
			ModelLabel:  r.ModelLabel,
			SourceLabel: r.SourceLabel,
			Timestamp:   r.Timestamp,
		}
	}
	return turns, nil
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if err := db.DeleteTurns(ctx, s.db, sessionID); err != nil {
		return fmt.Errorf("clear history failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
