package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"ocr-rag/internal/config"
)

// HistoryTurn is one row of the history_turns table. Seq gives append order.
type HistoryTurn struct {
	bun.BaseModel `bun:"table:history_turns,alias:h"`
	Seq           int64     `bun:"seq,pk,autoincrement"`
	SessionID     string    `bun:"session_id,notnull"`
	Question      string    `bun:"question,notnull"`
	Answer        string    `bun:"answer,notnull"`
	ModelLabel    string    `bun:"model_label"`
	SourceLabel   string    `bun:"source_label"`
	Timestamp     string    `bun:"timestamp"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: bun's pgdriver
// (default) or lib/pq.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch cfg.Driver {
	case "pq":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*HistoryTurn)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().
		Model((*HistoryTurn)(nil)).
		Index("history_turns_session_idx").
		IfNotExists().
		Column("session_id", "seq").
		Exec(ctx)
	return err
}

func InsertTurn(ctx context.Context, db *bun.DB, turn *HistoryTurn) error {
	_, err := db.NewInsert().Model(turn).Exec(ctx)
	return err
}

func ListTurns(ctx context.Context, db *bun.DB, sessionID string) ([]HistoryTurn, error) {
	var turns []HistoryTurn
	err := db.NewSelect().
		Model(&turns).
		Where("session_id = ?", sessionID).
		OrderExpr("seq ASC").
		Scan(ctx)
	return turns, err
}

func DeleteTurns(ctx context.Context, db *bun.DB, sessionID string) error {
	_, err := db.NewDelete().Model((*HistoryTurn)(nil)).Where("session_id = ?", sessionID).Exec(ctx)
	return err
}

// drop table history_turns
func DropTurns(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*HistoryTurn)(nil)).IfExists().Exec(ctx)
	return err
}
