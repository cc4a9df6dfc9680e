package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ocr-rag/internal/models"
)

// RedisStore keeps each session's turns in a Redis list; RPUSH is atomic so
// concurrent appends never overwrite each other.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turn models.HistoryTurn) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal history turn failed: %w", err)
	}
	if err := s.client.RPush(ctx, s.key(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("redis push history failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]models.HistoryTurn, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get history failed: %w", err)
	}
	turns := make([]models.HistoryTurn, 0, len(raw))
	for _, item := range raw {
		var turn models.HistoryTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal cached history failed: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
