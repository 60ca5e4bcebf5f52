package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soilgate/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// セッションの有効期限
const SessionTTL = 24 * time.Hour

const sessionKeyPrefix = "session:"

var ErrSessionNotFound = errors.New("session not found")

// SessionStore はRedisにセッション情報を保存します。
type SessionStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionStore(rdb *redis.Client, logger *zap.Logger) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: SessionTTL, logger: logger}
}

// Create は新しいセッションIDを発行して保存します。
func (s *SessionStore) Create(ctx context.Context, p *models.Principal) (*models.SessionInfo, error) {
	info := &models.SessionInfo{
		SessionID: uuid.New().String(),
		UserID:    p.ID,
		Role:      p.Role,
		GameID:    p.GameID,
		CreatedAt: time.Now(),
	}

	// セッション情報をJSON形式でエンコード
	sessionInfoJSON, err := json.Marshal(info)
	if err != nil {
		s.logger.Error("Error encoding session info", zap.Error(err))
		return nil, err
	}

	if err := s.rdb.Set(ctx, sessionKeyPrefix+info.SessionID, sessionInfoJSON, s.ttl).Err(); err != nil {
		s.logger.Error("Error storing session info in Redis", zap.Error(err))
		return nil, err
	}
	return info, nil
}

// Lookup はセッションIDからセッション情報を取得します。
func (s *SessionStore) Lookup(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sessionInfoJSON, err := s.rdb.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		s.logger.Error("Failed to retrieve session info", zap.Error(err))
		return nil, err
	}

	var info models.SessionInfo
	if err := json.Unmarshal([]byte(sessionInfoJSON), &info); err != nil {
		s.logger.Error("Failed to decode session info", zap.Error(err))
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &info, nil
}

// Delete はログアウト時にセッションを削除します。
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
