package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// RedisSessionHistory persists sessions in Redis. Session metadata lives
// in a JSON string key, the message history in a list, and a per-user
// sorted set indexes sessions by last activity.
type RedisSessionHistory struct {
	client    *redis.Client
	keyPrefix string

	Now func() time.Time
}

// NewRedisSessionHistory wraps an existing client. The caller keeps
// ownership of the client's lifetime when using this constructor.
func NewRedisSessionHistory(client *redis.Client) *RedisSessionHistory {
	return &RedisSessionHistory{
		client:    client,
		keyPrefix: "agentscope:",
		Now:       time.Now,
	}
}

// NewRedisSessionHistoryFromURL connects using a redis:// URL.
func NewRedisSessionHistoryFromURL(url string) (*RedisSessionHistory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisSessionHistory(redis.NewClient(opts)), nil
}

func (s *RedisSessionHistory) Name() string { return "session_history/redis" }

func (s *RedisSessionHistory) Start(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (s *RedisSessionHistory) Stop(ctx context.Context) error {
	return s.client.Close()
}

func (s *RedisSessionHistory) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionHistory) metaKey(userID, sessionID string) string {
	return s.keyPrefix + "session:" + userID + ":" + sessionID
}

func (s *RedisSessionHistory) messagesKey(userID, sessionID string) string {
	return s.keyPrefix + "session:" + userID + ":" + sessionID + ":messages"
}

func (s *RedisSessionHistory) indexKey(userID string) string {
	return s.keyPrefix + "sessions:" + userID
}

func (s *RedisSessionHistory) CreateSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Return the existing session untouched.
	if existing, err := s.GetSession(ctx, userID, sessionID); err == nil {
		return existing, nil
	}

	now := s.Now()
	sess := &types.Session{
		ID:        sessionID,
		UserID:    userID,
		Messages:  []*types.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	meta := sess.Clone()
	meta.Messages = nil
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.metaKey(userID, sessionID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(userID), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: sessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return sess, nil
}

func (s *RedisSessionHistory) GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	data, err := s.client.Get(ctx, s.metaKey(userID, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, errSessionNotFound(sessionID)
	}
	if err != nil {
		return nil, err
	}

	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.messagesKey(userID, sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	sess.Messages = make([]*types.Message, 0, len(raw))
	for _, item := range raw {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		sess.Messages = append(sess.Messages, &msg)
	}

	return &sess, nil
}

func (s *RedisSessionHistory) DeleteSession(ctx context.Context, userID, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.metaKey(userID, sessionID))
	pipe.Del(ctx, s.messagesKey(userID, sessionID))
	pipe.ZRem(ctx, s.indexKey(userID), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessionHistory) ListSessions(ctx context.Context, userID string) ([]*types.Session, error) {
	// Most recent first.
	ids, err := s.client.ZRevRange(ctx, s.indexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*types.Session, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.metaKey(userID, id)).Bytes()
		if err != nil {
			continue
		}
		var sess types.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

func (s *RedisSessionHistory) AppendMessage(ctx context.Context, userID, sessionID string, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		created, cerr := s.CreateSession(ctx, userID, sessionID)
		if cerr != nil {
			return cerr
		}
		sess = created
	}

	now := s.Now()
	sess.UpdatedAt = now
	meta := sess.Clone()
	meta.Messages = nil
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		pipe.RPush(ctx, s.messagesKey(userID, sessionID), data)
	}
	pipe.Set(ctx, s.metaKey(userID, sessionID), metaData, 0)
	pipe.ZAdd(ctx, s.indexKey(userID), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: sessionID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

var _ SessionHistoryService = (*RedisSessionHistory)(nil)
