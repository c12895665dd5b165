package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// RedisMemory persists long-term memory in Redis. Each user session
// maps to a list of JSON messages; a set tracks the user's sessions.
type RedisMemory struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisMemory wraps an existing client.
func NewRedisMemory(client *redis.Client) *RedisMemory {
	return &RedisMemory{
		client:    client,
		keyPrefix: "agentscope:",
	}
}

// NewRedisMemoryFromURL connects using a redis:// URL.
func NewRedisMemoryFromURL(url string) (*RedisMemory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisMemory(redis.NewClient(opts)), nil
}

func (m *RedisMemory) Name() string { return "memory/redis" }

func (m *RedisMemory) Start(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (m *RedisMemory) Stop(ctx context.Context) error {
	return m.client.Close()
}

func (m *RedisMemory) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMemory) memoryKey(userID, session string) string {
	return m.keyPrefix + "memory:" + userID + ":" + session
}

func (m *RedisMemory) sessionsKey(userID string) string {
	return m.keyPrefix + "memory_sessions:" + userID
}

func (m *RedisMemory) AddMemory(ctx context.Context, userID string, msgs []*types.Message, sessionID string) error {
	if len(msgs) == 0 {
		return nil
	}
	key := memorySessionKey(sessionID)

	pipe := m.client.Pipeline()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		pipe.RPush(ctx, m.memoryKey(userID, key), data)
	}
	pipe.SAdd(ctx, m.sessionsKey(userID), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMemory) SearchMemory(ctx context.Context, userID string, query []*types.Message, topK int) ([]*types.Message, error) {
	keywords := queryKeywords(query)

	all, err := m.loadAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rankByOverlap(all, keywords, topK), nil
}

func (m *RedisMemory) ListMemory(ctx context.Context, userID string, pageNum, pageSize int) ([]*types.Message, error) {
	all, err := m.loadAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return pageSlice(all, pageNum, pageSize), nil
}

func (m *RedisMemory) DeleteMemory(ctx context.Context, userID, sessionID string) error {
	if sessionID != "" {
		key := memorySessionKey(sessionID)
		pipe := m.client.Pipeline()
		pipe.Del(ctx, m.memoryKey(userID, key))
		pipe.SRem(ctx, m.sessionsKey(userID), key)
		_, err := pipe.Exec(ctx)
		return err
	}

	sessions, err := m.client.SMembers(ctx, m.sessionsKey(userID)).Result()
	if err != nil {
		return err
	}

	pipe := m.client.Pipeline()
	for _, session := range sessions {
		pipe.Del(ctx, m.memoryKey(userID, session))
	}
	pipe.Del(ctx, m.sessionsKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

// loadAll reads every stored message for the user, sessions in sorted
// order for deterministic results.
func (m *RedisMemory) loadAll(ctx context.Context, userID string) ([]*types.Message, error) {
	sessions, err := m.client.SMembers(ctx, m.sessionsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(sessions)

	var all []*types.Message
	for _, session := range sessions {
		raw, err := m.client.LRange(ctx, m.memoryKey(userID, session), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		for _, item := range raw {
			var msg types.Message
			if err := json.Unmarshal([]byte(item), &msg); err != nil {
				continue
			}
			all = append(all, &msg)
		}
	}
	return all, nil
}

var _ MemoryService = (*RedisMemory)(nil)
