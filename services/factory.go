package services

import (
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// SessionHistoryBuilder constructs a session history backend from the
// loaded configuration.
type SessionHistoryBuilder func(cfg *config.Config, logger *zap.Logger) (SessionHistoryService, error)

// MemoryBuilder constructs a memory backend from the loaded
// configuration.
type MemoryBuilder func(cfg *config.Config, logger *zap.Logger) (MemoryService, error)

var (
	factoryMu       sync.RWMutex
	sessionBuilders = map[string]SessionHistoryBuilder{}
	memoryBuilders  = map[string]MemoryBuilder{}
)

func init() {
	RegisterSessionHistoryBackend("in_memory", func(*config.Config, *zap.Logger) (SessionHistoryService, error) {
		return NewInMemorySessionHistory(), nil
	})
	RegisterSessionHistoryBackend("redis", func(cfg *config.Config, _ *zap.Logger) (SessionHistoryService, error) {
		if url := cfg.Services.SessionHistory.RedisURL; url != "" {
			return NewRedisSessionHistoryFromURL(url)
		}
		return NewRedisSessionHistory(redisClient(cfg)), nil
	})
	RegisterSessionHistoryBackend("sql", func(cfg *config.Config, _ *zap.Logger) (SessionHistoryService, error) {
		return NewSQLSessionHistory(cfg.Database), nil
	})

	RegisterMemoryBackend("in_memory", func(*config.Config, *zap.Logger) (MemoryService, error) {
		return NewInMemoryMemory(), nil
	})
	RegisterMemoryBackend("redis", func(cfg *config.Config, _ *zap.Logger) (MemoryService, error) {
		if url := cfg.Services.Memory.RedisURL; url != "" {
			return NewRedisMemoryFromURL(url)
		}
		return NewRedisMemory(redisClient(cfg)), nil
	})
	RegisterMemoryBackend("mongo", func(cfg *config.Config, _ *zap.Logger) (MemoryService, error) {
		uri := cfg.Services.Memory.MongoURI
		if uri == "" {
			return nil, types.NewError(types.ErrInvalidRequest,
				"mongo backend selected but services.memory.mongo_uri is empty")
		}
		return NewMongoMemory(uri, cfg.Services.Memory.MongoDatabase), nil
	})
}

// RegisterSessionHistoryBackend adds or replaces a session history
// backend under the given name.
func RegisterSessionHistoryBackend(name string, b SessionHistoryBuilder) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sessionBuilders[name] = b
}

// RegisterMemoryBackend adds or replaces a memory backend under the
// given name.
func RegisterMemoryBackend(name string, b MemoryBuilder) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	memoryBuilders[name] = b
}

// NewSessionHistoryService builds the session history backend named in
// cfg.Services.SessionHistory.Backend.
func NewSessionHistoryService(cfg *config.Config, logger *zap.Logger) (SessionHistoryService, error) {
	name := cfg.Services.SessionHistory.Backend
	factoryMu.RLock()
	builder, ok := sessionBuilders[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrBackendUnknown,
			fmt.Sprintf("unknown session history backend %q", name))
	}

	svc, err := builder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build session history backend %q: %w", name, err)
	}
	logger.Info("session history backend selected", zap.String("backend", name))
	return svc, nil
}

// NewMemoryService builds the memory backend named in
// cfg.Services.Memory.Backend.
func NewMemoryService(cfg *config.Config, logger *zap.Logger) (MemoryService, error) {
	name := cfg.Services.Memory.Backend
	factoryMu.RLock()
	builder, ok := memoryBuilders[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrBackendUnknown,
			fmt.Sprintf("unknown memory backend %q", name))
	}

	svc, err := builder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build memory backend %q: %w", name, err)
	}
	logger.Info("memory backend selected", zap.String("backend", name))
	return svc, nil
}

// redisClient builds a client from the shared Redis section.
func redisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
}
