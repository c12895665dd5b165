package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.HTTPPort)
	assert.Equal(t, "daemon", cfg.Server.Mode)
	assert.Equal(t, "/process", cfg.Server.EndpointPath)
	assert.Equal(t, "in_memory", cfg.Services.SessionHistory.Backend)
	assert.Equal(t, "in_memory", cfg.Services.Memory.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
  mode: standalone
services:
  session_history:
    backend: redis
    redis_url: redis://redis.internal:6379/2
task_queue:
  enabled: true
  workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "standalone", cfg.Server.Mode)
	assert.Equal(t, "redis", cfg.Services.SessionHistory.Backend)
	assert.Equal(t, "redis://redis.internal:6379/2", cfg.Services.SessionHistory.RedisURL)
	assert.True(t, cfg.TaskQueue.Enabled)
	assert.Equal(t, 8, cfg.TaskQueue.Workers)

	// 文件未覆盖的字段保留默认值
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.HTTPPort)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTSCOPE_SERVER_HTTP_PORT", "7070")
	t.Setenv("AGENTSCOPE_SERVER_SHUTDOWN_TIMEOUT", "45s")
	t.Setenv("AGENTSCOPE_LOG_LEVEL", "debug")
	t.Setenv("AGENTSCOPE_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
}

func TestServicesConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	content := `
services:
  memory:
    backend: mongo
    mongo_uri: mongodb://localhost:27017
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv(ServicesConfigEnv, path)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Services.Memory.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Services.Memory.MongoURI)
}

func TestWellKnownEnv(t *testing.T) {
	t.Setenv("USE_REDIS", "true")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Services.SessionHistory.Backend)
	assert.Equal(t, "redis", cfg.Services.Memory.Backend)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr)
}

func TestProviderEnvWinsOverUseRedis(t *testing.T) {
	t.Setenv("USE_REDIS", "true")
	t.Setenv("SESSION_HISTORY_PROVIDER", "sql")
	t.Setenv("MEMORY_PROVIDER", "in_memory")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sql", cfg.Services.SessionHistory.Backend)
	assert.Equal(t, "in_memory", cfg.Services.Memory.Backend)
}

func TestDashscopeAPIKeyEnv(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test-key")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-key", cfg.Agent.ModelAPIKey)
}

func TestValidatorRejects(t *testing.T) {
	t.Setenv("AGENTSCOPE_SERVER_MODE", "cluster")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment mode")
}

func TestDSN(t *testing.T) {
	pg := &DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "runtime", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=runtime sslmode=disable", pg.DSN())

	lite := &DatabaseConfig{Driver: "sqlite", Name: "runtime.db"}
	assert.Equal(t, "runtime.db", lite.DSN())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}
