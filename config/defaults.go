// =============================================================================
// 📦 AgentScope Runtime 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Services:  DefaultServicesConfig(),
		TaskQueue: DefaultTaskQueueConfig(),
		Agent:     DefaultAgentConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "127.0.0.1",
		HTTPPort:        8090,
		MetricsPort:     9091,
		Mode:            ModeDaemon,
		EndpointPath:    "/process",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		StartupTimeout:  30 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentscope",
		Password:        "",
		Name:            "agentscope.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultServicesConfig 返回默认服务配置
func DefaultServicesConfig() ServicesConfig {
	return ServicesConfig{
		SessionHistory: BackendConfig{
			Backend:  "in_memory",
			RedisURL: "redis://localhost:6379/0",
		},
		Memory: BackendConfig{
			Backend:       "in_memory",
			RedisURL:      "redis://localhost:6379/0",
			MongoDatabase: "agentscope",
		},
		HistoryTokenBudget: 8000,
	}
}

// DefaultTaskQueueConfig 返回默认任务队列配置
func DefaultTaskQueueConfig() TaskQueueConfig {
	return TaskQueueConfig{
		Enabled:    false,
		Workers:    4,
		QueueSize:  256,
		Store:      "memory",
		MaxRetries: 3,
		Retention:  24 * time.Hour,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model: "qwen-max",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentscope-runtime",
		SampleRate:   1.0,
	}
}
