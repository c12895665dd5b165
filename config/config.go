// =============================================================================
// 📦 AgentScope Runtime 配置结构
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"
)

// 部署模式
const (
	ModeDaemon     = "daemon"     // 前台进程
	ModeDetached   = "detached"   // 后台子进程（带 admin 端点）
	ModeStandalone = "standalone" // 独立进程（带 config 端点）
)

// Config 是运行时的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis 配置（会话/记忆/任务队列的 redis 后端共用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（会话历史 SQL 后端）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Services 会话历史与长期记忆服务配置
	Services ServicesConfig `yaml:"services" env:"SERVICES"`

	// TaskQueue 异步任务队列配置
	TaskQueue TaskQueueConfig `yaml:"task_queue" env:"TASK_QUEUE"`

	// Agent 宿主 Agent 配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听主机
	Host string `yaml:"host" env:"HOST"`
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 部署模式: daemon, detached, standalone
	Mode string `yaml:"mode" env:"MODE"`
	// 会话处理端点路径
	EndpointPath string `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（SSE 流需要较长的写超时）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 部署就绪探测超时
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"STARTUP_TIMEOUT"`
	// 限流 RPS（按 IP）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 管理端点 JWT 密钥（为空则 /admin/* 不鉴权）
	AdminJWTSecret string `yaml:"admin_jwt_secret" env:"ADMIN_JWT_SECRET"`
}

// Addr 返回 HTTP 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// ServicesConfig 会话历史与记忆服务配置
type ServicesConfig struct {
	// SessionHistory 会话历史服务
	SessionHistory BackendConfig `yaml:"session_history" env:"SESSION_HISTORY"`
	// Memory 长期记忆服务
	Memory BackendConfig `yaml:"memory" env:"MEMORY"`
	// 组装上下文时的历史 token 预算（0 表示不截断）
	HistoryTokenBudget int `yaml:"history_token_budget" env:"HISTORY_TOKEN_BUDGET"`
}

// BackendConfig 单个服务后端配置
type BackendConfig struct {
	// 后端类型: in_memory, redis, sql, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// Redis URL（如 redis://localhost:6379/0）
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	// Mongo URI（memory 服务 mongo 后端）
	MongoURI string `yaml:"mongo_uri" env:"MONGO_URI"`
	// Mongo 数据库名
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
}

// TaskQueueConfig 异步任务队列配置
type TaskQueueConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 工作协程数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 任务存储: memory, redis
	Store string `yaml:"store" env:"STORE"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 终态任务保留时长
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// AgentConfig 宿主 Agent 配置
type AgentConfig struct {
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 模型 API Key（裸环境变量 DASHSCOPE_API_KEY 也可设置）
	ModelAPIKey string `yaml:"model_api_key" env:"MODEL_API_KEY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	switch c.Server.Mode {
	case ModeDaemon, ModeDetached, ModeStandalone:
	default:
		errs = append(errs, fmt.Sprintf("unknown deployment mode %q", c.Server.Mode))
	}
	if !strings.HasPrefix(c.Server.EndpointPath, "/") {
		errs = append(errs, "endpoint_path must start with /")
	}
	if c.TaskQueue.Enabled && c.TaskQueue.Workers <= 0 {
		errs = append(errs, "task_queue.workers must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry enabled but otlp_endpoint empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
