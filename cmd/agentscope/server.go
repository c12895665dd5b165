package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/adapters/a2a"
	"github.com/rayrayraykk/agentscope-runtime/adapters/openai"
	"github.com/rayrayraykk/agentscope-runtime/agent"
	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/engine"
	"github.com/rayrayraykk/agentscope-runtime/engine/app"
	"github.com/rayrayraykk/agentscope-runtime/internal/metrics"
	"github.com/rayrayraykk/agentscope-runtime/internal/server"
	"github.com/rayrayraykk/agentscope-runtime/internal/telemetry"
	"github.com/rayrayraykk/agentscope-runtime/services"
	"github.com/rayrayraykk/agentscope-runtime/taskqueue"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentScope Runtime 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 指标收集器
	metricsCollector *metrics.Collector

	// 服务生命周期
	serviceManager *services.Manager
	queue          *taskqueue.Queue

	// 执行引擎
	runner *engine.Runner

	// 遥测
	otelProviders *telemetry.Providers

	// 生命周期控制
	appCancel  context.CancelFunc
	shutdownCh chan struct{}
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
		shutdownCh:    make(chan struct{}),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	ctx := context.Background()

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("agentscope", s.logger)

	// 2. 初始化会话与记忆服务
	sessionSvc, err := services.NewSessionHistoryService(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init session history service: %w", err)
	}
	sessionSvc = services.InstrumentSessionHistory(sessionSvc, s.metricsCollector)
	memorySvc, err := services.NewMemoryService(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init memory service: %w", err)
	}

	s.serviceManager = services.NewManager(s.logger)
	s.serviceManager.Register(sessionSvc).Register(memorySvc)

	// 3. 初始化任务队列（可选）
	if s.cfg.TaskQueue.Enabled {
		queue, err := s.buildQueue()
		if err != nil {
			return fmt.Errorf("failed to init task queue: %w", err)
		}
		s.queue = queue
		s.serviceManager.Register(queue)
	}

	// 4. 启动所有服务
	if err := s.serviceManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	// 5. 组装执行引擎
	contextManager := services.NewContextManager(
		sessionSvc,
		memorySvc,
		services.NewTokenCounter(""),
		s.cfg.Services.HistoryTokenBudget,
		s.logger,
	)
	s.runner = engine.NewRunner(agent.NewEchoAgent(""), contextManager, s.metricsCollector, s.logger)

	// 6. 注册默认的异步处理任务
	if s.queue != nil {
		s.registerTaskHandlers()
	}

	// 7. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 8. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("mode", s.cfg.Server.Mode),
		zap.Bool("task_queue", s.queue != nil),
	)
	return nil
}

// buildQueue 根据配置创建任务队列
func (s *Server) buildQueue() (*taskqueue.Queue, error) {
	queueCfg := taskqueue.Config{
		Workers:    s.cfg.TaskQueue.Workers,
		QueueSize:  s.cfg.TaskQueue.QueueSize,
		MaxRetries: s.cfg.TaskQueue.MaxRetries,
		Retention:  s.cfg.TaskQueue.Retention,
	}

	var store taskqueue.Store
	switch s.cfg.TaskQueue.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		})
		store = taskqueue.NewRedisStore(client)
	default:
		store = taskqueue.NewMemoryStore()
	}

	return taskqueue.NewQueue(queueCfg, store, s.metricsCollector, s.logger), nil
}

// registerTaskHandlers 注册内置任务处理器
func (s *Server) registerTaskHandlers() {
	// process: 以异步任务方式执行一次会话处理
	s.queue.RegisterHandler("process", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req types.AgentRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "malformed task payload").WithCause(err)
		}
		return s.runner.Query(ctx, &req)
	})
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	opts := []app.Option{
		app.WithMetrics(s.metricsCollector),
		app.WithShutdownFunc(s.TriggerShutdown),
	}
	if s.queue != nil {
		opts = append(opts, app.WithQueue(s.queue))
	}
	application := app.New(s.cfg, s.runner, s.serviceManager, s.logger, opts...)

	// 协议适配器
	baseURL := fmt.Sprintf("http://%s", s.cfg.Server.Addr())
	openai.New(s.runner, s.logger).Register(application.Mount)
	a2a.New(s.runner, baseURL, Version, s.logger).Register(application.Mount)

	appCtx, cancel := context.WithCancel(context.Background())
	s.appCancel = cancel
	handler := application.Handler(appCtx)

	serverConfig := server.Config{
		Addr:            s.cfg.Server.Addr(),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// TriggerShutdown 触发优雅关闭（admin 端点使用）
func (s *Server) TriggerShutdown() {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-s.shutdownCh:
		s.logger.Info("Shutdown requested via admin endpoint")
	case err := <-s.httpManager.Errors():
		s.logger.Error("HTTP server failed", zap.Error(err))
	}

	s.Stop()
}

// Stop 按依赖逆序关闭所有组件
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}
	if s.appCancel != nil {
		s.appCancel()
	}
	if s.serviceManager != nil {
		if err := s.serviceManager.Stop(ctx); err != nil {
			s.logger.Error("Service shutdown failed", zap.Error(err))
		}
	}
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown failed", zap.Error(err))
		}
	}
}
