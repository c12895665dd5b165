package deploy

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/internal/server"
)

// Local runs the HTTP app inside the current process.
type Local struct {
	cfg     *config.Config
	handler http.Handler
	logger  *zap.Logger

	mu  sync.Mutex
	srv *server.Manager
}

// NewLocal wires a local deployment around a prepared handler.
func NewLocal(cfg *config.Config, handler http.Handler, logger *zap.Logger) *Local {
	return &Local{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("component", "deploy_local")),
	}
}

func (l *Local) Start(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.srv != nil && l.srv.IsRunning() {
		return "", errAlreadyRunning()
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = l.cfg.Server.Addr()
	srvCfg.ReadTimeout = l.cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = l.cfg.Server.WriteTimeout
	srvCfg.ShutdownTimeout = l.cfg.Server.ShutdownTimeout

	srv := server.NewManager(l.handler, srvCfg, l.logger)
	if err := srv.Start(); err != nil {
		return "", err
	}

	addr := dialable(srv.BoundAddr())
	if err := waitReady(ctx, addr, l.cfg.Server.StartupTimeout); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), l.cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return "", err
	}

	l.srv = srv
	url := "http://" + addr
	l.logger.Info("local deployment up", zap.String("url", url))
	return url, nil
}

func (l *Local) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.srv == nil || !l.srv.IsRunning() {
		return errNotRunning()
	}
	if err := l.srv.Shutdown(ctx); err != nil {
		return err
	}
	l.srv = nil
	return nil
}

func (l *Local) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.srv != nil && l.srv.IsRunning()
}

// Server exposes the underlying server manager, mainly so callers can
// subscribe to asynchronous serve errors.
func (l *Local) Server() *server.Manager {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.srv
}

var _ Manager = (*Local)(nil)
