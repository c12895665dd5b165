package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/engine"
	"github.com/rayrayraykk/agentscope-runtime/internal/metrics"
	"github.com/rayrayraykk/agentscope-runtime/services"
	"github.com/rayrayraykk/agentscope-runtime/taskqueue"
)

// App builds the runtime's HTTP handler around a runner.
type App struct {
	cfg       *config.Config
	runner    *engine.Runner
	svc       *services.Manager
	queue     *taskqueue.Queue
	collector *metrics.Collector
	logger    *zap.Logger
	shutdown  func()
	mounts    map[string]http.Handler
	startedAt time.Time
}

// Option customizes the app.
type Option func(*App)

// WithQueue enables the task submission endpoints.
func WithQueue(q *taskqueue.Queue) Option {
	return func(a *App) { a.queue = q }
}

// WithMetrics enables HTTP instrumentation and hands the collector to
// handlers that record domain metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *App) { a.collector = c }
}

// WithShutdownFunc registers the callback behind POST /admin/shutdown.
func WithShutdownFunc(fn func()) Option {
	return func(a *App) { a.shutdown = fn }
}

// New assembles an app. svc provides health probes for the readiness
// endpoints and may be nil in tests.
func New(cfg *config.Config, runner *engine.Runner, svc *services.Manager, logger *zap.Logger, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		runner:    runner,
		svc:       svc,
		logger:    logger.With(zap.String("component", "http_app")),
		mounts:    make(map[string]http.Handler),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mount attaches an extra handler, typically a protocol adapter, under
// the given ServeMux pattern. Must be called before Handler.
func (a *App) Mount(pattern string, h http.Handler) {
	a.mounts[pattern] = h
}

// Handler builds the routed and middleware-wrapped handler. ctx bounds
// background goroutines owned by middleware, such as the rate limiter's
// visitor cleanup.
func (a *App) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	ep := a.cfg.Server.EndpointPath

	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /readiness", a.handleHealth)
	mux.HandleFunc("GET /liveness", a.handleLiveness)

	mux.HandleFunc("POST "+ep, a.handleProcess)
	mux.HandleFunc("POST "+ep+"/stream", a.handleProcessStream)
	mux.HandleFunc("GET "+ep+"/ws", a.handleProcessWS)

	if a.queue != nil {
		mux.HandleFunc("POST /tasks/{name}", a.handleSubmitTask)
		mux.HandleFunc("GET /tasks/{name}/{id}", a.handleGetTask)
		mux.HandleFunc("DELETE /tasks/{name}/{id}", a.handleCancelTask)
	}

	// Admin endpoints only exist on detached processes; the config
	// introspection endpoints only in standalone mode.
	if a.cfg.Server.Mode == config.ModeDetached {
		admin := a.adminAuth()
		mux.Handle("GET /admin/status", admin(http.HandlerFunc(a.handleAdminStatus)))
		mux.Handle("POST /admin/shutdown", admin(http.HandlerFunc(a.handleAdminShutdown)))
	}
	if a.cfg.Server.Mode == config.ModeStandalone {
		mux.HandleFunc("GET /config", a.handleConfig)
		mux.HandleFunc("GET /config/services", a.handleConfigServices)
	}

	for pattern, h := range a.mounts {
		mux.Handle(pattern, h)
	}

	middlewares := []Middleware{
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		ModeHeaders(a.cfg.Server.Mode),
		RequestLogger(a.logger),
		CORS(a.cfg.Server.CORSAllowedOrigins),
	}
	if a.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst))
	}
	if a.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(a.collector))
	}
	return Chain(mux, middlewares...)
}

// rootInfo is the discovery document served at /.
type rootInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Mode        string   `json:"deployment_mode"`
	Endpoints   []string `json:"endpoints"`
}

func (a *App) handleRoot(w http.ResponseWriter, r *http.Request) {
	ep := a.cfg.Server.EndpointPath
	info := rootInfo{
		Name:        a.runner.Agent().Name(),
		Description: a.runner.Agent().Description(),
		Mode:        a.cfg.Server.Mode,
		Endpoints:   []string{ep, ep + "/stream", ep + "/ws", "/health"},
	}
	if a.queue != nil {
		info.Endpoints = append(info.Endpoints, "/tasks/{name}")
	}
	writeJSON(w, http.StatusOK, info)
}

// healthReport is the body of the health and readiness endpoints.
type healthReport struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{Status: "healthy"}
	if a.svc != nil {
		results, err := a.svc.Health(r.Context())
		report.Services = make(map[string]string, len(results))
		for name, probeErr := range results {
			if a.collector != nil {
				a.collector.SetServiceHealth(name, probeErr == nil)
			}
			if probeErr != nil {
				report.Services[name] = probeErr.Error()
			} else {
				report.Services[name] = "ok"
			}
		}
		if err != nil {
			report.Status = "unhealthy"
			writeJSON(w, http.StatusServiceUnavailable, report)
			return
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *App) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// redactedConfig strips credentials before the config leaves the process.
func (a *App) redactedConfig() config.Config {
	cfg := *a.cfg
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = "********"
	}
	if cfg.Database.Password != "" {
		cfg.Database.Password = "********"
	}
	if cfg.Agent.ModelAPIKey != "" {
		cfg.Agent.ModelAPIKey = "********"
	}
	cfg.Server.AdminJWTSecret = ""
	return cfg
}

func (a *App) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.redactedConfig())
}

func (a *App) handleConfigServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg.Services)
}

// adminStatus is the body of GET /admin/status.
type adminStatus struct {
	Status string           `json:"status"`
	Mode   string           `json:"mode"`
	PID    int              `json:"pid"`
	Uptime string           `json:"uptime"`
	Agent  string           `json:"agent"`
	Queue  *taskqueue.Stats `json:"queue,omitempty"`
}

func (a *App) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	status := adminStatus{
		Status: "running",
		Mode:   a.cfg.Server.Mode,
		PID:    os.Getpid(),
		Uptime: time.Since(a.startedAt).Round(time.Second).String(),
		Agent:  a.runner.Agent().Name(),
	}
	if a.queue != nil {
		stats := a.queue.Stats()
		status.Queue = &stats
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *App) handleAdminShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	if a.shutdown != nil {
		// Let the response flush before the listener goes away.
		go func() {
			time.Sleep(100 * time.Millisecond)
			a.shutdown()
		}()
	}
}
