// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Agent 执行指标
	agentRunsTotal   *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	eventsEmitted    *prometheus.CounterVec
	activeStreams    prometheus.Gauge

	// 会话存储指标
	sessionOpsTotal  *prometheus.CounterVec
	sessionOpLatency *prometheus.HistogramVec

	// 服务健康指标
	serviceUp *prometheus.GaugeVec

	// 任务队列指标
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Agent 执行指标
	c.agentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Total number of agent runs",
		},
		[]string{"agent", "status"},
	)

	c.agentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_run_duration_seconds",
			Help:      "Agent run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	c.eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of streaming events emitted",
		},
		[]string{"agent", "object"},
	)

	c.activeStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of in-flight streaming runs",
		},
	)

	// 会话存储指标
	c.sessionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_store_ops_total",
			Help:      "Total number of session store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.sessionOpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_store_op_duration_seconds",
			Help:      "Session store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// 服务健康指标
	c.serviceUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_up",
			Help:      "Whether a managed service passed its last health probe (1 = healthy)",
		},
		[]string{"service"},
	)

	// 任务队列指标
	c.tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of queued tasks by terminal status",
		},
		[]string{"name", "status"},
	)

	c.taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"name"},
	)

	c.queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting in the queue",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 Agent 指标记录
// =============================================================================

// RecordAgentRun 记录一次 Agent 执行
func (c *Collector) RecordAgentRun(agent, status string, duration time.Duration) {
	c.agentRunsTotal.WithLabelValues(agent, status).Inc()
	c.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordEvent 记录一个流式事件
func (c *Collector) RecordEvent(agent, object string) {
	c.eventsEmitted.WithLabelValues(agent, object).Inc()
}

// StreamStarted 流式运行开始
func (c *Collector) StreamStarted() {
	c.activeStreams.Inc()
}

// StreamFinished 流式运行结束
func (c *Collector) StreamFinished() {
	c.activeStreams.Dec()
}

// =============================================================================
// 💾 会话存储指标记录
// =============================================================================

// RecordSessionOp 记录会话存储操作
func (c *Collector) RecordSessionOp(backend, operation, status string, duration time.Duration) {
	c.sessionOpsTotal.WithLabelValues(backend, operation, status).Inc()
	c.sessionOpLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🏥 服务健康指标记录
// =============================================================================

// SetServiceHealth 更新服务健康状态
func (c *Collector) SetServiceHealth(service string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.serviceUp.WithLabelValues(service).Set(v)
}

// =============================================================================
// 📋 任务队列指标记录
// =============================================================================

// RecordTask 记录任务终态
func (c *Collector) RecordTask(name, status string, duration time.Duration) {
	c.tasksTotal.WithLabelValues(name, status).Inc()
	c.taskDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// SetQueueDepth 更新队列深度
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
