package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.agentRunsTotal)
	assert.NotNil(t, collector.eventsEmitted)
	assert.NotNil(t, collector.tasksTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录请求
	collector.RecordHTTPRequest("POST", "/process", 200, 100*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	// 再记录一次相同的请求
	collector.RecordHTTPRequest("POST", "/process", 200, 50*time.Millisecond)

	// 验证计数增加
	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordAgentRun(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录 Agent 执行
	collector.RecordAgentRun("echo", "completed", 1*time.Second)

	// 验证指标
	count := testutil.CollectAndCount(collector.agentRunsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordEventAndStreams(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.StreamStarted()
	collector.RecordEvent("echo", "message")
	collector.RecordEvent("echo", "response")
	collector.StreamFinished()

	eventCount := testutil.CollectAndCount(collector.eventsEmitted)
	assert.Greater(t, eventCount, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.activeStreams))
}

func TestCollector_RecordSessionOp(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordSessionOp("redis", "append_message", "ok", 5*time.Millisecond)

	count := testutil.CollectAndCount(collector.sessionOpsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_SetServiceHealth(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.SetServiceHealth("session_history/redis", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.serviceUp.WithLabelValues("session_history/redis")))

	collector.SetServiceHealth("session_history/redis", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.serviceUp.WithLabelValues("session_history/redis")))
}

func TestCollector_RecordTask(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordTask("summarize", "finished", 2*time.Second)
	collector.SetQueueDepth(3)

	count := testutil.CollectAndCount(collector.tasksTotal)
	assert.Greater(t, count, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.queueDepth))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("POST", "/process", 200, 100*time.Millisecond)
			collector.RecordAgentRun("echo", "completed", 500*time.Millisecond)
			collector.RecordEvent("echo", "message")
			done <- true
		}()
	}

	// 等待所有 goroutine 完成
	for i := 0; i < 10; i++ {
		<-done
	}

	// 验证指标被正确记录
	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	runCount := testutil.CollectAndCount(collector.agentRunsTotal)
	assert.Greater(t, runCount, 0)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(99))
}
