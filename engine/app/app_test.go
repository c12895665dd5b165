package app

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/agent"
	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/engine"
	"github.com/rayrayraykk/agentscope-runtime/internal/metrics"
	"github.com/rayrayraykk/agentscope-runtime/services"
	"github.com/rayrayraykk/agentscope-runtime/taskqueue"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

func newTestApp(t *testing.T, mutate func(cfg *config.Config), opts ...Option) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	sessions := services.NewInMemorySessionHistory()
	cm := services.NewContextManager(sessions, nil, nil, 0, zap.NewNop())
	runner := engine.NewRunner(agent.NewEchoAgent(""), cm, nil, zap.NewNop())

	return New(cfg, runner, nil, zap.NewNop(), opts...)
}

func testHandler(t *testing.T, a *App) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return a.Handler(ctx)
}

func processBody(text string) string {
	req := types.AgentRequest{
		Input: []*types.Message{types.NewTextMessage(types.RoleUser, text)},
	}
	b, _ := json.Marshal(req)
	return string(b)
}

func TestRootEndpoint(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info rootInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "echo", info.Name)
	assert.Equal(t, config.ModeDaemon, info.Mode)
	assert.Contains(t, info.Endpoints, "/process")
}

func TestHealthAndLiveness(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))

	for _, path := range []string{"/health", "/readiness", "/liveness"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHealthUpdatesServiceGauge(t *testing.T) {
	collector := metrics.NewCollector("apptest_health", zap.NewNop())
	manager := services.NewManager(zap.NewNop()).Register(services.NewInMemorySessionHistory())

	sessions := services.NewInMemorySessionHistory()
	cm := services.NewContextManager(sessions, nil, nil, 0, zap.NewNop())
	runner := engine.NewRunner(agent.NewEchoAgent(""), cm, nil, zap.NewNop())
	a := New(config.DefaultConfig(), runner, manager, zap.NewNop(), WithMetrics(collector))
	h := testHandler(t, a)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	expected := strings.NewReader(`
# HELP apptest_health_service_up Whether a managed service passed its last health probe (1 = healthy)
# TYPE apptest_health_service_up gauge
apptest_health_service_up{service="session_history/in_memory"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, expected, "apptest_health_service_up"))
}

func TestProcessUnary(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(processBody("hello world")))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.StatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Output, 1)
	assert.Equal(t, "hello world", resp.Output[0].ContentText())
}

func TestProcessInvalidBody(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader("{not json"))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrInvalidRequest, body.Error.Code)
}

// parseSSE extracts the data payloads from an SSE body.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			frames = append(frames, data)
		}
	}
	return frames
}

func TestProcessStreamSSE(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process/stream", strings.NewReader(processBody("hello streaming")))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(frames), 5)
	assert.Equal(t, "[DONE]", frames[len(frames)-1])

	var final types.AgentResponse
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-2]), &final))
	assert.Equal(t, types.StatusCompleted, final.Status)

	// Sequence numbers on the wire are strictly increasing.
	var prev int64
	for _, frame := range frames[:len(frames)-1] {
		var ev struct {
			SequenceNumber int64 `json:"sequence_number"`
		}
		require.NoError(t, json.Unmarshal([]byte(frame), &ev))
		assert.Equal(t, prev+1, ev.SequenceNumber)
		prev = ev.SequenceNumber
	}
}

func TestProcessStreamFlagOnUnaryEndpoint(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))

	body := `{"input":[{"object":"message","id":"m1","type":"message","role":"user","content":[{"type":"text","text":"hi"}],"status":"completed"}],"stream":true}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestProcessWebSocket(t *testing.T) {
	srv := httptest.NewServer(testHandler(t, newTestApp(t, nil)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/process/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(processBody("over websocket"))))

	var final *types.AgentResponse
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var header struct {
			Object string          `json:"object"`
			Status types.RunStatus `json:"status"`
		}
		require.NoError(t, json.Unmarshal(data, &header))
		if header.Object == "response" && header.Status == types.StatusCompleted {
			final = &types.AgentResponse{}
			require.NoError(t, json.Unmarshal(data, final))
			break
		}
	}
	require.Len(t, final.Output, 1)
	assert.Equal(t, "over websocket", final.Output[0].ContentText())
}

func TestTaskEndpoints(t *testing.T) {
	q := taskqueue.NewQueue(taskqueue.DefaultConfig(), taskqueue.NewMemoryStore(), nil, zap.NewNop())
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { q.Stop(context.Background()) })
	q.RegisterHandler("shout", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, err
		}
		return strings.ToUpper(in.Text), nil
	})

	h := testHandler(t, newTestApp(t, nil, WithQueue(q)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/shout", strings.NewReader(`{"text":"hi"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted taskSubmitted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.TaskID)

	deadline := time.After(5 * time.Second)
	for {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/shout/"+submitted.TaskID, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var status taskStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		if status.Status.IsTerminal() {
			assert.Equal(t, taskqueue.StatusFinished, status.Status)
			assert.Equal(t, "HI", status.Result)
			break
		}
		select {
		case <-deadline:
			t.Fatal("task never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A task is not addressable under a different name.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/other/"+submitted.TaskID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown task names are rejected at submission.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/missing", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskCancelEndpoint(t *testing.T) {
	q := taskqueue.NewQueue(taskqueue.Config{Workers: 1, QueueSize: 4}, taskqueue.NewMemoryStore(), nil, zap.NewNop())
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { q.Stop(context.Background()) })

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	q.RegisterHandler("slow", func(ctx context.Context, payload json.RawMessage) (any, error) {
		<-release
		return nil, nil
	})

	h := testHandler(t, newTestApp(t, nil, WithQueue(q)))

	// First submission occupies the single worker, second stays pending.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/slow", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	time.Sleep(50 * time.Millisecond)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/slow", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted taskSubmitted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tasks/slow/"+submitted.TaskID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status taskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, taskqueue.StatusCancelled, status.Status)

	// Cancelling under a different name is a 404.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tasks/other/"+submitted.TaskID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpointsDetachedOnly(t *testing.T) {
	// Daemon mode: no admin surface, no mode header anywhere.
	h := testHandler(t, newTestApp(t, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Header().Get("X-Process-Mode"))

	// Detached mode: every response carries the process mode header.
	stopped := make(chan struct{})
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Server.Mode = config.ModeDetached
	}, WithShutdownFunc(func() { close(stopped) }))
	h = testHandler(t, a)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.ModeDetached, rec.Header().Get("X-Process-Mode"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.ModeDetached, rec.Header().Get("X-Process-Mode"))

	var status adminStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "echo", status.Agent)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/shutdown", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback never fired")
	}
}

func TestAdminJWTAuth(t *testing.T) {
	const secret = "test-admin-secret"
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Server.Mode = config.ModeDetached
		cfg.Server.AdminJWTSecret = secret
	})
	h := testHandler(t, a)

	// No token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong secret.
	bad, err := NewAdminToken("other-secret", jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	good, err := NewAdminToken(secret, jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+good)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigEndpointsStandaloneOnly(t *testing.T) {
	h := testHandler(t, newTestApp(t, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Server.Mode = config.ModeStandalone
		cfg.Redis.Password = "hunter2"
		cfg.Server.AdminJWTSecret = "supersecret"
	})
	h = testHandler(t, a)

	// The deployment mode header rides on every standalone response.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.ModeStandalone, rec.Header().Get("X-Deployment-Mode"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.ModeStandalone, rec.Header().Get("X-Deployment-Mode"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "supersecret")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config/services", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var svc config.ServicesConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &svc))
	assert.Equal(t, "in_memory", svc.SessionHistory.Backend)
}

func TestMountAdapter(t *testing.T) {
	a := newTestApp(t, nil)
	a.Mount("GET /custom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h := testHandler(t, a)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
