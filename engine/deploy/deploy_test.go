package deploy

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0 // random port
	cfg.Server.StartupTimeout = 5 * time.Second
	cfg.Server.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestLocalStartStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	l := NewLocal(testConfig(), handler, zap.NewNop())

	url, err := l.Start(context.Background())
	require.NoError(t, err)
	require.True(t, l.Running())

	resp, err := http.Get(url + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Second start is rejected.
	_, err = l.Start(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrAlreadyRunning))

	require.NoError(t, l.Stop(context.Background()))
	assert.False(t, l.Running())

	err = l.Stop(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrNotRunning))
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.pid")
	require.NoError(t, writePIDFile(path, 4242))

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = readPIDFile(path)
	assert.Error(t, err)
}

func TestDetachedNotRunning(t *testing.T) {
	d := NewDetached(testConfig(), zap.NewNop())
	d.PIDFile = filepath.Join(t.TempDir(), "missing.pid")

	assert.False(t, d.Running())
	err := d.Stop(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrNotRunning))
}

func TestDetachedRunningDetection(t *testing.T) {
	d := NewDetached(testConfig(), zap.NewNop())
	d.PIDFile = filepath.Join(t.TempDir(), "self.pid")

	// The test process itself is certainly alive.
	require.NoError(t, writePIDFile(d.PIDFile, os.Getpid()))
	assert.True(t, d.Running())
}

func TestDialable(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8090", dialable("0.0.0.0:8090"))
	assert.Equal(t, "127.0.0.1:8090", dialable(":8090"))
	assert.Equal(t, "[::1]:8090", dialable("[::1]:8090"))
	assert.Equal(t, "10.0.0.1:80", dialable("10.0.0.1:80"))
}

func TestKubernetesRenderManifests(t *testing.T) {
	cfg := config.DefaultConfig()
	k := NewKubernetes(cfg, KubernetesOptions{Image: "registry.example/agent:1.0"}, zap.NewNop())

	docs, err := k.RenderManifests()
	require.NoError(t, err)

	dec := yaml.NewDecoder(bytes.NewReader(docs))
	var kinds []string
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		kinds = append(kinds, doc["kind"].(string))
	}
	assert.Equal(t, []string{"Deployment", "Service"}, kinds)
	assert.Contains(t, string(docs), "registry.example/agent:1.0")
	assert.Contains(t, string(docs), "/readiness")
}

func TestKubernetesApplyLifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	k := NewKubernetes(cfg, KubernetesOptions{
		Image:   "registry.example/agent:1.0",
		Kubectl: "cat", // stand-in that consumes the manifests
	}, zap.NewNop())

	url, err := k.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://agentscope-runtime.default:8090", url)
	assert.True(t, k.Running())

	_, err = k.Start(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrAlreadyRunning))

	require.NoError(t, k.Stop(context.Background()))
	assert.False(t, k.Running())
}

func TestKubernetesKubectlFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	k := NewKubernetes(cfg, KubernetesOptions{
		Image:   "registry.example/agent:1.0",
		Kubectl: "false",
	}, zap.NewNop())

	_, err := k.Start(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrDeploymentFailed))
}

func TestKubernetesRequiresImage(t *testing.T) {
	k := NewKubernetes(config.DefaultConfig(), KubernetesOptions{}, zap.NewNop())
	_, err := k.Start(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}
