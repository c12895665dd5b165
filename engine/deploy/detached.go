package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// Detached daemonizes the current binary as a background child serving
// in detached mode, supervised through a pidfile and the admin
// endpoints.
type Detached struct {
	cfg    *config.Config
	logger *zap.Logger

	// PIDFile is where the child's PID is recorded. Defaults to
	// agentscope.pid in the working directory.
	PIDFile string

	// LogFile receives the child's stdout and stderr. Defaults to
	// agentscope.log next to the pidfile.
	LogFile string

	// ExtraArgs are appended to the child's serve command, typically
	// --config with the resolved config path.
	ExtraArgs []string

	// AdminToken authenticates the status and shutdown calls when the
	// child has an admin secret configured.
	AdminToken string

	client *http.Client
}

// NewDetached wires a detached deployment.
func NewDetached(cfg *config.Config, logger *zap.Logger) *Detached {
	return &Detached{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "deploy_detached")),
		PIDFile: "agentscope.pid",
		LogFile: "agentscope.log",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *Detached) baseURL() string {
	return "http://" + dialable(d.cfg.Server.Addr())
}

func (d *Detached) Start(ctx context.Context) (string, error) {
	if d.Running() {
		return "", errAlreadyRunning()
	}

	exe, err := os.Executable()
	if err != nil {
		return "", types.NewError(types.ErrDeploymentFailed, "cannot resolve own executable").WithCause(err)
	}

	logFile, err := os.OpenFile(d.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", types.NewError(types.ErrDeploymentFailed, "cannot open log file").WithCause(err)
	}
	defer logFile.Close()

	args := append([]string{"serve", "--mode", config.ModeDetached}, d.ExtraArgs...)
	cmd := exec.Command(exe, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	// New session so the child survives the parent's terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return "", types.NewError(types.ErrDeploymentFailed, "failed to spawn detached process").WithCause(err)
	}
	pid := cmd.Process.Pid
	// Reap the child when it eventually exits so it never zombifies.
	go func() { _ = cmd.Wait() }()

	if err := writePIDFile(d.PIDFile, pid); err != nil {
		_ = cmd.Process.Kill()
		return "", err
	}

	addr := dialable(d.cfg.Server.Addr())
	if err := waitReady(ctx, addr, d.cfg.Server.StartupTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = os.Remove(d.PIDFile)
		return "", err
	}

	url := d.baseURL()
	d.logger.Info("detached deployment up",
		zap.Int("pid", pid),
		zap.String("url", url),
		zap.String("pidfile", d.PIDFile),
	)
	return url, nil
}

func (d *Detached) Stop(ctx context.Context) error {
	pid, err := readPIDFile(d.PIDFile)
	if err != nil {
		return errNotRunning()
	}

	// Prefer a clean shutdown through the admin endpoint.
	if err := d.adminShutdown(ctx); err != nil {
		d.logger.Debug("admin shutdown unavailable, signalling process", zap.Error(err))
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			_ = os.Remove(d.PIDFile)
			return errNotRunning()
		}
	}

	// Wait for the process to go away, then escalate.
	deadline := time.Now().Add(d.cfg.Server.ShutdownTimeout)
	for processAlive(pid) {
		if time.Now().After(deadline) {
			d.logger.Warn("process did not exit in time, killing", zap.Int("pid", pid))
			_ = syscall.Kill(pid, syscall.SIGKILL)
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	_ = os.Remove(d.PIDFile)
	return nil
}

func (d *Detached) Running() bool {
	pid, err := readPIDFile(d.PIDFile)
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// Status queries the child's admin status endpoint.
func (d *Detached) Status(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL()+"/admin/status", nil)
	if err != nil {
		return nil, err
	}
	d.authorize(req)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrNotRunning, "admin status unreachable").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("admin status returned %d", resp.StatusCode))
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return status, nil
}

func (d *Detached) adminShutdown(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL()+"/admin/shutdown", strings.NewReader(""))
	if err != nil {
		return err
	}
	d.authorize(req)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin shutdown returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Detached) authorize(req *http.Request) {
	if d.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.AdminToken)
	}
}

func writePIDFile(path string, pid int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.NewError(types.ErrDeploymentFailed, "cannot create pidfile directory").WithCause(err)
		}
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return types.NewError(types.ErrDeploymentFailed, "cannot write pidfile").WithCause(err)
	}
	return nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pidfile %s", path)
	}
	return pid, nil
}

// processAlive probes the PID with signal 0.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

var _ Manager = (*Detached)(nil)
