package deploy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// Manager deploys and tears down one runtime instance.
type Manager interface {
	// Start brings the deployment up and returns its base URL. A second
	// Start on a running deployment fails with ALREADY_RUNNING.
	Start(ctx context.Context) (string, error)

	// Stop tears the deployment down. Stopping a deployment that is not
	// running fails with NOT_RUNNING.
	Stop(ctx context.Context) error

	// Running reports whether the deployment is believed to be up.
	Running() bool
}

func errAlreadyRunning() *types.Error {
	return types.NewError(types.ErrAlreadyRunning, "Service is already running").WithHTTPStatus(409)
}

func errNotRunning() *types.Error {
	return types.NewError(types.ErrNotRunning, "Service is not running").WithHTTPStatus(409)
}

// dialable rewrites wildcard listen addresses into loopback ones so
// they can be probed and advertised.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// waitReady polls a TCP connect until the address accepts connections
// or the timeout elapses.
func waitReady(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return types.NewError(types.ErrStartupTimeout,
				fmt.Sprintf("service at %s not ready after %s", addr, timeout)).WithCause(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
