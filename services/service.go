package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is the lifecycle contract shared by all runtime services.
// Implementations must tolerate repeated Stop calls.
type Service interface {
	// Name identifies the service in logs and health reports.
	Name() string

	// Start acquires the service's resources (connections, migrations).
	Start(ctx context.Context) error

	// Stop releases resources. Safe to call more than once.
	Stop(ctx context.Context) error

	// Health returns nil when the service can serve requests.
	Health(ctx context.Context) error
}

// Manager owns a set of services and drives their lifecycle as a unit.
// Services start in registration order and stop in reverse order.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  bool
	logger   *zap.Logger
}

// NewManager creates an empty service manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.With(zap.String("component", "service_manager")),
	}
}

// Register adds a service. Must be called before Start.
func (m *Manager) Register(svc Service) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
	return m
}

// Services returns the registered services in registration order.
func (m *Manager) Services() []Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Service, len(m.services))
	copy(out, m.services)
	return out
}

// Start starts every registered service in order. On the first failure
// the already-started services are stopped in reverse order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("service manager already started")
	}

	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.logger.Error("service failed to start",
				zap.String("service", svc.Name()),
				zap.Error(err),
			)
			// Unwind the ones that made it.
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.services[j].Stop(ctx); stopErr != nil {
					m.logger.Warn("service stop during unwind failed",
						zap.String("service", m.services[j].Name()),
						zap.Error(stopErr),
					)
				}
			}
			return fmt.Errorf("start service %s: %w", svc.Name(), err)
		}
		m.logger.Info("service started", zap.String("service", svc.Name()))
	}

	m.started = true
	return nil
}

// Stop stops all services in reverse registration order, collecting errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.logger.Warn("service stop failed",
				zap.String("service", svc.Name()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("stop service %s: %w", svc.Name(), err))
		}
	}

	m.started = false
	return errors.Join(errs...)
}

// Health probes all services concurrently and returns the per-service
// results. The error is non-nil when any probe failed.
func (m *Manager) Health(ctx context.Context) (map[string]error, error) {
	m.mu.Lock()
	svcs := make([]Service, len(m.services))
	copy(svcs, m.services)
	m.mu.Unlock()

	results := make(map[string]error, len(svcs))
	var resultsMu sync.Mutex

	// Plain group: one failing probe must not cancel the others.
	var g errgroup.Group
	for _, svc := range svcs {
		g.Go(func() error {
			err := svc.Health(ctx)
			resultsMu.Lock()
			results[svc.Name()] = err
			resultsMu.Unlock()
			return err
		})
	}

	err := g.Wait()
	return results, err
}
