// Package health aggregates component probes into a service-level status.
// Critical component failures mark the service not ready; non-critical
// failures only degrade it.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of one component or of the service overall.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker probes one backing component.
type Checker interface {
	Name() string
	// Check returns nil when the component is reachable and serving.
	Check(ctx context.Context) error
	// Critical components gate readiness; non-critical ones only degrade.
	Critical() bool
}

// CheckResult is one probe outcome.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Critical  bool          `json:"critical"`
	Duration  time.Duration `json:"duration_ns"`
}

// Report is the aggregated service status.
type Report struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// checkTimeout bounds each individual probe.
const checkTimeout = 5 * time.Second

// Manager runs registered checkers on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	logger   *zap.Logger
}

// NewManager creates an empty health manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.Info("health checker registered",
		zap.String("component", c.Name()), zap.Bool("critical", c.Critical()))
}

// Check probes every component concurrently and aggregates the results.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Components: make(map[string]CheckResult, len(results)),
		Timestamp:  time.Now().UTC(),
	}
	for _, r := range results {
		report.Components[r.Component] = r
		if r.Status != StatusUnhealthy {
			continue
		}
		if r.Critical {
			report.Status = StatusUnhealthy
			report.Ready = false
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (m *Manager) run(ctx context.Context, c Checker) CheckResult {
	cctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(cctx)
	result := CheckResult{
		Component: c.Name(),
		Status:    StatusHealthy,
		Critical:  c.Critical(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		m.logger.Warn("health check failed",
			zap.String("component", c.Name()), zap.Error(err))
	}
	return result
}
