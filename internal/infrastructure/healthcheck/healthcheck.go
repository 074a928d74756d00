// Package healthcheck probes the service's backing infrastructure and feeds
// the readiness endpoints.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lllypuk/claimservice/internal/infrastructure/httpserver"
)

// DefaultCheckTimeout bounds a single probe.
const DefaultCheckTimeout = 2 * time.Second

// Status is the outcome of one probe.
type Status struct {
	Healthy   bool
	Degraded  bool
	Message   string
	Latency   time.Duration
	CheckedAt time.Time
}

// Checker probes one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Status
}

type entry struct {
	checker  Checker
	critical bool
}

// Aggregator runs registered checkers and implements httpserver.HealthChecker.
// Only critical checkers decide readiness.
type Aggregator struct {
	mu      sync.RWMutex
	entries []entry
	timeout time.Duration
	logger  *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithTimeout sets the per-check timeout.
func WithTimeout(timeout time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.timeout = timeout
	}
}

// WithLogger sets the logger used for failed checks.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		timeout: DefaultCheckTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a checker whose failure makes the service not ready.
func (a *Aggregator) Register(c Checker) {
	a.add(entry{checker: c, critical: true})
}

// RegisterOptional adds a checker whose failure only degrades the service.
func (a *Aggregator) RegisterOptional(c Checker) {
	a.add(entry{checker: c})
}

func (a *Aggregator) add(e entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

type result struct {
	entry
	status Status
}

func (a *Aggregator) run(ctx context.Context) []result {
	a.mu.RLock()
	entries := append([]entry(nil), a.entries...)
	a.mu.RUnlock()

	results := make([]result, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			status := e.checker.Check(checkCtx)
			if !status.Healthy {
				a.logger.WarnContext(ctx, "health check failed",
					slog.String("component", e.checker.Name()),
					slog.String("message", status.Message),
					slog.Bool("critical", e.critical),
				)
			}
			results[i] = result{entry: e, status: status}
		}()
	}
	wg.Wait()
	return results
}

// IsReady reports whether every critical checker is healthy.
func (a *Aggregator) IsReady(ctx context.Context) bool {
	for _, r := range a.run(ctx) {
		if r.critical && !r.status.Healthy {
			return false
		}
	}
	return true
}

// GetHealthStatus returns one component status per registered checker, in
// registration order. A failing optional checker reports as degraded.
func (a *Aggregator) GetHealthStatus(ctx context.Context) []httpserver.ComponentStatus {
	results := a.run(ctx)
	out := make([]httpserver.ComponentStatus, 0, len(results))
	for _, r := range results {
		status := httpserver.StatusHealthy
		switch {
		case !r.status.Healthy && r.critical:
			status = httpserver.StatusUnhealthy
		case !r.status.Healthy || r.status.Degraded:
			status = httpserver.StatusDegraded
		}
		out = append(out, httpserver.ComponentStatus{
			Name:    r.checker.Name(),
			Status:  status,
			Message: r.status.Message,
		})
	}
	return out
}
