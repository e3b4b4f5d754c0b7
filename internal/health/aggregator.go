// Package health combines backend health checks into the readiness views
// served by the gateway.
package health

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgexpo/voicegateway/internal/clients"
	"github.com/edgexpo/voicegateway/internal/metrics"
)

// Version is reported by the ops health view
const Version = "1.0.0"

// Core service names, in check order
const (
	ServiceSTT       = "stt"
	ServiceTTS       = "tts"
	ServiceEmbedding = "embedding"
	ServiceLLM       = "llm"
)

// Overall is the combined readiness of the core services
type Overall string

const (
	OverallHealthy   Overall = "healthy"
	OverallPartial   Overall = "partial"
	OverallUnhealthy Overall = "unhealthy"
)

// AggregatedHealth is derived entirely from per-service HealthStatus values
type AggregatedHealth struct {
	PerService map[string]clients.HealthStatus `json:"per_service"`
	Overall    Overall                         `json:"overall"`
	Error      string                          `json:"error,omitempty"`
}

// Healthy reports whether the named service answered healthy
func (a AggregatedHealth) Healthy(service string) bool {
	return a.PerService[service].Healthy()
}

// Config wires the aggregator to the backends and lazily built services
type Config struct {
	STT       clients.HealthChecker
	TTS       clients.HealthChecker
	Embedding clients.HealthChecker
	LLM       clients.HealthChecker

	// RAGInitialized and CRMInitialized report whether the lazy services exist
	RAGInitialized func() bool
	CRMInitialized func() bool

	// URLs is echoed in the ops view's config section
	URLs map[string]string

	Logger *slog.Logger
}

type namedCheck struct {
	name    string
	checker clients.HealthChecker
}

// Aggregator polls every backend in parallel
type Aggregator struct {
	checks         []namedCheck
	ragInitialized func() bool
	crmInitialized func() bool
	urls           map[string]string
	logger         *slog.Logger
}

// NewAggregator creates a new Aggregator
func NewAggregator(cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notInitialized := func() bool { return false }
	if cfg.RAGInitialized == nil {
		cfg.RAGInitialized = notInitialized
	}
	if cfg.CRMInitialized == nil {
		cfg.CRMInitialized = notInitialized
	}

	return &Aggregator{
		checks: []namedCheck{
			{ServiceSTT, cfg.STT},
			{ServiceTTS, cfg.TTS},
			{ServiceEmbedding, cfg.Embedding},
			{ServiceLLM, cfg.LLM},
		},
		ragInitialized: cfg.RAGInitialized,
		crmInitialized: cfg.CRMInitialized,
		urls:           cfg.URLs,
		logger:         logger,
	}
}

// Aggregate runs every health check and combines the results. Overall is
// healthy iff all core services are healthy and partial otherwise, even
// when none is. Unhealthy is reserved for a failure while aggregating,
// which never escapes and carries Error.
func (a *Aggregator) Aggregate(ctx context.Context) (result AggregatedHealth) {
	defer func() {
		if r := recover(); r != nil {
			result = a.failed(fmt.Errorf("%v", r))
		}
	}()

	statuses := make([]clients.HealthStatus, len(a.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range a.checks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s check: %v", check.name, r)
				}
			}()
			statuses[i] = check.checker.CheckHealth(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return a.failed(err)
	}

	result = AggregatedHealth{PerService: make(map[string]clients.HealthStatus, len(a.checks))}
	result.Overall = OverallHealthy
	for i, check := range a.checks {
		status := statuses[i]
		result.PerService[check.name] = status
		metrics.SetServiceUp(check.name, status.Healthy())
		if !status.Healthy() {
			result.Overall = OverallPartial
		}
	}
	return result
}

func (a *Aggregator) failed(err error) AggregatedHealth {
	a.logger.Error("health aggregation failed", "error", err)
	return AggregatedHealth{
		PerService: map[string]clients.HealthStatus{},
		Overall:    OverallUnhealthy,
		Error:      "health aggregation failed: " + err.Error(),
	}
}
