package clients

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the health state of a single backend
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusUnhealthy   Status = "unhealthy"
	StatusUnreachable Status = "unreachable"
)

// HealthStatus is the result of one health check. It is computed per call
// and never stored.
type HealthStatus struct {
	Status    Status         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Healthy reports whether the backend answered healthy
func (h HealthStatus) Healthy() bool {
	return h.Status == StatusHealthy
}

func unreachable(err error) HealthStatus {
	return HealthStatus{
		Status:    StatusUnreachable,
		Detail:    map[string]any{"error": err.Error()},
		CheckedAt: time.Now(),
	}
}

// checkHealth probes GET /health. A transport failure is unreachable, an
// error status is unhealthy, and a 200 is healthy only when the body says so.
func (c *baseClient) checkHealth(ctx context.Context) HealthStatus {
	resp, err := c.session.Probe(ctx, c.url("/health"), c.healthTimeout)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) && se.Kind == KindUpstream {
			return HealthStatus{
				Status:    StatusUnhealthy,
				Detail:    map[string]any{"error": fmt.Sprintf("HTTP %d", se.StatusCode)},
				CheckedAt: time.Now(),
			}
		}
		return unreachable(err)
	}

	var body map[string]any
	if err := resp.JSON(&body); err != nil {
		return HealthStatus{
			Status:    StatusUnhealthy,
			Detail:    map[string]any{"error": "invalid health response"},
			CheckedAt: time.Now(),
		}
	}

	status := StatusUnhealthy
	if s, _ := body["status"].(string); s == string(StatusHealthy) {
		status = StatusHealthy
	}
	return HealthStatus{Status: status, Detail: body, CheckedAt: time.Now()}
}
