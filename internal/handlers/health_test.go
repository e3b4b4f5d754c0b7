package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgexpo/voicegateway/internal/clients"
	"github.com/edgexpo/voicegateway/internal/health"
)

func TestHealthHandler_Ops(t *testing.T) {
	reporter := &mockReporter{
		report: func(context.Context) health.OpsReport {
			return health.OpsReport{
				Status:   health.OverallPartial,
				Version:  health.Version,
				Services: map[string]bool{"stt": true, "tts": false},
				Microservices: map[string]clients.HealthStatus{
					"stt": {Status: clients.StatusHealthy},
					"tts": {Status: clients.StatusUnreachable},
				},
				Config: map[string]string{"stt_service_url": "http://stt:5003"},
			}
		},
	}
	handler := NewHealthHandler(reporter, testLogger())

	w := httptest.NewRecorder()
	handler.Ops(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, map[string]any{"stt": true, "tts": false}, body["services"])
	assert.NotContains(t, body, "error")
}

func TestHealthHandler_System(t *testing.T) {
	tests := []struct {
		name       string
		report     health.SystemReport
		wantStatus int
	}{
		{
			name: "healthy",
			report: health.SystemReport{Status: health.OverallHealthy, Services: map[string]string{
				"whisper": health.Ready, "llm": health.Ready, "tts": health.Ready,
			}},
			wantStatus: http.StatusOK,
		},
		{
			name: "partial",
			report: health.SystemReport{Status: health.OverallPartial, Services: map[string]string{
				"whisper": health.Ready, "llm": health.NotReady, "tts": health.Ready,
			}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "aggregation failed",
			report:     health.SystemReport{Status: health.OverallUnhealthy, Error: "health aggregation failed: boom"},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&mockReporter{
				system: func(context.Context) health.SystemReport { return tt.report },
			}, testLogger())

			w := httptest.NewRecorder()
			handler.System(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.report.Status), decodeBody(t, w)["status"])
		})
	}
}
