package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBackendRequest(t *testing.T) {
	backendRequestsTotal.Reset()
	backendRequestDuration.Reset()

	RecordBackendRequest("TTS", "POST", 200, 10*time.Millisecond)
	RecordBackendRequest("TTS", "POST", 503, 20*time.Millisecond)
	RecordBackendRequest("TTS", "POST", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(backendRequestsTotal.WithLabelValues("TTS", "POST", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(backendRequestsTotal.WithLabelValues("TTS", "POST", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(backendRequestsTotal.WithLabelValues("TTS", "POST", "error")))
	assert.NotZero(t, testutil.CollectAndCount(backendRequestDuration))
}

func TestRecordRetry(t *testing.T) {
	backendRetriesTotal.Reset()

	RecordRetry("STT", LayerOperation)
	RecordRetry("STT", LayerOperation)
	RecordRetry("STT", LayerTransport)

	assert.Equal(t, 2.0, testutil.ToFloat64(backendRetriesTotal.WithLabelValues("STT", LayerOperation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(backendRetriesTotal.WithLabelValues("STT", LayerTransport)))
}

func TestSetServiceUp(t *testing.T) {
	serviceUp.Reset()

	SetServiceUp("LLM", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(serviceUp.WithLabelValues("LLM")))

	SetServiceUp("LLM", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(serviceUp.WithLabelValues("LLM")))
}

func TestHandler_ServesGatewayMetrics(t *testing.T) {
	SetServiceUp("Embedding", true)

	w := httptest.NewRecorder()
	Handler(NewRegistry()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "voicegateway_service_up"))
}
