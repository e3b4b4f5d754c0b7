package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgexpo/voicegateway/internal/config"
	"github.com/edgexpo/voicegateway/internal/gateway"
)

// newTestRouter wires the router to a fake backend that answers every
// health probe healthy
func newTestRouter(t *testing.T, mutate func(cfg *config.Config)) http.Handler {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			io.WriteString(w, `{"status":"healthy"}`)
		case "/v1/models":
			io.WriteString(w, `{"object":"list","data":[{"id":"Phi-3.5-mini","object":"model"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.Services.STT.URL = backend.URL
	cfg.Services.TTS.URL = backend.URL
	cfg.Services.Embedding.URL = backend.URL
	cfg.Services.LLM.URL = backend.URL
	cfg.Services.TTSCacheDir = t.TempDir()
	cfg.RAG.KnowledgeDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.DiscardHandler)
	services := gateway.New(cfg, logger)
	t.Cleanup(services.Close)
	return NewRouter(cfg, services, logger)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_OpsHealth(t *testing.T) {
	router := newTestRouter(t, nil)

	w := do(router, http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	services := body["services"].(map[string]any)
	assert.Equal(t, true, services["stt"])
	assert.Equal(t, false, services["rag"])
	assert.Equal(t, false, services["crm"])
}

func TestRouter_RequestID(t *testing.T) {
	router := newTestRouter(t, nil)

	w := do(router, http.MethodGet, "/api/tts/languages", "")
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/tts/languages", nil)
	req.Header.Set(requestIDHeader, "booth-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "booth-42", w.Header().Get(requestIDHeader))
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	router := newTestRouter(t, nil)

	w := do(router, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, w.Body.String())

	w = do(router, http.MethodGet, "/api/rag", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)
	do(router, http.MethodGet, "/api/health", "")

	w := do(router, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voicegateway_service_up")
}

func TestRouter_ContactLifecycle(t *testing.T) {
	router := newTestRouter(t, nil)

	w := do(router, http.MethodPost, "/api/crm/contacts", `{"name":"Booth Visitor","company":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	id := created["contact_id"]
	require.True(t, strings.HasPrefix(id, "contact_"))

	w = do(router, http.MethodPut, "/api/crm/contacts/"+id, `{"position":"Buyer"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/crm/contacts/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"position":"Buyer"`)

	w = do(router, http.MethodGet, "/api/crm/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_contacts":1`)

	w = do(router, http.MethodDelete, "/api/crm/contacts/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/crm/contacts/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.Config) { cfg.Server.RateLimitPerMinute = 2 })

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/crm/statistics", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/crm/statistics", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(router, http.MethodGet, "/api/crm/statistics", "").Code)

	// health stays outside the limit
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/health", "").Code)
}
