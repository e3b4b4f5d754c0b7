package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgexpo/voicegateway/internal/clients"
	"github.com/edgexpo/voicegateway/internal/crm"
	"github.com/edgexpo/voicegateway/internal/health"
	"github.com/edgexpo/voicegateway/internal/rag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// mockSTT implements clients.SpeechToText for testing
type mockSTT struct {
	transcribeFunc func(ctx context.Context, req clients.TranscriptionRequest) (string, error)
}

func (m *mockSTT) Transcribe(ctx context.Context, req clients.TranscriptionRequest) (string, error) {
	if m.transcribeFunc != nil {
		return m.transcribeFunc(ctx, req)
	}
	return "", nil
}

func (m *mockSTT) CheckHealth(context.Context) clients.HealthStatus {
	return clients.HealthStatus{Status: clients.StatusHealthy}
}

// mockTTS implements clients.TextToSpeech for testing
type mockTTS struct {
	synthesizeFunc func(ctx context.Context, req clients.SynthesisRequest) (string, error)
	languages      []string
	voices         map[string][]string
}

func (m *mockTTS) Synthesize(ctx context.Context, req clients.SynthesisRequest) (string, error) {
	if m.synthesizeFunc != nil {
		return m.synthesizeFunc(ctx, req)
	}
	return "", nil
}

func (m *mockTTS) ListLanguages(context.Context) []string         { return m.languages }
func (m *mockTTS) ListVoices(context.Context) map[string][]string { return m.voices }

func (m *mockTTS) CheckHealth(context.Context) clients.HealthStatus {
	return clients.HealthStatus{Status: clients.StatusHealthy}
}

// mockKnowledgeBase implements KnowledgeBase for testing
type mockKnowledgeBase struct {
	queryFunc  func(ctx context.Context, query, language string) string
	items      []rag.Item
	updateFunc func(ctx context.Context, id, content, category string) (string, error)
	deleteFunc func(id string) (bool, error)
}

func (m *mockKnowledgeBase) Query(ctx context.Context, query, language string) string {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, query, language)
	}
	return ""
}

func (m *mockKnowledgeBase) ListItems() []rag.Item { return m.items }

func (m *mockKnowledgeBase) UpdateItem(ctx context.Context, id, content, category string) (string, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, content, category)
	}
	return id, nil
}

func (m *mockKnowledgeBase) DeleteItem(id string) (bool, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(id)
	}
	return true, nil
}

// mockContacts implements ContactService for testing
type mockContacts struct {
	createFunc  func(ctx context.Context, in crm.ContactInput) (crm.Contact, error)
	getFunc     func(ctx context.Context, id string) (crm.Contact, error)
	updateFunc  func(ctx context.Context, id string, in crm.ContactInput) (crm.Contact, error)
	catalogFunc func(ctx context.Context, id string) (crm.Contact, error)
	deleteFunc  func(ctx context.Context, id string) error
	listFunc    func(ctx context.Context, limit, offset int) (crm.Page, error)
	statsFunc   func(ctx context.Context) (crm.Statistics, error)
}

func (m *mockContacts) Create(ctx context.Context, in crm.ContactInput) (crm.Contact, error) {
	return m.createFunc(ctx, in)
}

func (m *mockContacts) Get(ctx context.Context, id string) (crm.Contact, error) {
	return m.getFunc(ctx, id)
}

func (m *mockContacts) Update(ctx context.Context, id string, in crm.ContactInput) (crm.Contact, error) {
	return m.updateFunc(ctx, id, in)
}

func (m *mockContacts) MarkCatalogSent(ctx context.Context, id string) (crm.Contact, error) {
	return m.catalogFunc(ctx, id)
}

func (m *mockContacts) Delete(ctx context.Context, id string) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockContacts) List(ctx context.Context, limit, offset int) (crm.Page, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *mockContacts) Statistics(ctx context.Context) (crm.Statistics, error) {
	return m.statsFunc(ctx)
}

// mockReporter implements HealthReporter for testing
type mockReporter struct {
	report func(ctx context.Context) health.OpsReport
	system func(ctx context.Context) health.SystemReport
}

func (m *mockReporter) Report(ctx context.Context) health.OpsReport { return m.report(ctx) }

func (m *mockReporter) SystemReport(ctx context.Context) health.SystemReport { return m.system(ctx) }
