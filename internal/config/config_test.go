package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the loader reads for the duration of t
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STT_SERVICE_URL", "TTS_SERVICE_URL", "EMBEDDING_SERVICE_URL", "LLM_SERVICE_URL",
		"LLM_API_KEY", "EMBEDDING_MODEL", "LLM_MODEL", "PORT", "HOST", "CORS_ORIGINS",
		"LOG_LEVEL", "DATA_DIR", "KNOWLEDGE_DIR", "CRM_BACKEND", "REDIS_ADDR",
		"REDIS_PASSWORD", "REDIS_DB", "CHUNK_SIZE", "CHUNK_OVERLAP",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 60*time.Second, cfg.Services.STT.GetTimeout())
	assert.Equal(t, 30*time.Second, cfg.Services.TTS.GetTimeout())
	assert.Equal(t, 5*time.Second, cfg.Services.GetHealthTimeout())
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr())
	assert.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes())
	assert.Equal(t, 2, cfg.Services.STT.MaxRetries)
	assert.Equal(t, 3, cfg.Services.TTS.MaxRetries)
	assert.Equal(t, 2, cfg.Services.LLM.MaxRetries)
	assert.Zero(t, cfg.Services.Embedding.MaxRetries)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 8080
  read_timeout_seconds: 10
services:
  llm:
    url: http://llm:8910
    timeout_seconds: 90
    max_retries: 1
    model: Qwen
crm:
  backend: redis
  redis_addr: redis:6379
log_level: debug
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.GetReadTimeout())
	assert.Equal(t, 120*time.Second, cfg.Server.GetWriteTimeout())
	assert.Equal(t, "http://llm:8910", cfg.Services.LLM.URL)
	assert.Equal(t, 90*time.Second, cfg.Services.LLM.GetTimeout())
	assert.Equal(t, 1, cfg.Services.LLM.MaxRetries)
	assert.Equal(t, "Qwen", cfg.Services.LLM.Model)
	assert.Equal(t, "123", cfg.Services.LLM.APIKey)
	assert.Equal(t, "http://localhost:5003", cfg.Services.STT.URL)
	assert.Equal(t, CRMBackendRedis, cfg.CRM.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_SERVICE_URL", "http://stt:5003")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example,")
	t.Setenv("CHUNK_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "30")
	path := writeConfig(t, "server:\n  port: 8080\n")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://stt:5003", cfg.Services.STT.URL)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 300, cfg.RAG.ChunkSize)
	assert.Equal(t, 30, cfg.RAG.ChunkOverlap)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set
	os.Unsetenv("LLM_MODEL")
	os.Unsetenv("LOG_LEVEL")
	t.Cleanup(func() {
		os.Unsetenv("LLM_MODEL")
		os.Unsetenv("LOG_LEVEL")
	})

	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LLM_MODEL=Llama-3\nLOG_LEVEL=warn\n"), 0o644))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), envPath)
	require.NoError(t, err)

	assert.Equal(t, "Llama-3", cfg.Services.LLM.Model)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad yaml", yaml: "server: [unclosed"},
		{name: "bad port", yaml: "server:\n  port: 70000\n"},
		{name: "missing url", yaml: "services:\n  tts:\n    url: \"\"\n"},
		{name: "zero timeout", yaml: "services:\n  stt:\n    timeout_seconds: 0\n"},
		{name: "overlap too large", yaml: "rag:\n  chunk_size: 10\n  chunk_overlap: 10\n"},
		{name: "unknown crm backend", yaml: "crm:\n  backend: mongo\n"},
		{name: "unknown log level", yaml: "log_level: verbose\n"},
		{name: "non numeric port", yaml: "", env: map[string]string{"PORT": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tt.yaml), filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
