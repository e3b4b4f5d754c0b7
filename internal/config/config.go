package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CRM storage backends
const (
	CRMBackendFile  = "file"
	CRMBackendRedis = "redis"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Services ServicesConfig `yaml:"services"`
	RAG      RAGConfig      `yaml:"rag"`
	CRM      CRMConfig      `yaml:"crm"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	CORSOrigins         []string `yaml:"cors_origins"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`
	MaxUploadMB         int      `yaml:"max_upload_mb"`
}

// ServicesConfig holds the backend microservice endpoints
type ServicesConfig struct {
	STT                  EndpointConfig `yaml:"stt"`
	TTS                  EndpointConfig `yaml:"tts"`
	Embedding            EndpointConfig `yaml:"embedding"`
	LLM                  EndpointConfig `yaml:"llm"`
	HealthTimeoutSeconds int            `yaml:"health_timeout_seconds"`
	TTSCacheDir          string         `yaml:"tts_cache_dir"`
}

// EndpointConfig holds the URL and call settings of one backend
type EndpointConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"` // 0 selects the service default
	Model          string `yaml:"model,omitempty"`
	APIKey         string `yaml:"api_key,omitempty"`
}

// RAGConfig holds knowledge base settings
type RAGConfig struct {
	KnowledgeDir string `yaml:"knowledge_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	Workers      int    `yaml:"workers"`
}

// CRMConfig selects and configures the contact store
type CRMConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                5000,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
			CORSOrigins:         []string{"*"},
			RateLimitPerMinute:  120,
			MaxUploadMB:         16,
		},
		Services: ServicesConfig{
			STT:                  EndpointConfig{URL: "http://localhost:5003", TimeoutSeconds: 60, MaxRetries: 2},
			TTS:                  EndpointConfig{URL: "http://localhost:5004", TimeoutSeconds: 30, MaxRetries: 3},
			Embedding:            EndpointConfig{URL: "http://localhost:11434", TimeoutSeconds: 30, Model: "nomic-embed"},
			LLM:                  EndpointConfig{URL: "http://127.0.0.1:8910", TimeoutSeconds: 60, MaxRetries: 2, Model: "Phi-3.5-mini", APIKey: "123"},
			HealthTimeoutSeconds: 5,
		},
		RAG: RAGConfig{
			KnowledgeDir: "knowledge_base",
			ChunkSize:    500,
			ChunkOverlap: 50,
			TopK:         3,
			Workers:      4,
		},
		CRM: CRMConfig{
			Backend:     CRMBackendFile,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "voicegateway:crm",
		},
		DataDir:  "data",
		LogLevel: "info",
	}
}

// GetReadTimeout returns the configured read timeout as time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// GetWriteTimeout returns the configured write timeout as time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// MaxUploadBytes returns the multipart upload limit in bytes
func (s *ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// GetTimeout returns the per-call timeout as time.Duration
func (e *EndpointConfig) GetTimeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// GetHealthTimeout returns the health probe timeout as time.Duration
func (s *ServicesConfig) GetHealthTimeout() time.Duration {
	return time.Duration(s.HealthTimeoutSeconds) * time.Second
}

// ContactsDir is where the file CRM store keeps contacts.json
func (c *Config) ContactsDir() string {
	return c.DataDir
}

// Load reads the configuration file, then applies .env files and environment
// overrides. A missing config file falls back to defaults; missing .env
// files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", key, v)
		}
		*dst = n
		return nil
	}

	str("STT_SERVICE_URL", &c.Services.STT.URL)
	str("TTS_SERVICE_URL", &c.Services.TTS.URL)
	str("EMBEDDING_SERVICE_URL", &c.Services.Embedding.URL)
	str("LLM_SERVICE_URL", &c.Services.LLM.URL)
	str("LLM_API_KEY", &c.Services.LLM.APIKey)
	str("EMBEDDING_MODEL", &c.Services.Embedding.Model)
	str("LLM_MODEL", &c.Services.LLM.Model)
	str("HOST", &c.Server.Host)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATA_DIR", &c.DataDir)
	str("KNOWLEDGE_DIR", &c.RAG.KnowledgeDir)
	str("CRM_BACKEND", &c.CRM.Backend)
	str("REDIS_ADDR", &c.CRM.RedisAddr)
	str("REDIS_PASSWORD", &c.CRM.RedisPassword)

	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}

	for key, dst := range map[string]*int{
		"PORT":          &c.Server.Port,
		"CHUNK_SIZE":    &c.RAG.ChunkSize,
		"CHUNK_OVERLAP": &c.RAG.ChunkOverlap,
		"REDIS_DB":      &c.CRM.RedisDB,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate ensures all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	for name, ep := range map[string]EndpointConfig{
		"stt":       c.Services.STT,
		"tts":       c.Services.TTS,
		"embedding": c.Services.Embedding,
		"llm":       c.Services.LLM,
	} {
		if ep.URL == "" {
			return fmt.Errorf("services.%s.url is required", name)
		}
		if ep.TimeoutSeconds <= 0 {
			return fmt.Errorf("services.%s.timeout_seconds must be positive", name)
		}
		if ep.MaxRetries < 0 {
			return fmt.Errorf("services.%s.max_retries must not be negative", name)
		}
	}

	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be between 0 and chunk_size")
	}

	switch c.CRM.Backend {
	case CRMBackendFile:
	case CRMBackendRedis:
		if c.CRM.RedisAddr == "" {
			return fmt.Errorf("crm.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown crm backend: %q", c.CRM.Backend)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}

	return nil
}
