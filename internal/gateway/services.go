package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/edgexpo/voicegateway/internal/clients"
	"github.com/edgexpo/voicegateway/internal/config"
	"github.com/edgexpo/voicegateway/internal/crm"
	"github.com/edgexpo/voicegateway/internal/health"
	"github.com/edgexpo/voicegateway/internal/rag"
)

// Services is the process-wide set of backend clients and lazily built
// domain services
type Services struct {
	STT       *clients.SpeechToTextClient
	TTS       *clients.TextToSpeechClient
	Embedding *clients.EmbeddingClient
	LLM       *clients.LanguageModelClient

	RAG *Lazy[*rag.Service]
	CRM *Lazy[*crm.Service]

	Health *health.Aggregator

	logger *slog.Logger

	mu      sync.Mutex
	closers []func()
}

// New builds the clients from cfg. The RAG and CRM services are built on
// first use.
func New(cfg *config.Config, logger *slog.Logger) *Services {
	opts := []clients.Option{
		clients.WithLogger(logger),
		clients.WithHealthTimeout(cfg.Services.GetHealthTimeout()),
	}
	endpoint := func(name string, ep config.EndpointConfig) clients.ServiceEndpoint {
		return clients.ServiceEndpoint{Name: name, BaseURL: ep.URL, Timeout: ep.GetTimeout(), MaxRetries: ep.MaxRetries}
	}

	s := &Services{
		STT: clients.NewSpeechToTextClient(endpoint("STT", cfg.Services.STT), opts...),
		TTS: clients.NewTextToSpeechClient(endpoint("TTS", cfg.Services.TTS),
			append(opts, clients.WithCacheDir(cfg.Services.TTSCacheDir))...),
		Embedding: clients.NewEmbeddingClient(endpoint("Embedding", cfg.Services.Embedding),
			cfg.Services.Embedding.Model, opts...),
		LLM: clients.NewLanguageModelClient(endpoint("LLM", cfg.Services.LLM),
			cfg.Services.LLM.APIKey, cfg.Services.LLM.Model, opts...),
		logger: logger,
	}
	s.closers = append(s.closers, s.STT.Close, s.TTS.Close, s.Embedding.Close, s.LLM.Close)

	s.RAG = NewLazy(func(ctx context.Context) (*rag.Service, error) {
		return rag.New(ctx, rag.Config{
			KnowledgeDir: cfg.RAG.KnowledgeDir,
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
			TopK:         cfg.RAG.TopK,
			Workers:      cfg.RAG.Workers,
		}, s.Embedding, s.LLM, logger.With("component", "rag"))
	})

	s.CRM = NewLazy(func(ctx context.Context) (*crm.Service, error) {
		store, err := s.contactStore(ctx, cfg.CRM, cfg.ContactsDir())
		if err != nil {
			return nil, err
		}
		return crm.NewService(store, logger.With("component", "crm")), nil
	})

	s.Health = health.NewAggregator(health.Config{
		STT:            s.STT,
		TTS:            s.TTS,
		Embedding:      s.Embedding,
		LLM:            s.LLM,
		RAGInitialized: s.RAG.Initialized,
		CRMInitialized: s.CRM.Initialized,
		URLs: map[string]string{
			"stt_service_url":       cfg.Services.STT.URL,
			"tts_service_url":       cfg.Services.TTS.URL,
			"embedding_service_url": cfg.Services.Embedding.URL,
			"llm_service_url":       cfg.Services.LLM.URL,
		},
		Logger: logger,
	})

	return s
}

func (s *Services) contactStore(ctx context.Context, cfg config.CRMConfig, dir string) (crm.Store, error) {
	if cfg.Backend != config.CRMBackendRedis {
		return crm.NewFileStore(dir)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	var opts []crm.RedisOption
	if cfg.RedisPrefix != "" {
		opts = append(opts, crm.WithRedisPrefix(cfg.RedisPrefix))
	}
	store := crm.NewRedisStore(client, opts...)
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.mu.Lock()
	s.closers = append(s.closers, func() { client.Close() })
	s.mu.Unlock()
	return store, nil
}

// Preload builds the RAG service so the first query does not pay for
// indexing. Failures are logged and retried on first use.
func (s *Services) Preload(ctx context.Context) {
	if _, err := s.RAG.Get(ctx); err != nil {
		s.logger.Warn("rag preload failed", "error", err)
		return
	}
	s.logger.Info("rag service ready")
}

// Close releases the backend connection pools and the Redis client
func (s *Services) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.closers {
		c()
	}
}
