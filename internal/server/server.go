package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/edgexpo/voicegateway/internal/config"
	"github.com/edgexpo/voicegateway/internal/gateway"
	"github.com/edgexpo/voicegateway/internal/handlers"
	"github.com/edgexpo/voicegateway/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new HTTP server with configured routes and middleware
func New(cfg *config.Config, services *gateway.Services, logger *slog.Logger) *Server {
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      NewRouter(cfg, services, logger),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger,
	}
}

// NewRouter builds the gateway routes
func NewRouter(cfg *config.Config, services *gateway.Services, logger *slog.Logger) http.Handler {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(services.Health, logger)
	speechHandler := handlers.NewSpeechHandler(services.STT, "", cfg.Server.MaxUploadBytes(), logger)
	synthesisHandler := handlers.NewSynthesisHandler(services.TTS, logger)
	knowledgeHandler := handlers.NewKnowledgeHandler(func(ctx context.Context) (handlers.KnowledgeBase, error) {
		return services.RAG.Get(ctx)
	}, logger)
	contactHandler := handlers.NewContactHandler(func(ctx context.Context) (handlers.ContactService, error) {
		return services.CRM.Get(ctx)
	}, logger)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}))

	// Setup routes
	r.Get("/api/health", healthHandler.Ops)
	r.Get("/api/v1/system/health", healthHandler.System)
	r.Handle("/metrics", metrics.Handler(metrics.NewRegistry()))

	r.Group(func(r chi.Router) {
		if cfg.Server.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.Server.RateLimitPerMinute, time.Minute))
		}

		r.Post("/api/asr", speechHandler.ServeHTTP)

		r.Post("/api/tts", synthesisHandler.Synthesize)
		r.Get("/api/tts/languages", synthesisHandler.Languages)
		r.Get("/api/tts/voices", synthesisHandler.Voices)

		r.Post("/api/rag", knowledgeHandler.Query)
		r.Get("/api/kb/list", knowledgeHandler.List)
		r.Post("/api/kb/update", knowledgeHandler.Update)
		r.Delete("/api/kb/delete", knowledgeHandler.Delete)

		r.Route("/api/crm", func(r chi.Router) {
			r.Post("/contacts", contactHandler.Create)
			r.Get("/contacts", contactHandler.List)
			r.Get("/contacts/{id}", contactHandler.Get)
			r.Put("/contacts/{id}", contactHandler.Update)
			r.Delete("/contacts/{id}", contactHandler.Delete)
			r.Post("/contacts/{id}/catalog-sent", contactHandler.MarkCatalogSent)
			r.Get("/statistics", contactHandler.Statistics)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// requestID propagates the caller's X-Request-ID or assigns a new one
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs incoming HTTP requests
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response writer wrapper to capture status code
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			logger.Info("request completed",
				"request_id", r.Header.Get(requestIDHeader),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
