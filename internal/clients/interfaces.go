package clients

import (
	"context"
	"net/http"
)

// HTTPDoer is the request executor shared by the session and SDK clients
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HealthChecker is implemented by every service client
type HealthChecker interface {
	CheckHealth(ctx context.Context) HealthStatus
}

// SpeechToText defines the STT operations used by handlers
type SpeechToText interface {
	HealthChecker
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// TextToSpeech defines the TTS operations used by handlers
type TextToSpeech interface {
	HealthChecker
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
	ListLanguages(ctx context.Context) []string
	ListVoices(ctx context.Context) map[string][]string
}

// Embedder defines the embedding operations used by the RAG service
type Embedder interface {
	HealthChecker
	GetEmbeddings(ctx context.Context, req EmbeddingRequest) ([][]float32, error)
	GetEmbedding(ctx context.Context, text, model string) ([]float32, error)
}

// LanguageModel defines the generation operations used by the RAG service
type LanguageModel interface {
	HealthChecker
	Generate(ctx context.Context, req CompletionRequest) (string, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

var (
	_ SpeechToText  = (*SpeechToTextClient)(nil)
	_ TextToSpeech  = (*TextToSpeechClient)(nil)
	_ Embedder      = (*EmbeddingClient)(nil)
	_ LanguageModel = (*LanguageModelClient)(nil)
)
