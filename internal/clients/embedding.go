package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultEmbeddingTimeout = 30 * time.Second

	// DefaultEmbeddingModel is used when a request names no model
	DefaultEmbeddingModel = "nomic-embed"
)

// EmbeddingRequest carries texts to embed in one call
type EmbeddingRequest struct {
	Texts []string
	Model string
}

// EmbeddingClient handles communication with the Ollama-compatible embedding backend
type EmbeddingClient struct {
	baseClient
	defaultModel string
}

// NewEmbeddingClient creates a new embedding client. An empty model selects nomic-embed.
func NewEmbeddingClient(endpoint ServiceEndpoint, model string, opts ...Option) *EmbeddingClient {
	if endpoint.Name == "" {
		endpoint.Name = "Embedding"
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	base, _ := newBaseClient(endpoint, defaultEmbeddingTimeout, 0, 0, opts)
	return &EmbeddingClient{baseClient: base, defaultModel: model}
}

// DefaultModel returns the model used when a request names none
func (c *EmbeddingClient) DefaultModel() string {
	return c.defaultModel
}

type embeddingsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// GetEmbeddings embeds all texts in one call. An empty batch returns an
// empty result without calling the backend.
func (c *EmbeddingClient) GetEmbeddings(ctx context.Context, req EmbeddingRequest) ([][]float32, error) {
	if len(req.Texts) == 0 {
		return [][]float32{}, nil
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	// The backend takes a bare string for a single text
	var input any = req.Texts
	if len(req.Texts) == 1 {
		input = req.Texts[0]
	}

	body, err := json.Marshal(map[string]any{"model": model, "input": input})
	if err != nil {
		return nil, newUnexpectedError(c.endpoint.Name, fmt.Errorf("failed to marshal request: %w", err))
	}

	resp, err := c.session.Request(ctx, http.MethodPost, c.url("/api/embeddings"), c.endpoint.Timeout, body, "application/json")
	if err != nil {
		return nil, err
	}

	var result embeddingsResponse
	if err := resp.JSON(&result); err != nil {
		return nil, newUnexpectedError(c.endpoint.Name, err)
	}
	return result.Embeddings, nil
}

// GetEmbedding embeds a single text as a batch of one
func (c *EmbeddingClient) GetEmbedding(ctx context.Context, text, model string) ([]float32, error) {
	embeddings, err := c.GetEmbeddings(ctx, EmbeddingRequest{Texts: []string{text}, Model: model})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return []float32{}, nil
	}
	return embeddings[0], nil
}

// GetEmbeddingsBatchSimple tries the alternate /embed/batch endpoint and
// falls back to GetEmbeddings on any failure.
func (c *EmbeddingClient) GetEmbeddingsBatchSimple(ctx context.Context, req EmbeddingRequest) ([][]float32, error) {
	if len(req.Texts) == 0 {
		return [][]float32{}, nil
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(map[string]any{"texts": req.Texts, "model": model})
	if err != nil {
		return nil, newUnexpectedError(c.endpoint.Name, fmt.Errorf("failed to marshal request: %w", err))
	}

	resp, err := c.session.RequestOnce(ctx, http.MethodPost, c.url("/embed/batch"), c.endpoint.Timeout, body, "application/json")
	if err == nil && resp.StatusCode == http.StatusOK {
		var result embeddingsResponse
		if err = resp.JSON(&result); err == nil {
			return result.Embeddings, nil
		}
	}

	c.logger.Warn("batch endpoint failed, falling back to primary endpoint", "service", c.endpoint.Name, "error", err)
	return c.GetEmbeddings(ctx, EmbeddingRequest{Texts: req.Texts, Model: model})
}

// ListModels returns the backend's model names, or the default model on any failure
func (c *EmbeddingClient) ListModels(ctx context.Context) []string {
	resp, err := c.session.Probe(ctx, c.url("/api/tags"), c.healthTimeout)
	if err != nil {
		c.logger.Warn("failed to list embedding models", "error", err)
		return []string{c.defaultModel}
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := resp.JSON(&result); err != nil {
		return []string{c.defaultModel}
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names
}

// CheckHealth probes the embedding backend
func (c *EmbeddingClient) CheckHealth(ctx context.Context) HealthStatus {
	return c.checkHealth(ctx)
}
