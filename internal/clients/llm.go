package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultLLMTimeout = 60 * time.Second
	defaultLLMBackoff = 800 * time.Millisecond
	defaultLLMRetries = 2

	// DefaultLLMModel is used when a request names no model
	DefaultLLMModel = "Phi-3.5-mini"

	// DefaultLLMAPIKey is accepted by the local inference server
	DefaultLLMAPIKey = "123"

	defaultMaxTokens   = 512
	defaultTemperature = 0.7

	llmServiceName = "Genie LLM Service"
)

// Sampling is the vendor extension block merged into chat completion bodies
type Sampling struct {
	Size int     `json:"size"`
	Temp float64 `json:"temp"`
	TopK int     `json:"top_k"`
	TopP float64 `json:"top_p"`
}

func generationSampling(temperature float32) Sampling {
	// float32 -> float64 widening would otherwise leak noise digits into the body
	temp := math.Round(float64(temperature)*1e4) / 1e4
	return Sampling{Size: 4096, Temp: temp, TopK: 13, TopP: 0.6}
}

// probeSampling keeps the liveness completion as cheap as possible
var probeSampling = Sampling{Size: 4096, Temp: 0.1, TopK: 1, TopP: 0.1}

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest generates text for a single prompt. A zero MaxTokens
// or Temperature selects the defaults (512, 0.7).
type CompletionRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// ChatRequest generates the next assistant turn. Zero values select defaults
// as in CompletionRequest.
type ChatRequest struct {
	Messages    []ChatMessage
	Model       string
	MaxTokens   int
	Temperature float32
}

// LanguageModelClient talks to an OpenAI-compatible inference server
type LanguageModelClient struct {
	baseClient
	api          *openai.Client
	probe        *openai.Client
	defaultModel string
}

// NewLanguageModelClient creates a new LLM client. The OpenAI API is served
// under <base>/v1. Empty apiKey and model select the local defaults.
func NewLanguageModelClient(endpoint ServiceEndpoint, apiKey, model string, opts ...Option) *LanguageModelClient {
	if endpoint.Name == "" {
		endpoint.Name = "LLM"
	}
	if apiKey == "" {
		apiKey = DefaultLLMAPIKey
	}
	if model == "" {
		model = DefaultLLMModel
	}
	base, _ := newBaseClient(endpoint, defaultLLMTimeout, defaultLLMBackoff, defaultLLMRetries, opts)

	newAPI := func(doer HTTPDoer) *openai.Client {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = base.endpoint.BaseURL + "/v1"
		cfg.HTTPClient = &samplingDoer{next: doer}
		return openai.NewClientWithConfig(cfg)
	}

	return &LanguageModelClient{
		baseClient:   base,
		api:          newAPI(base.session),
		probe:        newAPI(base.session.ProbeDoer(base.healthTimeout)),
		defaultModel: model,
	}
}

// DefaultModel returns the model used when a request names none
func (c *LanguageModelClient) DefaultModel() string {
	return c.defaultModel
}

// Generate completes a single user prompt
func (c *LanguageModelClient) Generate(ctx context.Context, req CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", newValidationError(c.endpoint.Name, "prompt is required")
	}
	return c.Chat(ctx, ChatRequest{
		Messages:    []ChatMessage{{Role: openai.ChatMessageRoleUser, Content: req.Prompt}},
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
}

// Chat returns the assistant reply for the conversation
func (c *LanguageModelClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", newValidationError(c.endpoint.Name, "messages are required")
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	completion := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	sampling := generationSampling(temperature)

	return withRetry(ctx, &c.baseClient, "chat", func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateChatCompletion(withSampling(ctx, sampling), completion)
		if err != nil {
			return "", c.apiError(err)
		}
		if len(resp.Choices) == 0 {
			return "", newUnexpectedError(c.endpoint.Name, errors.New("completion has no choices"))
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// CheckHealth lists models first and falls back to a 1-token completion.
// The backend is unreachable only when both fail.
func (c *LanguageModelClient) CheckHealth(ctx context.Context) HealthStatus {
	models, err := c.probe.ListModels(ctx)
	if err == nil {
		names := make([]string, 0, len(models.Models))
		for _, m := range models.Models {
			names = append(names, m.ID)
		}
		return HealthStatus{
			Status: StatusHealthy,
			Detail: map[string]any{
				"model":            c.defaultModel,
				"service":          llmServiceName,
				"available_models": names,
			},
			CheckedAt: time.Now(),
		}
	}

	c.logger.Warn("model listing failed, probing with completion", "service", c.endpoint.Name, "error", err)

	_, err = c.probe.CreateChatCompletion(withSampling(ctx, probeSampling), openai.ChatCompletionRequest{
		Model:       c.defaultModel,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "Hi"}},
		MaxTokens:   1,
		Temperature: 0.1,
	})
	if err != nil {
		return unreachable(c.apiError(err))
	}

	return HealthStatus{
		Status: StatusHealthy,
		Detail: map[string]any{
			"model":   c.defaultModel,
			"service": llmServiceName,
			"probe":   "completion",
		},
		CheckedAt: time.Now(),
	}
}

// apiError maps SDK errors onto the ServiceError taxonomy
func (c *LanguageModelClient) apiError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{
			Service:    c.endpoint.Name,
			Kind:       KindUpstream,
			StatusCode: apiErr.HTTPStatusCode,
			Detail:     apiErr.Message,
			Cause:      err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ServiceError{
			Service:    c.endpoint.Name,
			Kind:       KindUpstream,
			StatusCode: reqErr.HTTPStatusCode,
			Cause:      err,
		}
	}

	return transportError(c.endpoint.Name, err)
}

type samplingKey struct{}

func withSampling(ctx context.Context, s Sampling) context.Context {
	return context.WithValue(ctx, samplingKey{}, s)
}

// samplingDoer merges the Sampling block carried by the request context
// into chat completion bodies before they reach the session.
type samplingDoer struct {
	next HTTPDoer
}

func (d *samplingDoer) Do(req *http.Request) (*http.Response, error) {
	sampling, ok := req.Context().Value(samplingKey{}).(Sampling)
	if !ok || req.Body == nil || !strings.HasSuffix(req.URL.Path, "/chat/completions") {
		return d.next.Do(req)
	}

	body, err := mergeSampling(req.Body, sampling)
	if err != nil {
		return nil, err
	}

	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return d.next.Do(req)
}

func mergeSampling(r io.ReadCloser, sampling Sampling) ([]byte, error) {
	defer r.Close()

	var payload map[string]any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode completion request: %w", err)
	}

	extra, err := json.Marshal(sampling)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sampling: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(extra, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode sampling: %w", err)
	}
	for k, v := range fields {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}
	return body, nil
}
