package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultSTTTimeout  = 60 * time.Second
	defaultSTTBackoff  = 500 * time.Millisecond
	defaultSTTRetries  = 2
	defaultSTTLanguage = "zh"
)

// TranscriptionRequest carries one audio file to transcribe
type TranscriptionRequest struct {
	AudioPath string
	Language  string
}

// SpeechToTextClient handles communication with the STT backend
type SpeechToTextClient struct {
	baseClient
}

// NewSpeechToTextClient creates a new STT client
func NewSpeechToTextClient(endpoint ServiceEndpoint, opts ...Option) *SpeechToTextClient {
	if endpoint.Name == "" {
		endpoint.Name = "STT"
	}
	base, _ := newBaseClient(endpoint, defaultSTTTimeout, defaultSTTBackoff, defaultSTTRetries, opts)
	return &SpeechToTextClient{baseClient: base}
}

type transcriptionResponse struct {
	Transcription string `json:"transcription"`
	Message       string `json:"message"`
}

// Transcribe uploads the audio file and returns its transcription. A 202
// from the backend means the request was queued and yields a KindBusy
// error, which is never retried.
func (c *SpeechToTextClient) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if req.AudioPath == "" {
		return "", newValidationError(c.endpoint.Name, "audio file is required")
	}

	lang := MapSTTLanguage(req.Language)
	if lang == "" {
		lang = defaultSTTLanguage
	}

	return withRetry(ctx, &c.baseClient, "transcribe", func(ctx context.Context) (string, error) {
		body, contentType, err := audioForm(req.AudioPath, lang)
		if err != nil {
			c.logger.Error("failed to read audio file", "service", c.endpoint.Name, "error", err)
			return "", newValidationError(c.endpoint.Name, "audio file could not be read")
		}

		resp, err := c.session.Request(ctx, http.MethodPost, c.url("/transcribe"), c.endpoint.Timeout, body, contentType)
		if err != nil {
			return "", err
		}

		var result transcriptionResponse
		switch resp.StatusCode {
		case http.StatusOK:
			if err := resp.JSON(&result); err != nil {
				return "", newUnexpectedError(c.endpoint.Name, err)
			}
			return result.Transcription, nil
		case http.StatusAccepted:
			_ = resp.JSON(&result)
			c.logger.Info("transcription queued", "service", c.endpoint.Name, "message", result.Message)
			return "", &ServiceError{
				Service:    c.endpoint.Name,
				Kind:       KindBusy,
				StatusCode: resp.StatusCode,
				Detail:     result.Message,
			}
		default:
			return "", upstreamError(c.endpoint.Name, resp.StatusCode, resp.Body)
		}
	})
}

// CheckHealth probes the STT backend
func (c *SpeechToTextClient) CheckHealth(ctx context.Context) HealthStatus {
	return c.checkHealth(ctx)
}

// audioForm builds the multipart body with the "audio" file part and "language" field
func audioForm(path, lang string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("language", lang); err != nil {
		return nil, "", fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
