package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultTTSTimeout  = 30 * time.Second
	defaultTTSBackoff  = 400 * time.Millisecond
	defaultTTSRetries  = 3
	defaultTTSLanguage = "zh-tw"
)

// DefaultTTSLanguages is returned when the backend cannot list its languages
var DefaultTTSLanguages = []string{"en", "zh-tw", "zh-cn"}

// DefaultTTSVoices is returned when the backend cannot list its voices
var DefaultTTSVoices = map[string][]string{
	"en":    {"en-US-AriaNeural"},
	"zh-tw": {"zh-TW-HsiaoChenNeural"},
	"zh-cn": {"zh-CN-XiaoxiaoNeural"},
}

// SynthesisRequest carries text to synthesize
type SynthesisRequest struct {
	Text     string
	Language string
}

// TextToSpeechClient handles communication with the TTS backend
type TextToSpeechClient struct {
	baseClient
	cacheDir string
}

// NewTextToSpeechClient creates a new TTS client. Audio is cached under
// $TMPDIR/tts_cache unless WithCacheDir is given.
func NewTextToSpeechClient(endpoint ServiceEndpoint, opts ...Option) *TextToSpeechClient {
	if endpoint.Name == "" {
		endpoint.Name = "TTS"
	}
	base, o := newBaseClient(endpoint, defaultTTSTimeout, defaultTTSBackoff, defaultTTSRetries, opts)

	cacheDir := o.cacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "tts_cache")
	}
	return &TextToSpeechClient{baseClient: base, cacheDir: cacheDir}
}

type synthesisPayload struct {
	Text   string `json:"text"`
	Lang   string `json:"lang"`
	Format string `json:"format"`
}

// Synthesize returns the path of a temp file holding the synthesized audio.
// The caller owns the file and must delete it.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	if req.Text == "" {
		return "", newValidationError(c.endpoint.Name, "text is required")
	}

	lang := MapTTSLanguage(req.Language)
	if lang == "" {
		lang = defaultTTSLanguage
	}

	body, err := json.Marshal(synthesisPayload{Text: req.Text, Lang: lang, Format: "file"})
	if err != nil {
		return "", newUnexpectedError(c.endpoint.Name, fmt.Errorf("failed to marshal request: %w", err))
	}

	return withRetry(ctx, &c.baseClient, "synthesize", func(ctx context.Context) (string, error) {
		resp, err := c.session.Request(ctx, http.MethodPost, c.url("/tts"), c.endpoint.Timeout, body, "application/json")
		if err != nil {
			return "", err
		}

		path, err := c.writeAudio(resp.Body)
		if err != nil {
			c.logger.Error("failed to cache audio", "service", c.endpoint.Name, "error", err)
			return "", newUnexpectedError(c.endpoint.Name, err)
		}
		return path, nil
	})
}

func (c *TextToSpeechClient) writeAudio(data []byte) (string, error) {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	f, err := os.CreateTemp(c.cacheDir, "tts-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close audio file: %w", err)
	}
	return f.Name(), nil
}

// ListLanguages returns the backend's languages, or DefaultTTSLanguages on any failure
func (c *TextToSpeechClient) ListLanguages(ctx context.Context) []string {
	var result struct {
		SupportedLanguages []string `json:"supported_languages"`
	}
	if err := c.lookup(ctx, "/languages", &result); err != nil {
		return append([]string(nil), DefaultTTSLanguages...)
	}
	return result.SupportedLanguages
}

// ListVoices returns the backend's voices per language, or DefaultTTSVoices on any failure
func (c *TextToSpeechClient) ListVoices(ctx context.Context) map[string][]string {
	var result struct {
		Voices map[string][]string `json:"voices"`
	}
	if err := c.lookup(ctx, "/voices", &result); err != nil {
		voices := make(map[string][]string, len(DefaultTTSVoices))
		for lang, names := range DefaultTTSVoices {
			voices[lang] = append([]string(nil), names...)
		}
		return voices
	}
	return result.Voices
}

func (c *TextToSpeechClient) lookup(ctx context.Context, path string, v any) error {
	resp, err := c.session.Probe(ctx, c.url(path), c.healthTimeout)
	if err == nil {
		err = resp.JSON(v)
	}
	if err != nil {
		c.logger.Warn("tts lookup failed, using defaults", "path", path, "error", err)
	}
	return err
}

// CleanupTempFiles removes cached .wav files and returns how many were removed
func (c *TextToSpeechClient) CleanupTempFiles() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.cacheDir, "*.wav"))
	if err != nil {
		return 0, fmt.Errorf("failed to list cache dir: %w", err)
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to remove cached audio", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// CacheDir returns the directory synthesized audio is written to
func (c *TextToSpeechClient) CacheDir() string {
	return c.cacheDir
}

// CheckHealth probes the TTS backend
func (c *TextToSpeechClient) CheckHealth(ctx context.Context) HealthStatus {
	return c.checkHealth(ctx)
}
