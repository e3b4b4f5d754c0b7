package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/edgexpo/voicegateway/internal/clients"
)

// SynthesisHandler handles the TTS endpoints
type SynthesisHandler struct {
	tts    clients.TextToSpeech
	logger *slog.Logger
}

// NewSynthesisHandler creates a new TTS handler
func NewSynthesisHandler(tts clients.TextToSpeech, logger *slog.Logger) *SynthesisHandler {
	return &SynthesisHandler{
		tts:    tts,
		logger: logger,
	}
}

type synthesisRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Synthesize handles POST /api/tts and answers with the WAV audio
func (h *SynthesisHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse tts request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}
	if req.Language == "" {
		req.Language = defaultLanguage
	}

	path, err := h.tts.Synthesize(r.Context(), clients.SynthesisRequest{Text: req.Text, Language: req.Language})
	if err != nil {
		writeServiceError(w, h.logger, "synthesis failed", err)
		return
	}
	defer os.Remove(path)

	audio, err := os.ReadFile(path)
	if err != nil {
		h.logger.Error("failed to read synthesized audio", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read synthesized audio", "")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// Languages handles GET /api/tts/languages
func (h *SynthesisHandler) Languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": h.tts.ListLanguages(r.Context())})
}

// Voices handles GET /api/tts/voices
func (h *SynthesisHandler) Voices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"voices": h.tts.ListVoices(r.Context())})
}
