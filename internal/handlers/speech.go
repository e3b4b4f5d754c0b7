package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgexpo/voicegateway/internal/clients"
)

const defaultLanguage = "zh-TW"

// SpeechHandler handles POST /api/asr requests
type SpeechHandler struct {
	stt       clients.SpeechToText
	uploadDir string
	maxUpload int64
	logger    *slog.Logger
}

// NewSpeechHandler creates a new ASR handler. Uploads are staged in
// uploadDir, or the system temp dir when empty.
func NewSpeechHandler(stt clients.SpeechToText, uploadDir string, maxUpload int64, logger *slog.Logger) *SpeechHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &SpeechHandler{
		stt:       stt,
		uploadDir: uploadDir,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// ServeHTTP implements http.Handler
func (h *SpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.logger.Warn("failed to parse multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required", "")
		return
	}
	defer file.Close()

	language := r.FormValue("language")
	if language == "" {
		language = defaultLanguage
	}

	path, err := h.stage(file, header.Filename)
	if err != nil {
		h.logger.Error("failed to stage audio upload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store audio file", "")
		return
	}
	defer os.Remove(path)

	h.logger.Info("processing asr request", "size_bytes", header.Size, "language", language)

	text, err := h.stt.Transcribe(r.Context(), clients.TranscriptionRequest{AudioPath: path, Language: language})
	if err != nil {
		writeServiceError(w, h.logger, "transcription failed", err)
		return
	}

	writeJSON(w, http.StatusOK, transcriptionResponse{Text: text, Language: language})
}

// stage copies the upload into a temp file that keeps the original extension
func (h *SpeechHandler) stage(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}

	if h.uploadDir != "" {
		if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create upload dir: %w", err)
		}
	}
	dst, err := os.CreateTemp(h.uploadDir, "asr-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	return dst.Name(), nil
}
