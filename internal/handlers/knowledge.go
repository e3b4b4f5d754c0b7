package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/edgexpo/voicegateway/internal/rag"
)

// KnowledgeBase defines the RAG operations used by handlers
type KnowledgeBase interface {
	Query(ctx context.Context, query, language string) string
	ListItems() []rag.Item
	UpdateItem(ctx context.Context, id, content, category string) (string, error)
	DeleteItem(id string) (bool, error)
}

// KnowledgeHandler handles the RAG query and knowledge base endpoints
type KnowledgeHandler struct {
	kb     func(ctx context.Context) (KnowledgeBase, error)
	logger *slog.Logger
}

// NewKnowledgeHandler creates a new knowledge handler. kb is called per
// request so the knowledge base can be built lazily.
func NewKnowledgeHandler(kb func(ctx context.Context) (KnowledgeBase, error), logger *slog.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		kb:     kb,
		logger: logger,
	}
}

type queryRequest struct {
	Query    string `json:"query"`
	Language string `json:"language"`
}

type queryResponse struct {
	Response string `json:"response"`
	Query    string `json:"query"`
	Language string `json:"language"`
}

type updateItemRequest struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// knowledgeBase resolves the knowledge base or writes a 503
func (h *KnowledgeHandler) knowledgeBase(w http.ResponseWriter, r *http.Request) (KnowledgeBase, bool) {
	kb, err := h.kb(r.Context())
	if err != nil {
		h.logger.Error("knowledge base unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "knowledge base unavailable", "")
		return nil, false
	}
	return kb, true
}

// Query handles POST /api/rag
func (h *KnowledgeHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse rag request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}
	if req.Language == "" {
		req.Language = defaultLanguage
	}

	kb, ok := h.knowledgeBase(w, r)
	if !ok {
		return
	}

	h.logger.Info("processing rag query", "language", req.Language)
	writeJSON(w, http.StatusOK, queryResponse{
		Response: kb.Query(r.Context(), req.Query, req.Language),
		Query:    req.Query,
		Language: req.Language,
	})
}

// List handles GET /api/kb/list
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	kb, ok := h.knowledgeBase(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": kb.ListItems()})
}

// Update handles POST /api/kb/update. An empty id creates a new item.
func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse kb update request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required", "")
		return
	}

	kb, ok := h.knowledgeBase(w, r)
	if !ok {
		return
	}

	id, err := kb.UpdateItem(r.Context(), req.ID, req.Content, req.Category)
	if err != nil {
		writeServiceError(w, h.logger, "knowledge update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "updated", "id": id})
}

// Delete handles DELETE /api/kb/delete?id=
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required", "")
		return
	}

	kb, ok := h.knowledgeBase(w, r)
	if !ok {
		return
	}

	deleted, err := kb.DeleteItem(id)
	if err != nil {
		writeServiceError(w, h.logger, "knowledge delete failed", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "knowledge item not found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}
