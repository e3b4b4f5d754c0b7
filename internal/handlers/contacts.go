package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/edgexpo/voicegateway/internal/crm"
)

// ContactService defines the CRM operations used by handlers
type ContactService interface {
	Create(ctx context.Context, in crm.ContactInput) (crm.Contact, error)
	Get(ctx context.Context, id string) (crm.Contact, error)
	Update(ctx context.Context, id string, in crm.ContactInput) (crm.Contact, error)
	MarkCatalogSent(ctx context.Context, id string) (crm.Contact, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) (crm.Page, error)
	Statistics(ctx context.Context) (crm.Statistics, error)
}

// ContactHandler handles the CRM endpoints
type ContactHandler struct {
	contacts func(ctx context.Context) (ContactService, error)
	logger   *slog.Logger
}

// NewContactHandler creates a new CRM handler. contacts is called per
// request so the store can be opened lazily.
func NewContactHandler(contacts func(ctx context.Context) (ContactService, error), logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		contacts: contacts,
		logger:   logger,
	}
}

func (h *ContactHandler) service(w http.ResponseWriter, r *http.Request) (ContactService, bool) {
	svc, err := h.contacts(r.Context())
	if err != nil {
		h.logger.Error("crm unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "crm unavailable", "")
		return nil, false
	}
	return svc, true
}

func decodeContact(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (crm.ContactInput, bool) {
	var in crm.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		logger.Warn("failed to parse contact request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return crm.ContactInput{}, false
	}
	return in, true
}

// Create handles POST /api/crm/contacts
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeContact(w, r, h.logger)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	c, err := svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, "contact create failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"contact_id": c.ContactID, "status": "created"})
}

// List handles GET /api/crm/contacts?limit=&offset=
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a number", "")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a number", "")
		return
	}

	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	page, err := svc.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, "contact list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/crm/contacts/{id}
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	c, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "contact lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PUT /api/crm/contacts/{id}
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeContact(w, r, h.logger)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	c, err := svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, h.logger, "contact update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// MarkCatalogSent handles POST /api/crm/contacts/{id}/catalog-sent
func (h *ContactHandler) MarkCatalogSent(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	c, err := svc.MarkCatalogSent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "catalog update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/crm/contacts/{id}
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "contact delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Statistics handles GET /api/crm/statistics
func (h *ContactHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	stats, err := svc.Statistics(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "contact statistics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
