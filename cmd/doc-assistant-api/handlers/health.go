package handlers

import (
	"net/http"

	"github.com/spherical/doc-assistant/internal/session"
)

// HealthHandler reports liveness.
type HealthHandler struct {
	service string
	store   *session.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(service string, store *session.Store) *HealthHandler {
	return &HealthHandler{service: service, store: store}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Service:  h.service,
		Sessions: h.store.Len(),
	})
}
