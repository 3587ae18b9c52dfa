package handlers

import (
	"net/http"

	"taskhive/internal/service"
)

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	quoteService *service.QuoteService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(quoteService *service.QuoteService) *HealthHandler {
	return &HealthHandler{quoteService: quoteService}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"quote":  h.quoteService.Random(r.Context()),
	})
}
