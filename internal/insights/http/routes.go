package insightshttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers insight endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/datasets/{slug}/insights", h.handleOverview)
}
