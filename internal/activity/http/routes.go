package activityhttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers dataset endpoints. Patterns stay flat so other
// modules can hang routes off the same /datasets subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/datasets", h.handleList)
	r.Get("/datasets/{slug}", h.handleGet)
	r.Post("/datasets/{slug}/import", h.handleImport)
}
