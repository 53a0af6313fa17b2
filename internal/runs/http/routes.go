package runshttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers run endpoints. Patterns stay flat so other modules
// can hang routes off the same /runs subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/runs", h.handleTrigger)
	r.Get("/runs", h.handleList)
	r.Get("/runs/{id}", h.handleGet)
}
