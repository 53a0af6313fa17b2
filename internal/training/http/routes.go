package traininghttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers training table endpoints under the /runs subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/runs/{id}/training-table", h.handleTable)
	r.Get("/runs/{id}/split", h.handleSplit)
}
