package insightshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/insights"
	"github.com/churnscope/churnscope/internal/platform/httpx"
	"github.com/churnscope/churnscope/internal/runs"
)

const requestTimeout = 5 * time.Second

// Service exposes the business logic required by the handler.
type Service interface {
	Overview(ctx context.Context, datasetSlug, runID string) (insights.Overview, error)
}

// Handler serves insight endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	overview, err := h.service.Overview(ctx, chi.URLParam(r, "slug"), r.URL.Query().Get("run_id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, activity.ErrDatasetNotFound), errors.Is(err, runs.ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, runs.ErrRunNotReady):
		httpx.Problem(w, http.StatusConflict, "Run Not Ready", err.Error())
	default:
		h.logger.Error("load insights", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
