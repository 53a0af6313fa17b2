package activityhttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/period"
	"github.com/churnscope/churnscope/internal/platform/httpx"
	"github.com/churnscope/churnscope/internal/shared"
)

const importTimeout = 60 * time.Second

// Importer ingests wide activity CSVs.
type Importer interface {
	Import(ctx context.Context, input activity.ImportInput, r io.Reader) (activity.ImportSummary, error)
}

// Catalog reads dataset metadata.
type Catalog interface {
	GetDatasetBySlug(ctx context.Context, slug string) (activity.Dataset, error)
	ListDatasets(ctx context.Context) ([]activity.Dataset, error)
}

// Handler serves dataset endpoints.
type Handler struct {
	logger   *slog.Logger
	importer Importer
	catalog  Catalog
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, importer Importer, catalog Catalog) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, importer: importer, catalog: catalog}
}

// datasetView is the JSON shape for dataset metadata.
type datasetView struct {
	Slug          string `json:"slug"`
	ReferenceDate string `json:"reference_date"`
	MinMonth      string `json:"min_month"`
	MaxMonth      string `json:"max_month"`
	CreatedAt     string `json:"created_at"`
}

func viewDataset(d activity.Dataset) datasetView {
	return datasetView{
		Slug:          d.Slug,
		ReferenceDate: d.ReferenceDate.Format(period.DateLayout),
		MinMonth:      period.Format(d.MinMonth),
		MaxMonth:      period.Format(d.MaxMonth),
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	referenceRaw := r.URL.Query().Get("reference_date")
	if referenceRaw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reference_date query parameter required")
		return
	}
	reference, err := time.ParseInLocation(period.DateLayout, referenceRaw, time.UTC)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reference_date must be YYYY-MM-DD")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), importTimeout)
	defer cancel()

	summary, err := h.importer.Import(ctx, activity.ImportInput{
		Slug:           chi.URLParam(r, "slug"),
		ReferenceDate:  reference,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, r.Body)
	if err != nil {
		h.respondImportError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

func (h *Handler) respondImportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, activity.ErrDuplicateDataset):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusRequestTimeout, "Timeout", "import took too long")
	default:
		httpx.Problem(w, http.StatusBadRequest, "Import Failed", err.Error())
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.catalog.ListDatasets(r.Context())
	if err != nil {
		h.logger.Error("list datasets", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]datasetView, len(datasets))
	for i, dataset := range datasets {
		views[i] = viewDataset(dataset)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"datasets": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.catalog.GetDatasetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, activity.ErrDatasetNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get dataset", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, viewDataset(dataset))
}
