package traininghttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/churnscope/churnscope/internal/platform/httpx"
	"github.com/churnscope/churnscope/internal/runs"
	"github.com/churnscope/churnscope/internal/training"
)

const requestTimeout = 30 * time.Second

// Service exposes the business logic required by the handler.
type Service interface {
	Table(ctx context.Context, runID string) ([]training.RowView, error)
	WriteCSV(ctx context.Context, runID string, w io.Writer) error
	Split(ctx context.Context, runID string, params training.SplitParams) (training.SplitResult, error)
}

// Handler serves training table endpoints.
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

type tableResponse struct {
	RunID string             `json:"run_id"`
	Rows  []training.RowView `json:"rows"`
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	runID := chi.URLParam(r, "id")
	if wantsCSV(r) {
		var buf bytes.Buffer
		if err := h.service.WriteCSV(ctx, runID, &buf); err != nil {
			h.respondError(w, err)
			return
		}
		httpx.CSV(w, "training_table_"+runID+".csv")
		_, _ = buf.WriteTo(w)
		return
	}

	rows, err := h.service.Table(ctx, runID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tableResponse{RunID: runID, Rows: rows})
}

func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := training.SplitParams{Seed: r.URL.Query().Get("seed")}
	if raw := r.URL.Query().Get("test_ratio"); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "test_ratio must be a number")
			return
		}
		params.TestRatio = ratio
	}

	result, err := h.service.Split(ctx, chi.URLParam(r, "id"), params)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func wantsCSV(r *http.Request) bool {
	if r.URL.Query().Get("format") == "csv" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runs.ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, runs.ErrRunNotReady):
		httpx.Problem(w, http.StatusConflict, "Run Not Ready", err.Error())
	case errors.Is(err, training.ErrDegenerateTable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Degenerate Table", err.Error())
	case errors.Is(err, training.ErrInvalidSplit):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("serve training table", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
