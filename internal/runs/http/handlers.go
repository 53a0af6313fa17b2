package runshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/platform/httpx"
	"github.com/churnscope/churnscope/internal/runs"
	"github.com/churnscope/churnscope/internal/shared"
)

const requestTimeout = 5 * time.Second

// Service exposes the business logic required by the handler.
type Service interface {
	Trigger(ctx context.Context, input runs.TriggerInput) (runs.Run, error)
	Get(ctx context.Context, id string) (runs.Run, error)
	List(ctx context.Context, filters runs.ListFilters) ([]runs.Run, int, error)
}

// Queue hands accepted runs to the background worker.
type Queue interface {
	EnqueueLabelRun(ctx context.Context, runID string) (*asynq.TaskInfo, error)
}

// Handler serves label run endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	queue    Queue
	validate *validator.Validate
}

// NewHandler constructs the handler. The queue may be nil, in which case
// triggered runs stay PENDING until a worker picks them up by other means.
func NewHandler(logger *slog.Logger, service Service, queue Queue) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, queue: queue, validate: validator.New()}
}

type triggerRequest struct {
	Dataset string `json:"dataset" validate:"required"`
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req triggerRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request body must be JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields = append(fields, strings.ToLower(fieldErr.Field()))
			}
		}
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing or invalid fields: "+strings.Join(fields, ", "))
		return
	}

	run, err := h.service.Trigger(ctx, runs.TriggerInput{DatasetSlug: req.Dataset})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.queue != nil {
		if _, err := h.queue.EnqueueLabelRun(ctx, run.ID); err != nil {
			h.logger.Warn("enqueue label run", slog.String("run_id", run.ID), slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusAccepted, run)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filters, err := parseListFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	list, total, err := h.service.List(ctx, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Runs: list,
		Meta: shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	run, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

type listResponse struct {
	Runs []runs.Run        `json:"runs"`
	Meta shared.Pagination `json:"meta"`
}

func parseListFilters(r *http.Request) (runs.ListFilters, error) {
	var filters runs.ListFilters
	query := r.URL.Query()
	if raw := query.Get("dataset_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filters, errors.New("dataset_id must be an integer")
		}
		filters.DatasetID = id
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filters, errors.New("limit must be an integer")
		}
		filters.Limit = limit
	}
	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return filters, errors.New("page must be an integer")
		}
		filters.Page = page
	}
	return filters, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, activity.ErrDatasetNotFound), errors.Is(err, runs.ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, runs.ErrInvalidTrigger):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("serve runs", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
