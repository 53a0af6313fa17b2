package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	activityhttp "github.com/churnscope/churnscope/internal/activity/http"
	"github.com/churnscope/churnscope/internal/auth"
	insightshttp "github.com/churnscope/churnscope/internal/insights/http"
	"github.com/churnscope/churnscope/internal/observability"
	runshttp "github.com/churnscope/churnscope/internal/runs/http"
	traininghttp "github.com/churnscope/churnscope/internal/training/http"
	"github.com/churnscope/churnscope/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Auth            *auth.Middleware
	ActivityHandler *activityhttp.Handler
	RunsHandler     *runshttp.Handler
	TrainingHandler *traininghttp.Handler
	InsightsHandler *insightshttp.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults. Every module
// mounts flat patterns on the shared /api router, so the /datasets and
// /runs subtrees can be served by more than one handler.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.Auth != nil {
			r.Use(params.Auth.RequireToken)
		}
		if params.ActivityHandler != nil {
			params.ActivityHandler.MountRoutes(r)
		}
		if params.RunsHandler != nil {
			params.RunsHandler.MountRoutes(r)
		}
		if params.TrainingHandler != nil {
			params.TrainingHandler.MountRoutes(r)
		}
		if params.InsightsHandler != nil {
			params.InsightsHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(r)
		}
	})

	return r
}
