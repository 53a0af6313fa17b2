package runs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/churn"
)

// RunStore persists run lifecycle state.
type RunStore interface {
	Insert(ctx context.Context, run Run) (Run, error)
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, filters ListFilters) ([]Run, int, error)
	LatestSucceeded(ctx context.Context, datasetID int64) (Run, error)
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, stats Stats) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// DatasetStore supplies the activity data a run labels.
type DatasetStore interface {
	GetDataset(ctx context.Context, id int64) (activity.Dataset, error)
	GetDatasetBySlug(ctx context.Context, slug string) (activity.Dataset, error)
	ListCompanies(ctx context.Context, datasetID int64) ([]activity.Company, error)
	ListSeries(ctx context.Context, datasetID int64) ([]activity.SeriesPoint, error)
}

// RowSink stores the training rows a run produces.
type RowSink interface {
	ReplaceRows(ctx context.Context, runID string, datasetID int64, rows []churn.TrainingRow) error
}

// Service coordinates run creation and execution.
type Service struct {
	repo     RunStore
	datasets DatasetStore
	sink     RowSink
	engine   *churn.Engine
	logger   *slog.Logger
}

// NewService builds the service.
func NewService(repo RunStore, datasets DatasetStore, sink RowSink, engine *churn.Engine, logger *slog.Logger) *Service {
	if engine == nil {
		engine = churn.NewEngine(0)
	}
	return &Service{repo: repo, datasets: datasets, sink: sink, engine: engine, logger: logger}
}

// Trigger validates the input and inserts a pending run.
func (s *Service) Trigger(ctx context.Context, input TriggerInput) (Run, error) {
	if err := input.Validate(); err != nil {
		return Run{}, err
	}
	dataset, err := s.datasets.GetDatasetBySlug(ctx, input.DatasetSlug)
	if err != nil {
		return Run{}, err
	}
	return s.repo.Insert(ctx, Run{
		ID:        uuid.NewString(),
		DatasetID: dataset.ID,
		Status:    StatusPending,
	})
}

// Get returns run metadata by id.
func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	return s.repo.Get(ctx, id)
}

// List fetches recent runs.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Run, int, error) {
	return s.repo.List(ctx, filters)
}

// LatestSucceeded resolves the newest servable run for a dataset.
func (s *Service) LatestSucceeded(ctx context.Context, datasetID int64) (Run, error) {
	return s.repo.LatestSucceeded(ctx, datasetID)
}

// Execute performs the labeling pass and persists the training table. It is
// called from the worker; any failure marks the run FAILED so the trigger
// is never retried into a half-written table.
func (s *Service) Execute(ctx context.Context, runID string) error {
	run, err := s.repo.Get(ctx, runID)
	if err != nil {
		return err
	}
	if err := s.repo.MarkRunning(ctx, runID); err != nil {
		return err
	}

	result, err := s.label(ctx, run)
	if err != nil {
		_ = s.repo.MarkFailed(ctx, runID, err.Error())
		return err
	}
	if err := s.sink.ReplaceRows(ctx, runID, run.DatasetID, result.Rows); err != nil {
		_ = s.repo.MarkFailed(ctx, runID, err.Error())
		return err
	}

	stats := statsFrom(result)
	if err := s.repo.MarkSucceeded(ctx, runID, stats); err != nil {
		return err
	}
	if s.logger != nil && stats.Degenerate {
		s.logger.Warn("degenerate training table",
			slog.String("run_id", runID),
			slog.String("reason", stats.DegenerateReason),
		)
	}
	return nil
}

func (s *Service) label(ctx context.Context, run Run) (churn.Result, error) {
	dataset, err := s.datasets.GetDataset(ctx, run.DatasetID)
	if err != nil {
		return churn.Result{}, err
	}
	companies, err := s.datasets.ListCompanies(ctx, dataset.ID)
	if err != nil {
		return churn.Result{}, err
	}
	points, err := s.datasets.ListSeries(ctx, dataset.ID)
	if err != nil {
		return churn.Result{}, err
	}

	profiles := make([]churn.Profile, 0, len(companies))
	for _, company := range companies {
		profiles = append(profiles, churn.Profile{
			CompanyID:      company.ExternalID,
			Vertical:       company.Vertical,
			IncorporatedAt: company.IncorporatedAt,
		})
	}
	histories := make(map[string]churn.History, len(companies))
	for _, point := range points {
		history := histories[point.ExternalID]
		history.CompanyID = point.ExternalID
		history.Records = append(history.Records, churn.Activity{
			Month:    point.Month,
			Mandates: point.Mandates,
			Payments: point.Payments,
		})
		histories[point.ExternalID] = history
	}

	result, err := s.engine.Run(ctx, churn.Input{
		Bounds:    churn.Bounds{MinMonth: dataset.MinMonth, MaxMonth: dataset.MaxMonth},
		Reference: dataset.ReferenceDate,
		Profiles:  profiles,
		Histories: histories,
	})
	if err != nil {
		return churn.Result{}, err
	}
	if s.logger != nil {
		for _, skip := range result.Skips {
			s.logger.Warn("company skipped",
				slog.String("run_id", run.ID),
				slog.String("company_id", skip.CompanyID),
				slog.Any("error", skip.Err),
			)
		}
	}
	return result, nil
}

func statsFrom(result churn.Result) Stats {
	stats := Stats{
		Companies:         result.Stats.Companies,
		Churned:           result.Stats.Churned,
		Retained:          result.Stats.Retained,
		NeverActive:       result.Stats.NeverActive,
		IndicatorPositive: result.Stats.IndicatorPositive,
		Skipped:           result.Stats.Skipped,
	}
	if reason, degenerate := result.Degenerate(); degenerate {
		stats.Degenerate = true
		stats.DegenerateReason = reason
	}
	return stats
}

// staleAfter bounds how long a run may sit RUNNING before the gap scan
// flags it. Workers crashing mid-run leave no FAILED marker behind.
const staleAfter = 30 * time.Minute

// Stale reports whether a run looks abandoned at the given instant.
func Stale(run Run, now time.Time) bool {
	if run.Status != StatusRunning || run.StartedAt == nil {
		return false
	}
	return now.Sub(*run.StartedAt) > staleAfter
}
