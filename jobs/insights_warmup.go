package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/churnscope/churnscope/internal/insights"
	jobmetrics "github.com/churnscope/churnscope/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InsightsWarmupJob pre-populates overview caches for recent label runs.
type InsightsWarmupJob struct {
	Insights *insights.Service
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewInsightsWarmupJob wires dependencies for the warmup handler.
func NewInsightsWarmupJob(insightsSvc *insights.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *InsightsWarmupJob {
	return &InsightsWarmupJob{
		Insights: insightsSvc,
		Pool:     pool,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes insight warmup tasks.
func (j *InsightsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("insights warmup: handler not configured")
	}
	var payload InsightsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Runs <= 0 {
		payload.Runs = 5
	}

	tracker := j.metrics().Track(TaskInsightsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("runs", payload.Runs))
	logger.Info("starting insights warmup")

	targets, err := j.fetchTargets(ctx, payload.Runs)
	if err != nil {
		resultErr = err
		logger.Error("load warmup targets", slog.Any("error", err))
		return resultErr
	}
	if len(targets) == 0 {
		logger.Info("no finished runs to warm")
		return resultErr
	}

	now := j.now()
	warmed := 0
	for _, target := range targets {
		if err := j.warmTarget(ctx, target); err != nil {
			resultErr = err
			logger.Error("warm run", slog.String("run_id", target.runID), slog.String("dataset", target.dataset), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed insights warmup", slog.Int("warmed", warmed), slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *InsightsWarmupJob) warmTarget(ctx context.Context, target warmupTarget) error {
	if j.Insights == nil {
		return nil
	}
	// Tighten each run warmup with a timeout to avoid long-running jobs.
	targetCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	_, err := j.Insights.Overview(targetCtx, target.dataset, target.runID)
	return err
}

func (j *InsightsWarmupJob) fetchTargets(ctx context.Context, limit int) ([]warmupTarget, error) {
	if j.Pool == nil {
		return nil, errors.New("insights warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT r.id, d.slug
		FROM label_runs r
		JOIN datasets d ON d.id = r.dataset_id
		WHERE r.status = 'SUCCEEDED'
		ORDER BY r.finished_at DESC, r.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := make([]warmupTarget, 0, limit)
	for rows.Next() {
		var target warmupTarget
		if err := rows.Scan(&target.runID, &target.dataset); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

func (j *InsightsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInsightsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskInsightsWarmup))
}

func (j *InsightsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InsightsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

type warmupTarget struct {
	runID   string
	dataset string
}
