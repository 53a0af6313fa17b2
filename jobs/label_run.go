package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/churnscope/churnscope/internal/insights"
	jobmetrics "github.com/churnscope/churnscope/internal/jobs"
	"github.com/churnscope/churnscope/internal/runs"
)

// LabelRunJob executes queued label runs and refreshes derived caches.
type LabelRunJob struct {
	Runs     *runs.Service
	Insights *insights.Service
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewLabelRunJob wires dependencies for the labeling handler.
func NewLabelRunJob(runsSvc *runs.Service, insightsSvc *insights.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LabelRunJob {
	return &LabelRunJob{
		Runs:     runsSvc,
		Insights: insightsSvc,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *LabelRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("label run: handler not configured")
	}
	var payload LabelRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID == "" {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLabelRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("run_id", payload.RunID))
	logger.Info("starting label run")

	if err := j.Runs.Execute(ctx, payload.RunID); err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			// The run row is gone; retrying cannot bring it back.
			resultErr = err
			logger.Error("label run missing", slog.Any("error", err))
			return asynq.SkipRetry
		}
		resultErr = err
		logger.Error("label run failed", slog.Any("error", err))
		return resultErr
	}

	if j.Insights != nil {
		if err := j.Insights.Invalidate(ctx); err != nil {
			logger.Warn("bump insight caches", slog.Any("error", err))
		}
	}

	logger.Info("completed label run", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *LabelRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLabelRun))
	}
	return slog.Default().With(slog.String("job", TaskLabelRun))
}

func (j *LabelRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LabelRunJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
