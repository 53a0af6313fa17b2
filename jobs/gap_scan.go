package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/churnscope/churnscope/internal/churn"
	jobmetrics "github.com/churnscope/churnscope/internal/jobs"
	"github.com/churnscope/churnscope/internal/period"
	"github.com/churnscope/churnscope/internal/runs"
	"github.com/churnscope/churnscope/internal/shared"
)

// keyRetention is how long consumed idempotency keys are kept before the
// scan prunes them.
const keyRetention = 30 * 24 * time.Hour

// GapScanJob sweeps stored activity series for missing months and flags
// label runs stuck in RUNNING. Gaps cannot enter through the CSV importer,
// which rejects non-contiguous columns, but rows written by migrations or
// manual fixes bypass that check.
type GapScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGapScanJob initialises the gap scan handler.
func NewGapScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *GapScanJob {
	return &GapScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the gap scan logic.
func (j *GapScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("gap scan: handler not configured")
	}
	var payload GapScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskGapScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.Dataset != "" {
		logger = logger.With(slog.String("dataset", payload.Dataset))
	}
	logger.Info("starting gap scan")

	datasets, findings, err := j.scan(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, f := range findings {
		logger.Warn("activity gap detected",
			slog.String("dataset", f.Dataset),
			slog.String("company_id", f.CompanyID),
			slog.String("month", period.Format(f.Month)),
		)
		j.metrics().AddGaps(f.Dataset, 1)
	}

	stale, err := j.staleRuns(ctx, start)
	if err != nil {
		resultErr = err
		logger.Error("stale run check failed", slog.Any("error", err))
		return resultErr
	}
	for _, run := range stale {
		logger.Warn("run stuck in RUNNING",
			slog.String("run_id", run.ID),
			slog.Int64("dataset_id", run.DatasetID),
			slog.Time("started_at", *run.StartedAt),
		)
	}
	j.metrics().AddStaleRuns(len(stale))

	// Housekeeping rides along with the nightly sweep; a failed prune must
	// not fail the scan.
	if err := shared.NewIdempotencyStore(j.Pool).Cleanup(ctx, keyRetention); err != nil {
		logger.Warn("idempotency key cleanup failed", slog.Any("error", err))
	}

	logger.Info("completed gap scan",
		slog.Int("datasets", datasets),
		slog.Int("gaps", len(findings)),
		slog.Int("stale_runs", len(stale)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

type gapFinding struct {
	Dataset   string
	CompanyID string
	Month     time.Time
}

type scanDataset struct {
	id       int64
	slug     string
	minMonth time.Time
	maxMonth time.Time
}

func (j *GapScanJob) scan(ctx context.Context, payload GapScanPayload) (int, []gapFinding, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("gap scan: pool not configured")
	}
	datasets, err := j.fetchDatasets(ctx, payload.Dataset)
	if err != nil {
		return 0, nil, err
	}

	var findings []gapFinding
	for _, ds := range datasets {
		histories, err := j.fetchHistories(ctx, ds.id)
		if err != nil {
			return 0, nil, err
		}
		bounds := churn.Bounds{MinMonth: ds.minMonth, MaxMonth: ds.maxMonth}
		for _, h := range histories {
			for _, month := range churn.Gaps(h, bounds) {
				findings = append(findings, gapFinding{Dataset: ds.slug, CompanyID: h.CompanyID, Month: month})
			}
		}
	}
	return len(datasets), findings, nil
}

func (j *GapScanJob) fetchDatasets(ctx context.Context, slug string) ([]scanDataset, error) {
	query := `SELECT id, slug, min_month, max_month FROM datasets ORDER BY slug`
	args := make([]any, 0, 1)
	if slug != "" {
		query = `SELECT id, slug, min_month, max_month FROM datasets WHERE slug = $1`
		args = append(args, slug)
	}
	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []scanDataset
	for rows.Next() {
		var ds scanDataset
		if err := rows.Scan(&ds.id, &ds.slug, &ds.minMonth, &ds.maxMonth); err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return datasets, nil
}

func (j *GapScanJob) fetchHistories(ctx context.Context, datasetID int64) ([]churn.History, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT c.external_id, a.month, a.mandates, a.payments
		FROM companies c
		LEFT JOIN activity_records a ON a.company_id = c.id
		WHERE c.dataset_id = $1
		ORDER BY c.external_id, a.month`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []churn.History
	for rows.Next() {
		var externalID string
		var month *time.Time
		var mandates, payments *int64
		if err := rows.Scan(&externalID, &month, &mandates, &payments); err != nil {
			return nil, err
		}
		if len(histories) == 0 || histories[len(histories)-1].CompanyID != externalID {
			histories = append(histories, churn.History{CompanyID: externalID})
		}
		// Companies without a single record surface as an all-window gap.
		if month == nil {
			continue
		}
		record := churn.Activity{Month: *month}
		if mandates != nil {
			record.Mandates = *mandates
		}
		if payments != nil {
			record.Payments = *payments
		}
		last := &histories[len(histories)-1]
		last.Records = append(last.Records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return histories, nil
}

func (j *GapScanJob) staleRuns(ctx context.Context, now time.Time) ([]runs.Run, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT id, dataset_id, status, started_at
		FROM label_runs
		WHERE status = $1`, string(runs.StatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []runs.Run
	for rows.Next() {
		var run runs.Run
		var status string
		if err := rows.Scan(&run.ID, &run.DatasetID, &status, &run.StartedAt); err != nil {
			return nil, err
		}
		run.Status = runs.Status(status)
		if runs.Stale(run, now) {
			stale = append(stale, run)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stale, nil
}

func (j *GapScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGapScan))
	}
	return slog.Default().With(slog.String("job", TaskGapScan))
}

func (j *GapScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GapScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
