package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/app"
	"github.com/churnscope/churnscope/internal/insights"
	"github.com/churnscope/churnscope/internal/platform/cache"
	"github.com/churnscope/churnscope/internal/platform/db"
	"github.com/churnscope/churnscope/internal/runs"
	"github.com/churnscope/churnscope/internal/training"
	"github.com/churnscope/churnscope/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, insights cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	activityRepo := activity.NewRepository(pool)
	runsRepo := runs.NewRepository(pool)
	trainingRepo := training.NewRepository(pool)
	runService := runs.NewService(runsRepo, activityRepo, trainingRepo, nil, logger)

	insightsCache := insights.NewCache(redisClient, cfg.InsightsCacheTTL)
	insightsService := insights.NewService(insights.NewRepository(pool), runService, activityRepo, insightsCache)

	labelJob := jobs.NewLabelRunJob(runService, insightsService, logger, nil)
	warmupJob := jobs.NewInsightsWarmupJob(insightsService, pool, logger, nil)
	gapJob := jobs.NewGapScanJob(pool, logger, nil)

	warmupTask, err := jobs.NewInsightsWarmupTask(jobs.InsightsWarmupPayload{Runs: 5})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	gapTask, err := jobs.NewGapScanTask(jobs.GapScanPayload{})
	if err != nil {
		logger.Error("build gap scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLabelRun, Handler: labelJob.Handle},
			{Type: jobs.TaskInsightsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskGapScan, Handler: gapJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: gapTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
