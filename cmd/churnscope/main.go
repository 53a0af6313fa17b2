package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/churnscope/churnscope/cmd/churnscope/cli"
	"github.com/churnscope/churnscope/internal/activity"
	activityhttp "github.com/churnscope/churnscope/internal/activity/http"
	"github.com/churnscope/churnscope/internal/app"
	"github.com/churnscope/churnscope/internal/auth"
	"github.com/churnscope/churnscope/internal/insights"
	insightshttp "github.com/churnscope/churnscope/internal/insights/http"
	"github.com/churnscope/churnscope/internal/observability"
	"github.com/churnscope/churnscope/internal/platform/cache"
	"github.com/churnscope/churnscope/internal/platform/db"
	"github.com/churnscope/churnscope/internal/runs"
	runshttp "github.com/churnscope/churnscope/internal/runs/http"
	"github.com/churnscope/churnscope/internal/shared"
	"github.com/churnscope/churnscope/internal/training"
	traininghttp "github.com/churnscope/churnscope/internal/training/http"
	"github.com/churnscope/churnscope/jobs"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] != "serve" {
		os.Exit(runCommand(os.Args[1], os.Args[2:]))
	}
	serve()
}

func serve() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if cfg.APITokenHash == "" {
		logger.Error("API_TOKEN_HASH is required to serve the api")
		os.Exit(1)
	}

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

	idempotencyStore := shared.NewIdempotencyStore(pool)

	activityRepo := activity.NewRepository(pool)
	importer := activity.NewImporter(activityRepo, idempotencyStore, logger)

	runsRepo := runs.NewRepository(pool)
	trainingRepo := training.NewRepository(pool)
	runService := runs.NewService(runsRepo, activityRepo, trainingRepo, nil, logger)
	delivery := training.NewDelivery(runService, trainingRepo)

	insightsCache := insights.NewCache(redisClient, cfg.InsightsCacheTTL)
	if err := insightsCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("subscribe cache invalidation", slog.Any("error", err))
	}
	insightsService := insights.NewService(insights.NewRepository(pool), runService, activityRepo, insightsCache)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Auth:            auth.NewMiddleware(cfg.APITokenHash, logger),
		ActivityHandler: activityhttp.NewHandler(logger, importer, activityRepo),
		RunsHandler:     runshttp.NewHandler(logger, runService, queue),
		TrainingHandler: traininghttp.NewHandler(logger, delivery),
		InsightsHandler: insightshttp.NewHandler(logger, insightsService),
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runCommand(name string, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch name {
	case "import":
		return runImport(ctx, args)
	case "label":
		return runLabel(ctx, args)
	case "export":
		return runExport(ctx, args)
	case "jobs":
		return runJobs(ctx, args)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "churnscope: unknown command %q\n", name)
		printUsage(os.Stderr)
		return 2
	}
}

func runImport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dataset := fs.String("dataset", "", "dataset slug to create")
	referenceDate := fs.String("reference-date", "", "labeling reference date (YYYY-MM-DD)")
	source := fs.String("source", "-", "wide activity CSV path, or - for stdin")
	jsonOut := fs.Bool("json", false, "emit a JSON summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	// The CLI is interactive; a failed import is simply rerun, so no
	// idempotency store is wired here.
	importer := activity.NewImporter(activity.NewRepository(pool), nil, logger)
	return cli.NewImportCLI(importer).ImportCommand(ctx, cli.ImportOptions{
		Slug:          *dataset,
		ReferenceDate: *referenceDate,
		Source:        *source,
		JSONOutput:    *jsonOut,
	})
}

func runLabel(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("label", flag.ContinueOnError)
	dataset := fs.String("dataset", "", "dataset slug to label")
	jsonOut := fs.Bool("json", false, "emit a JSON summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "label: %v\n", err)
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "label: connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	service := runs.NewService(runs.NewRepository(pool), activity.NewRepository(pool), training.NewRepository(pool), nil, logger)
	return cli.NewLabelCLI(service).LabelCommand(ctx, cli.LabelOptions{
		Dataset:    *dataset,
		JSONOutput: *jsonOut,
	})
}

func runExport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run", "", "run id to export")
	out := fs.String("out", "", "output path, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	trainingRepo := training.NewRepository(pool)
	service := runs.NewService(runs.NewRepository(pool), activity.NewRepository(pool), trainingRepo, nil, logger)
	delivery := training.NewDelivery(service, trainingRepo)
	return cli.NewExportCLI(delivery).ExportCommand(ctx, cli.ExportOptions{
		RunID: *runID,
		Out:   *out,
	})
}

func runJobs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	trigger := fs.String("trigger", "", "job to enqueue ("+jobs.TaskInsightsWarmup+" or "+jobs.TaskGapScan+")")
	stats := fs.Bool("stats", false, "print default queue statistics")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *trigger == "" && !*stats {
		fmt.Fprintln(os.Stderr, "jobs: nothing to do, pass -trigger or -stats")
		return 2
	}

	cfg, _, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	if *trigger != "" {
		info, err := jobsCLI.Trigger(ctx, *trigger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "jobs: enqueued %s as %s\n", *trigger, info.ID)
	}
	if *stats {
		queueStats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
			queueStats.Queue, queueStats.Pending, queueStats.Active, queueStats.Scheduled, queueStats.Retry)
	}
	return 0
}

func loadCLIConfig() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: churnscope <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  serve    run the HTTP API (default)")
	fmt.Fprintln(w, "  import   load a wide activity CSV into a dataset")
	fmt.Fprintln(w, "  label    trigger and execute a label run in-process")
	fmt.Fprintln(w, "  export   write a run's training table as CSV")
	fmt.Fprintln(w, "  jobs     enqueue or inspect background jobs")
}
