package e2e

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/churn"
	jobmetrics "github.com/churnscope/churnscope/internal/jobs"
	"github.com/churnscope/churnscope/internal/runs"
	"github.com/churnscope/churnscope/jobs"
	_ "github.com/churnscope/churnscope/testing"
)

type memRunStore struct {
	runs map[string]runs.Run
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]runs.Run)}
}

func (s *memRunStore) Insert(_ context.Context, run runs.Run) (runs.Run, error) {
	run.CreatedAt = time.Now()
	s.runs[run.ID] = run
	return run, nil
}

func (s *memRunStore) Get(_ context.Context, id string) (runs.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return runs.Run{}, runs.ErrRunNotFound
	}
	return run, nil
}

func (s *memRunStore) List(_ context.Context, _ runs.ListFilters) ([]runs.Run, int, error) {
	out := make([]runs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, len(out), nil
}

func (s *memRunStore) LatestSucceeded(_ context.Context, datasetID int64) (runs.Run, error) {
	for _, run := range s.runs {
		if run.DatasetID == datasetID && run.Status == runs.StatusSucceeded {
			return run, nil
		}
	}
	return runs.Run{}, runs.ErrRunNotFound
}

func (s *memRunStore) MarkRunning(_ context.Context, id string) error {
	run := s.runs[id]
	run.Status = runs.StatusRunning
	s.runs[id] = run
	return nil
}

func (s *memRunStore) MarkSucceeded(_ context.Context, id string, stats runs.Stats) error {
	run := s.runs[id]
	run.Status = runs.StatusSucceeded
	run.Stats = &stats
	s.runs[id] = run
	return nil
}

func (s *memRunStore) MarkFailed(_ context.Context, id string, errMsg string) error {
	run := s.runs[id]
	run.Status = runs.StatusFailed
	run.Error = errMsg
	s.runs[id] = run
	return nil
}

type memDatasetStore struct {
	dataset   activity.Dataset
	companies []activity.Company
	points    []activity.SeriesPoint
}

func (s *memDatasetStore) GetDataset(_ context.Context, id int64) (activity.Dataset, error) {
	if id != s.dataset.ID {
		return activity.Dataset{}, activity.ErrDatasetNotFound
	}
	return s.dataset, nil
}

func (s *memDatasetStore) GetDatasetBySlug(_ context.Context, slug string) (activity.Dataset, error) {
	if slug != s.dataset.Slug {
		return activity.Dataset{}, activity.ErrDatasetNotFound
	}
	return s.dataset, nil
}

func (s *memDatasetStore) ListCompanies(_ context.Context, _ int64) ([]activity.Company, error) {
	return s.companies, nil
}

func (s *memDatasetStore) ListSeries(_ context.Context, _ int64) ([]activity.SeriesPoint, error) {
	return s.points, nil
}

type memSink struct {
	rows []churn.TrainingRow
}

func (s *memSink) ReplaceRows(_ context.Context, _ string, _ int64, rows []churn.TrainingRow) error {
	s.rows = rows
	return nil
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func pipelineDataset() *memDatasetStore {
	store := &memDatasetStore{
		dataset: activity.Dataset{
			ID:            1,
			Slug:          "pilot",
			ReferenceDate: time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC),
			MinMonth:      month(2016, time.January),
			MaxMonth:      month(2016, time.April),
		},
		companies: []activity.Company{
			{ID: 1, DatasetID: 1, ExternalID: "acme", Vertical: "retail", IncorporatedAt: time.Date(2014, time.July, 1, 0, 0, 0, 0, time.UTC)},
			{ID: 2, DatasetID: 1, ExternalID: "globex", Vertical: "saas", IncorporatedAt: time.Date(2015, time.March, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	series := map[string][]int64{
		"acme":   {5, 3, 0, 0},
		"globex": {2, 2, 2, 2},
	}
	for external, mandates := range series {
		for i, count := range mandates {
			store.points = append(store.points, activity.SeriesPoint{
				ExternalID: external,
				Month:      month(2016, time.Month(int(time.January)+i)),
				Mandates:   count,
			})
		}
	}
	return store
}

// The full worker path: trigger a run, hand its task to the label job, and
// confirm the run succeeds, rows land in the sink, and metrics record it.
func TestLabelRunJobCompletesPipeline(t *testing.T) {
	ctx := context.Background()
	store := newMemRunStore()
	sink := &memSink{}
	service := runs.NewService(store, pipelineDataset(), sink, churn.NewEngine(2), nil)

	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := jobs.NewLabelRunJob(service, nil, nil, metrics)

	run, err := service.Trigger(ctx, runs.TriggerInput{DatasetSlug: "pilot"})
	if err != nil {
		t.Fatalf("trigger run: %v", err)
	}
	task, err := jobs.NewLabelRunTask(jobs.LabelRunPayload{RunID: run.ID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(ctx, task); err != nil {
		t.Fatalf("job handle: %v", err)
	}

	final, err := service.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if final.Status != runs.StatusSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED", final.Status)
	}
	if final.Stats == nil || final.Stats.Companies != 2 {
		t.Fatalf("unexpected stats: %+v", final.Stats)
	}
	if len(sink.rows) != 2 {
		t.Fatalf("expected 2 training rows, got %d", len(sink.rows))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "churnscope_jobs_total", map[string]string{"job": jobs.TaskLabelRun, "status": "success"}, 1) {
		t.Fatalf("expected churnscope_jobs_total increment for label run")
	}
	if !metricExists(families, "churnscope_job_duration_seconds") {
		t.Fatalf("expected churnscope_job_duration_seconds to be recorded")
	}
}

func TestLabelRunJobDropsMissingRun(t *testing.T) {
	ctx := context.Background()
	service := runs.NewService(newMemRunStore(), pipelineDataset(), &memSink{}, churn.NewEngine(1), nil)

	reg := prometheus.NewRegistry()
	job := jobs.NewLabelRunJob(service, nil, nil, jobmetrics.NewMetrics(reg))

	task, err := jobs.NewLabelRunTask(jobs.LabelRunPayload{RunID: "no-such-run"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := job.Handle(ctx, task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a vanished run, got %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "churnscope_jobs_total", map[string]string{"job": jobs.TaskLabelRun, "status": "failure"}, 1) {
		t.Fatalf("expected failure increment for vanished run")
	}
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
