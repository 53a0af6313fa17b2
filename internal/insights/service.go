// Package insights serves cached aggregate views over finished label runs.
package insights

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/period"
	"github.com/churnscope/churnscope/internal/runs"
)

// Store exposes the training table aggregates we rely on.
type Store interface {
	TableCounts(ctx context.Context, runID string) (TableCounts, error)
	VerticalBreakdown(ctx context.Context, runID string) ([]VerticalCounts, error)
	ChurnByMonth(ctx context.Context, runID string) ([]MonthCount, error)
}

// RunSource resolves runs for a dataset.
type RunSource interface {
	Get(ctx context.Context, id string) (runs.Run, error)
	LatestSucceeded(ctx context.Context, datasetID int64) (runs.Run, error)
}

// DatasetSource resolves datasets by slug.
type DatasetSource interface {
	GetDatasetBySlug(ctx context.Context, slug string) (activity.Dataset, error)
}

// Service coordinates aggregate queries with the cache layer.
type Service struct {
	repo     Store
	runs     RunSource
	datasets DatasetSource
	cache    *Cache
	group    singleflight.Group
}

// NewService wires the stores with a Cache helper.
func NewService(repo Store, runSource RunSource, datasets DatasetSource, cache *Cache) *Service {
	return &Service{repo: repo, runs: runSource, datasets: datasets, cache: cache}
}

// Overview is the dashboard payload for one run.
type Overview struct {
	Dataset          string            `json:"dataset"`
	RunID            string            `json:"run_id"`
	Companies        int               `json:"companies"`
	Churned          int               `json:"churned"`
	ChurnRate        float64           `json:"churn_rate"`
	IndicatorHitRate float64           `json:"indicator_hit_rate"`
	Verticals        []VerticalInsight `json:"verticals"`
	ChurnByMonth     []MonthInsight    `json:"churn_by_month"`
}

// VerticalInsight carries one vertical's share of the table.
type VerticalInsight struct {
	Vertical  string  `json:"vertical"`
	Companies int     `json:"companies"`
	Churned   int     `json:"churned"`
	ChurnRate float64 `json:"churn_rate"`
}

// MonthInsight is one bar of the churn-by-month histogram.
type MonthInsight struct {
	Month   string `json:"month"`
	Churned int    `json:"churned"`
}

// Overview resolves the run (latest succeeded when runID is empty) and
// returns its aggregate view. Concurrent requests for the same key share
// one load.
func (s *Service) Overview(ctx context.Context, datasetSlug, runID string) (Overview, error) {
	dataset, err := s.datasets.GetDatasetBySlug(ctx, datasetSlug)
	if err != nil {
		return Overview{}, err
	}
	var run runs.Run
	if runID == "" {
		run, err = s.runs.LatestSucceeded(ctx, dataset.ID)
	} else {
		run, err = s.runs.Get(ctx, runID)
	}
	if err != nil {
		return Overview{}, err
	}
	if run.DatasetID != dataset.ID {
		return Overview{}, runs.ErrRunNotFound
	}
	if !run.Ready() {
		return Overview{}, runs.ErrRunNotReady
	}

	key, err := s.cache.BuildKey(ctx, keyOverview(dataset.Slug, run.ID))
	if err != nil {
		return Overview{}, err
	}
	value, err := s.collapse(ctx, key, func(ctx context.Context) (interface{}, error) {
		var overview Overview
		err := s.cache.FetchJSON(ctx, key, &overview, func(ctx context.Context) (interface{}, error) {
			return s.build(ctx, dataset, run)
		})
		return overview, err
	})
	if err != nil {
		return Overview{}, err
	}
	return value.(Overview), nil
}

// Invalidate bumps the cache version after a run lands.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) collapse(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}

func (s *Service) build(ctx context.Context, dataset activity.Dataset, run runs.Run) (Overview, error) {
	counts, err := s.repo.TableCounts(ctx, run.ID)
	if err != nil {
		return Overview{}, err
	}
	verticals, err := s.repo.VerticalBreakdown(ctx, run.ID)
	if err != nil {
		return Overview{}, err
	}
	months, err := s.repo.ChurnByMonth(ctx, run.ID)
	if err != nil {
		return Overview{}, err
	}

	overview := Overview{
		Dataset:          dataset.Slug,
		RunID:            run.ID,
		Companies:        counts.Companies,
		Churned:          counts.Churned,
		ChurnRate:        rate(counts.Churned, counts.Companies),
		IndicatorHitRate: rate(counts.IndicatorPositive, counts.Churned),
	}
	for _, v := range verticals {
		overview.Verticals = append(overview.Verticals, VerticalInsight{
			Vertical:  v.Vertical,
			Companies: v.Companies,
			Churned:   v.Churned,
			ChurnRate: rate(v.Churned, v.Companies),
		})
	}
	for _, m := range months {
		overview.ChurnByMonth = append(overview.ChurnByMonth, MonthInsight{
			Month:   period.Format(m.Month),
			Churned: m.Churned,
		})
	}
	return overview, nil
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
