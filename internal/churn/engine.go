package churn

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the per-company fan-out when no explicit limit
// is configured.
const DefaultConcurrency = 4

// Input bundles a dataset snapshot for one labeling pass.
type Input struct {
	Bounds    Bounds
	Reference time.Time
	Profiles  []Profile
	Histories map[string]History
}

// Skip records a company excluded from the training table and why.
type Skip struct {
	CompanyID string
	Err       error
}

// Stats aggregates counts for a completed labeling pass.
type Stats struct {
	Companies         int
	Churned           int
	Retained          int
	NeverActive       int
	IndicatorPositive int
	Skipped           int
}

// Result is the output of Engine.Run. Rows, Outcomes and Skips are ordered
// by company id so identical inputs produce identical output.
type Result struct {
	Rows     []TrainingRow
	Outcomes []Outcome
	Skips    []Skip
	Stats    Stats
}

// Degenerate reports whether the table cannot train a classifier, with the
// reason. A table without rows or with a single label class fails here
// instead of surfacing as a cryptic trainer error downstream.
func (r Result) Degenerate() (string, bool) {
	switch {
	case len(r.Rows) == 0:
		return "training table empty", true
	case r.Stats.Churned == 0:
		return "no churned companies in training table", true
	case r.Stats.Retained == 0:
		return "no retained companies in training table", true
	}
	return "", false
}

// Engine maps the labeling pipeline over the companies of a dataset.
// Companies are independent, so they are processed concurrently; a failure
// in one company is recorded as a skip and never aborts the others.
type Engine struct {
	concurrency int
}

// NewEngine constructs an engine. Non-positive concurrency falls back to
// DefaultConcurrency.
func NewEngine(concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Engine{concurrency: concurrency}
}

// Run labels every company and assembles the training table. Per-company
// errors land in Result.Skips; only invalid input or context cancellation
// abort the pass.
func (e *Engine) Run(ctx context.Context, input Input) (Result, error) {
	if err := input.Bounds.Validate(); err != nil {
		return Result{}, err
	}
	if input.Reference.IsZero() {
		return Result{}, errors.New("churn: reference date required")
	}

	var (
		mu       sync.Mutex
		rows     []TrainingRow
		outcomes []Outcome
		skips    []Skip
		seen     = make(map[string]bool, len(input.Profiles))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, profile := range input.Profiles {
		mu.Lock()
		if seen[profile.CompanyID] {
			skips = append(skips, Skip{CompanyID: profile.CompanyID, Err: ErrDuplicateCompany})
			mu.Unlock()
			continue
		}
		seen[profile.CompanyID] = true
		mu.Unlock()

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, outcome, err := labelOne(profile, input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skips = append(skips, Skip{CompanyID: profile.CompanyID, Err: err})
				return nil
			}
			rows = append(rows, row)
			outcomes = append(outcomes, outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CompanyID < rows[j].CompanyID })
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].CompanyID < outcomes[j].CompanyID })
	sort.Slice(skips, func(i, j int) bool { return skips[i].CompanyID < skips[j].CompanyID })

	result := Result{Rows: rows, Outcomes: outcomes, Skips: skips}
	result.Stats = tally(result)
	return result, nil
}

func labelOne(profile Profile, input Input) (TrainingRow, Outcome, error) {
	history, ok := input.Histories[profile.CompanyID]
	if !ok {
		return TrainingRow{}, Outcome{}, ErrEmptyHistory
	}
	outcome, err := Label(history, input.Bounds)
	if err != nil {
		return TrainingRow{}, Outcome{}, err
	}
	indicator, err := DeriveIndicator(outcome, history, input.Bounds)
	if err != nil {
		return TrainingRow{}, Outcome{}, err
	}
	outcome.Indicator = indicator
	row, err := SelectRow(outcome, history, input.Bounds, profile, input.Reference)
	if err != nil {
		return TrainingRow{}, Outcome{}, err
	}
	return row, outcome, nil
}

func tally(result Result) Stats {
	stats := Stats{
		Companies: len(result.Rows) + len(result.Skips),
		Skipped:   len(result.Skips),
	}
	for _, outcome := range result.Outcomes {
		switch outcome.Status {
		case StatusChurned:
			stats.Churned++
		case StatusActive:
			stats.Retained++
		case StatusNeverActive:
			stats.Retained++
			stats.NeverActive++
		}
		if outcome.Indicator {
			stats.IndicatorPositive++
		}
	}
	return stats
}
