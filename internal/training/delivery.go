package training

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/churnscope/churnscope/internal/runs"
)

// RunResolver loads run metadata for gating.
type RunResolver interface {
	Get(ctx context.Context, id string) (runs.Run, error)
}

// RowStore loads persisted training rows.
type RowStore interface {
	ListRows(ctx context.Context, runID string) ([]Row, error)
}

// Delivery serves finished training tables to downstream consumers. Tables
// are only served once the run succeeded and only when they can actually
// train a classifier.
type Delivery struct {
	runs RunResolver
	rows RowStore
}

// NewDelivery builds the delivery service.
func NewDelivery(runResolver RunResolver, rows RowStore) *Delivery {
	return &Delivery{runs: runResolver, rows: rows}
}

// Table returns a run's rows in API shape, ordered by company id.
func (d *Delivery) Table(ctx context.Context, runID string) ([]RowView, error) {
	rows, err := d.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	views := make([]RowView, len(rows))
	for i, row := range rows {
		views[i] = row.View()
	}
	return views, nil
}

// exportHeader is the flat-table contract consumed by classifier trainers.
var exportHeader = []string{"company_id", "incorporation_time", "vertical", "churn", "leading_indicator"}

// WriteCSV streams a run's table as the exported flat file.
func (d *Delivery) WriteCSV(ctx context.Context, runID string, w io.Writer) error {
	rows, err := d.load(ctx, runID)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.CompanyID,
			strconv.FormatFloat(row.IncorporationYears, 'f', 1, 64),
			row.Vertical,
			strconv.Itoa(flag(row.Churned)),
			strconv.Itoa(flag(row.LeadingIndicator)),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Split partitions a run's table into train and test company ids.
func (d *Delivery) Split(ctx context.Context, runID string, params SplitParams) (SplitResult, error) {
	if params.Seed == "" {
		params.Seed = DefaultSeed
	}
	if params.TestRatio == 0 {
		params.TestRatio = DefaultTestRatio
	}
	rows, err := d.load(ctx, runID)
	if err != nil {
		return SplitResult{}, err
	}
	return Split(rows, params)
}

func (d *Delivery) load(ctx context.Context, runID string) ([]Row, error) {
	run, err := d.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Ready() {
		return nil, runs.ErrRunNotReady
	}
	if run.Stats != nil && run.Stats.Degenerate {
		return nil, fmt.Errorf("%w: %s", ErrDegenerateTable, run.Stats.DegenerateReason)
	}
	return d.rows.ListRows(ctx, runID)
}
