package insights

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TableCounts aggregates one run's label distribution.
type TableCounts struct {
	Companies         int
	Churned           int
	IndicatorPositive int
}

// VerticalCounts breaks the table down by vertical.
type VerticalCounts struct {
	Vertical  string
	Companies int
	Churned   int
}

// MonthCount tallies churn events in one month.
type MonthCount struct {
	Month   time.Time
	Churned int
}

// Repository reads aggregates from persisted training rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TableCounts returns label totals for a run.
func (r *Repository) TableCounts(ctx context.Context, runID string) (TableCounts, error) {
	var counts TableCounts
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE churned),
		       COUNT(*) FILTER (WHERE churned AND leading_indicator)
		FROM training_rows
		WHERE run_id = $1`,
		runID,
	).Scan(&counts.Companies, &counts.Churned, &counts.IndicatorPositive)
	if err != nil {
		return TableCounts{}, err
	}
	return counts, nil
}

// VerticalBreakdown returns per-vertical totals for a run.
func (r *Repository) VerticalBreakdown(ctx context.Context, runID string) ([]VerticalCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT vertical,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE churned)
		FROM training_rows
		WHERE run_id = $1
		GROUP BY vertical
		ORDER BY vertical`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerticalCounts
	for rows.Next() {
		var counts VerticalCounts
		if err := rows.Scan(&counts.Vertical, &counts.Companies, &counts.Churned); err != nil {
			return nil, err
		}
		out = append(out, counts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ChurnByMonth returns the churn event histogram for a run.
func (r *Repository) ChurnByMonth(ctx context.Context, runID string) ([]MonthCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT month, COUNT(*)
		FROM training_rows
		WHERE run_id = $1 AND churned
		GROUP BY month
		ORDER BY month`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthCount
	for rows.Next() {
		var count MonthCount
		if err := rows.Scan(&count.Month, &count.Churned); err != nil {
			return nil, err
		}
		out = append(out, count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
