package training

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/churnscope/churnscope/internal/churn"
	"github.com/churnscope/churnscope/internal/platform/db"
)

// Repository persists training rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReplaceRows swaps a run's training table in one transaction. Runs retried
// after a partial failure land on a clean slate instead of duplicated rows.
func (r *Repository) ReplaceRows(ctx context.Context, runID string, datasetID int64, rows []churn.TrainingRow) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM training_rows WHERE run_id = $1`, runID); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		const query = `
			INSERT INTO training_rows (run_id, dataset_id, company_id, month, churned, leading_indicator, incorporation_years, vertical)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		for _, row := range rows {
			batch.Queue(query, runID, datasetID, row.CompanyID, row.Month, row.Churned, row.LeadingIndicator, row.IncorporationYears, row.Vertical)
		}
		results := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
}

// ListRows returns a run's table ordered by company id.
func (r *Repository) ListRows(ctx context.Context, runID string) ([]Row, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT run_id, company_id, month, churned, leading_indicator, incorporation_years, vertical
		FROM training_rows
		WHERE run_id = $1
		ORDER BY company_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(
			&row.RunID,
			&row.CompanyID,
			&row.Month,
			&row.Churned,
			&row.LeadingIndicator,
			&row.IncorporationYears,
			&row.Vertical,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
