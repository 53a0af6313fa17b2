package runs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists label runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `id, dataset_id, status, stats, error_message, started_at, finished_at, created_at, updated_at`

// Insert stores a new pending run.
func (r *Repository) Insert(ctx context.Context, run Run) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO label_runs (id, dataset_id, status)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		run.ID, run.DatasetID, run.Status,
	)
	if err := row.Scan(&run.CreatedAt, &run.UpdatedAt); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Get fetches a run by id.
func (r *Repository) Get(ctx context.Context, id string) (Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM label_runs WHERE id = $1`, id)
	return scanRun(row)
}

// List returns runs ordered newest first, optionally narrowed to a dataset.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Run, int, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	offset := (filters.Page - 1) * filters.Limit

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM label_runs WHERE ($1 = 0 OR dataset_id = $1)`,
		filters.DatasetID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM label_runs
		WHERE ($1 = 0 OR dataset_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		filters.DatasetID, filters.Limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// LatestSucceeded returns the newest succeeded run for a dataset.
func (r *Repository) LatestSucceeded(ctx context.Context, datasetID int64) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM label_runs
		WHERE dataset_id = $1 AND status = $2
		ORDER BY finished_at DESC, id DESC
		LIMIT 1`,
		datasetID, StatusSucceeded,
	)
	return scanRun(row)
}

// MarkRunning transitions a run into execution.
func (r *Repository) MarkRunning(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE label_runs
		SET status = $2, started_at = now(), updated_at = now()
		WHERE id = $1`,
		id, StatusRunning,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// MarkSucceeded finishes a run and stores its stats.
func (r *Repository) MarkSucceeded(ctx context.Context, id string, stats Stats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE label_runs
		SET status = $2, stats = $3, error_message = '', finished_at = now(), updated_at = now()
		WHERE id = $1`,
		id, StatusSucceeded, payload,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// MarkFailed finishes a run with an error message.
func (r *Repository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE label_runs
		SET status = $2, error_message = $3, finished_at = now(), updated_at = now()
		WHERE id = $1`,
		id, StatusFailed, errMsg,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run      Run
		statsRaw []byte
	)
	err := row.Scan(
		&run.ID,
		&run.DatasetID,
		&run.Status,
		&statsRaw,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	if len(statsRaw) > 0 {
		var stats Stats
		if err := json.Unmarshal(statsRaw, &stats); err != nil {
			return Run{}, err
		}
		run.Stats = &stats
	}
	return run, nil
}
