package activity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/churnscope/churnscope/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for datasets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetDatasetBySlug fetches a dataset by its slug.
func (r *Repository) GetDatasetBySlug(ctx context.Context, slug string) (Dataset, error) {
	return r.scanDataset(r.pool.QueryRow(ctx, `SELECT id, slug, reference_date, min_month, max_month, created_at FROM datasets WHERE slug = $1`, slug))
}

// GetDataset fetches a dataset by id.
func (r *Repository) GetDataset(ctx context.Context, id int64) (Dataset, error) {
	return r.scanDataset(r.pool.QueryRow(ctx, `SELECT id, slug, reference_date, min_month, max_month, created_at FROM datasets WHERE id = $1`, id))
}

// ListDatasets enumerates datasets, newest first.
func (r *Repository) ListDatasets(ctx context.Context) ([]Dataset, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, slug, reference_date, min_month, max_month, created_at FROM datasets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var datasets []Dataset
	for rows.Next() {
		var ds Dataset
		if err := rows.Scan(&ds.ID, &ds.Slug, &ds.ReferenceDate, &ds.MinMonth, &ds.MaxMonth, &ds.CreatedAt); err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return datasets, nil
}

// ListCompanies returns the companies of a dataset ordered by external id.
func (r *Repository) ListCompanies(ctx context.Context, datasetID int64) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, dataset_id, external_id, vertical, incorporated_at, created_at FROM companies WHERE dataset_id = $1 ORDER BY external_id`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.DatasetID, &c.ExternalID, &c.Vertical, &c.IncorporatedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return companies, nil
}

// SeriesPoint is one observed month of one company, keyed by the external
// company id for labeling.
type SeriesPoint struct {
	ExternalID string
	Month      time.Time
	Mandates   int64
	Payments   int64
}

// ListSeries streams every activity record of a dataset ordered by company
// and month.
func (r *Repository) ListSeries(ctx context.Context, datasetID int64) ([]SeriesPoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.external_id, a.month, a.mandates, a.payments
FROM activity_records a
JOIN companies c ON c.id = a.company_id
WHERE c.dataset_id = $1
ORDER BY c.external_id, a.month`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.ExternalID, &p.Month, &p.Mandates, &p.Payments); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// TxRepository exposes the ingest operations that must commit atomically.
type TxRepository interface {
	CreateDataset(ctx context.Context, input CreateDatasetInput) (Dataset, error)
	InsertCompany(ctx context.Context, company Company) (int64, error)
	InsertRecord(ctx context.Context, record Record) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// CreateDataset stores the dataset row inside the transaction, so a failed
// import leaves no shell behind and the slug stays free for a retry.
func (t *txRepo) CreateDataset(ctx context.Context, input CreateDatasetInput) (Dataset, error) {
	if err := input.Validate(); err != nil {
		return Dataset{}, err
	}
	ds := Dataset{
		Slug:          input.Slug,
		ReferenceDate: input.ReferenceDate,
		MinMonth:      input.MinMonth,
		MaxMonth:      input.MaxMonth,
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO datasets (slug, reference_date, min_month, max_month, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		input.Slug, input.ReferenceDate, input.MinMonth, input.MaxMonth, time.Now().UTC()).Scan(&ds.ID, &ds.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Dataset{}, ErrDuplicateDataset
		}
		return Dataset{}, err
	}
	return ds, nil
}

// InsertCompany stores one company inside the transaction.
func (t *txRepo) InsertCompany(ctx context.Context, company Company) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO companies (dataset_id, external_id, vertical, incorporated_at, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		company.DatasetID, company.ExternalID, company.Vertical, company.IncorporatedAt, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertRecord stores one monthly record inside the transaction.
func (t *txRepo) InsertRecord(ctx context.Context, record Record) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO activity_records (company_id, month, mandates, payments)
VALUES ($1, $2, $3, $4)`, record.CompanyID, record.Month, record.Mandates, record.Payments)
	return err
}

func (r *Repository) scanDataset(row pgx.Row) (Dataset, error) {
	var ds Dataset
	err := row.Scan(&ds.ID, &ds.Slug, &ds.ReferenceDate, &ds.MinMonth, &ds.MaxMonth, &ds.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dataset{}, ErrDatasetNotFound
		}
		return Dataset{}, err
	}
	return ds, nil
}
