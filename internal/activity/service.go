package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/churnscope/churnscope/internal/period"
	"github.com/churnscope/churnscope/internal/shared"
)

// ImportInput configures a dataset import.
type ImportInput struct {
	Slug           string
	ReferenceDate  time.Time
	IdempotencyKey string
}

// ImportSummary reports what an import ingested.
type ImportSummary struct {
	Dataset   string `json:"dataset"`
	DatasetID int64  `json:"dataset_id"`
	Companies int    `json:"companies"`
	Records   int    `json:"records"`
	MinMonth  string `json:"min_month"`
	MaxMonth  string `json:"max_month"`
}

// ImporterStore abstracts the persistence the importer needs.
type ImporterStore interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Importer turns wide activity CSVs into persisted datasets.
type Importer struct {
	store       ImporterStore
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewImporter wires the importer dependencies. The idempotency store may be
// nil for callers that manage retries themselves, such as the CLI.
func NewImporter(store ImporterStore, idempotency *shared.IdempotencyStore, logger *slog.Logger) *Importer {
	return &Importer{store: store, idempotency: idempotency, logger: logger}
}

// Import parses and persists one dataset atomically. A repeated idempotency
// key reports a conflict before any parsing work happens.
func (i *Importer) Import(ctx context.Context, input ImportInput, r io.Reader) (ImportSummary, error) {
	if input.ReferenceDate.IsZero() {
		return ImportSummary{}, errors.New("activity: reference date required")
	}
	if input.IdempotencyKey != "" && i.idempotency != nil {
		if err := i.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "activity_import"); err != nil {
			return ImportSummary{}, err
		}
	}

	summary, err := i.doImport(ctx, input, r)
	if err != nil && input.IdempotencyKey != "" && i.idempotency != nil {
		if delErr := i.idempotency.Delete(ctx, input.IdempotencyKey); delErr != nil && i.logger != nil {
			i.logger.Warn("release idempotency key", slog.String("key", input.IdempotencyKey), slog.Any("error", delErr))
		}
	}
	return summary, err
}

func (i *Importer) doImport(ctx context.Context, input ImportInput, r io.Reader) (ImportSummary, error) {
	table, err := ParseWide(r)
	if err != nil {
		return ImportSummary{}, err
	}

	var dataset Dataset
	records := 0
	err = i.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		records = 0 // the transaction may be replayed after a serialization failure
		var err error
		dataset, err = tx.CreateDataset(ctx, CreateDatasetInput{
			Slug:          input.Slug,
			ReferenceDate: input.ReferenceDate,
			MinMonth:      table.MinMonth,
			MaxMonth:      table.MaxMonth,
		})
		if err != nil {
			return err
		}
		for _, parsed := range table.Companies {
			companyID, err := tx.InsertCompany(ctx, Company{
				DatasetID:      dataset.ID,
				ExternalID:     parsed.ExternalID,
				Vertical:       parsed.Vertical,
				IncorporatedAt: parsed.IncorporatedAt,
			})
			if err != nil {
				return err
			}
			for _, record := range parsed.Records {
				record.CompanyID = companyID
				if err := tx.InsertRecord(ctx, record); err != nil {
					return err
				}
				records++
			}
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}

	if i.logger != nil {
		i.logger.Info("imported dataset",
			slog.String("dataset", dataset.Slug),
			slog.Int("companies", len(table.Companies)),
			slog.Int("records", records),
		)
	}
	return ImportSummary{
		Dataset:   dataset.Slug,
		DatasetID: dataset.ID,
		Companies: len(table.Companies),
		Records:   records,
		MinMonth:  period.Format(table.MinMonth),
		MaxMonth:  period.Format(table.MaxMonth),
	}, nil
}
