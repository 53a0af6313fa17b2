package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memImporterStore buffers transactional writes and only commits them when
// the callback succeeds, mirroring the rollback behaviour of the pgx store.
type memImporterStore struct {
	datasets  map[string]Dataset
	companies int
	records   int
	nextID    int64

	failInsertRecord error
}

func newMemImporterStore() *memImporterStore {
	return &memImporterStore{datasets: map[string]Dataset{}}
}

type memImporterTx struct {
	store     *memImporterStore
	datasets  []Dataset
	companies int
	records   int
}

func (s *memImporterStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memImporterTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, ds := range tx.datasets {
		s.datasets[ds.Slug] = ds
	}
	s.companies += tx.companies
	s.records += tx.records
	return nil
}

func (t *memImporterTx) CreateDataset(_ context.Context, input CreateDatasetInput) (Dataset, error) {
	if err := input.Validate(); err != nil {
		return Dataset{}, err
	}
	if _, exists := t.store.datasets[input.Slug]; exists {
		return Dataset{}, ErrDuplicateDataset
	}
	t.store.nextID++
	ds := Dataset{
		ID:            t.store.nextID,
		Slug:          input.Slug,
		ReferenceDate: input.ReferenceDate,
		MinMonth:      input.MinMonth,
		MaxMonth:      input.MaxMonth,
		CreatedAt:     time.Now().UTC(),
	}
	t.datasets = append(t.datasets, ds)
	return ds, nil
}

func (t *memImporterTx) InsertCompany(_ context.Context, _ Company) (int64, error) {
	t.companies++
	return int64(t.companies), nil
}

func (t *memImporterTx) InsertRecord(_ context.Context, _ Record) error {
	if t.store.failInsertRecord != nil {
		return t.store.failInsertRecord
	}
	t.records++
	return nil
}

func importInput(slug string) ImportInput {
	return ImportInput{
		Slug:          slug,
		ReferenceDate: time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestImportPersistsDatasetAtomically(t *testing.T) {
	store := newMemImporterStore()
	importer := NewImporter(store, nil, nil)

	summary, err := importer.Import(context.Background(), importInput("q3"), wideCSV(
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments,2016-02-01_mandates,2016-02-01_payments",
		"c-1,2014-07-15,Retail,5,2,3,1",
	))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if summary.Dataset != "q3" || summary.Companies != 1 || summary.Records != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.MinMonth != "2016-01" || summary.MaxMonth != "2016-02" {
		t.Fatalf("unexpected window %s..%s", summary.MinMonth, summary.MaxMonth)
	}
	if _, ok := store.datasets["q3"]; !ok {
		t.Fatal("dataset not committed")
	}
}

// A failed import must roll back the dataset row with everything else, so
// retrying the same slug succeeds instead of hitting the unique constraint.
func TestImportFailureLeavesNoDatasetShell(t *testing.T) {
	store := newMemImporterStore()
	store.failInsertRecord = errors.New("connection reset")
	importer := NewImporter(store, nil, nil)

	csv := []string{
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments",
		"c-1,2014-07-15,Retail,5,2",
	}

	_, err := importer.Import(context.Background(), importInput("q3"), wideCSV(csv...))
	if err == nil {
		t.Fatal("expected import to fail")
	}
	if len(store.datasets) != 0 {
		t.Fatalf("dataset shell survived the failed import: %+v", store.datasets)
	}

	store.failInsertRecord = nil
	summary, err := importer.Import(context.Background(), importInput("q3"), wideCSV(csv...))
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if summary.Records != 1 {
		t.Fatalf("records = %d, want 1", summary.Records)
	}
}

func TestImportRejectsRepeatedSlug(t *testing.T) {
	store := newMemImporterStore()
	importer := NewImporter(store, nil, nil)

	csv := []string{
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments",
		"c-1,2014-07-15,Retail,5,2",
	}

	if _, err := importer.Import(context.Background(), importInput("q3"), wideCSV(csv...)); err != nil {
		t.Fatalf("first import: %v", err)
	}
	_, err := importer.Import(context.Background(), importInput("q3"), wideCSV(csv...))
	if !errors.Is(err, ErrDuplicateDataset) {
		t.Fatalf("err = %v, want ErrDuplicateDataset", err)
	}
}

func TestImportRequiresReferenceDate(t *testing.T) {
	importer := NewImporter(newMemImporterStore(), nil, nil)
	_, err := importer.Import(context.Background(), ImportInput{Slug: "q3"}, wideCSV(
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments",
		"c-1,2014-07-15,Retail,5,2",
	))
	if err == nil {
		t.Fatal("expected an error without a reference date")
	}
}
