// Package activity owns datasets: companies and their monthly activity
// records as imported from source systems.
package activity

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Dataset groups the activity records imported in one batch. Min and max
// month delimit the shared observation window; the reference date anchors
// the incorporation age feature of derived training rows.
type Dataset struct {
	ID            int64
	Slug          string
	ReferenceDate time.Time
	MinMonth      time.Time
	MaxMonth      time.Time
	CreatedAt     time.Time
}

// Company is a single labeled entity inside a dataset. ExternalID is the
// company identifier carried by the source data and by every derived row.
type Company struct {
	ID             int64
	DatasetID      int64
	ExternalID     string
	Vertical       string
	IncorporatedAt time.Time
	CreatedAt      time.Time
}

// Record is one observed month for a company.
type Record struct {
	ID        int64
	CompanyID int64
	Month     time.Time
	Mandates  int64
	Payments  int64
}

// CreateDatasetInput captures dataset creation parameters.
type CreateDatasetInput struct {
	Slug          string
	ReferenceDate time.Time
	MinMonth      time.Time
	MaxMonth      time.Time
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate ensures correctness.
func (in CreateDatasetInput) Validate() error {
	if !slugPattern.MatchString(strings.TrimSpace(in.Slug)) {
		return errors.New("activity: dataset slug must be lowercase alphanumeric")
	}
	if in.ReferenceDate.IsZero() {
		return errors.New("activity: reference date required")
	}
	if in.MinMonth.IsZero() || in.MaxMonth.IsZero() {
		return errors.New("activity: observation window required")
	}
	if in.MinMonth.After(in.MaxMonth) {
		return errors.New("activity: min month after max month")
	}
	return nil
}

var (
	// ErrDatasetNotFound occurs when a dataset is missing.
	ErrDatasetNotFound = errors.New("activity: dataset not found")
	// ErrDuplicateDataset occurs when a slug is already taken.
	ErrDuplicateDataset = errors.New("activity: dataset already exists")
	// ErrCompanyNotFound occurs when a company is missing.
	ErrCompanyNotFound = errors.New("activity: company not found")
)
