// Package runs owns the labeling run lifecycle: a run takes one dataset
// through the churn engine and leaves behind an immutable training table.
package runs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates async run lifecycle values.
type Status string

const (
	// StatusPending indicates the run is queued and waiting for a worker.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the labeling engine is executing.
	StatusRunning Status = "RUNNING"
	// StatusSucceeded indicates the training table is ready for consumption.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates an error occurred before rows were committed.
	StatusFailed Status = "FAILED"
)

// Run tracks one labeling pass over a dataset.
type Run struct {
	ID         string
	DatasetID  int64
	Status     Status
	Stats      *Stats
	Error      string
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Ready reports whether the run's training table may be served.
func (r Run) Ready() bool {
	return r.Status == StatusSucceeded
}

// Stats summarises a finished run. Degenerate marks tables that cannot
// train a classifier: empty, or containing a single label class.
type Stats struct {
	Companies         int    `json:"companies"`
	Churned           int    `json:"churned"`
	Retained          int    `json:"retained"`
	NeverActive       int    `json:"never_active"`
	IndicatorPositive int    `json:"indicator_positive"`
	Skipped           int    `json:"skipped"`
	Degenerate        bool   `json:"degenerate"`
	DegenerateReason  string `json:"degenerate_reason,omitempty"`
}

// TriggerInput captures run creation input.
type TriggerInput struct {
	DatasetSlug string
}

// Validate ensures correctness.
func (in TriggerInput) Validate() error {
	if strings.TrimSpace(in.DatasetSlug) == "" {
		return fmt.Errorf("%w: dataset required", ErrInvalidTrigger)
	}
	return nil
}

// ListFilters narrows a run listing.
type ListFilters struct {
	DatasetID int64
	Limit     int
	Page      int
}

var (
	// ErrInvalidTrigger occurs when run creation input fails validation.
	ErrInvalidTrigger = errors.New("runs: invalid trigger")
	// ErrRunNotFound occurs when a run is missing.
	ErrRunNotFound = errors.New("runs: run not found")
	// ErrRunNotReady occurs when a training table is requested before the
	// run has succeeded.
	ErrRunNotReady = errors.New("runs: run not ready")
)
