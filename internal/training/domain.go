// Package training stores and serves the labeled table a run produces:
// one row per company, immutable once the run succeeds.
package training

import (
	"errors"
	"time"

	"github.com/churnscope/churnscope/internal/period"
)

// Row is one persisted training table entry.
type Row struct {
	RunID              string
	CompanyID          string
	Month              time.Time
	Churned            bool
	LeadingIndicator   bool
	IncorporationYears float64
	Vertical           string
}

// RowView is the JSON shape served to API consumers. Churn and the
// indicator are 0/1 to match the exported flat table.
type RowView struct {
	CompanyID         string  `json:"company_id"`
	Month             string  `json:"month"`
	IncorporationTime float64 `json:"incorporation_time"`
	Vertical          string  `json:"vertical"`
	Churn             int     `json:"churn"`
	LeadingIndicator  int     `json:"leading_indicator"`
}

// View maps a row to its API shape.
func (r Row) View() RowView {
	return RowView{
		CompanyID:         r.CompanyID,
		Month:             period.Format(r.Month),
		IncorporationTime: r.IncorporationYears,
		Vertical:          r.Vertical,
		Churn:             flag(r.Churned),
		LeadingIndicator:  flag(r.LeadingIndicator),
	}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ErrDegenerateTable occurs when a served table cannot train a classifier:
// it is empty or one label class is absent.
var ErrDegenerateTable = errors.New("training: degenerate table")

// ErrInvalidSplit occurs when split parameters fail validation.
var ErrInvalidSplit = errors.New("training: invalid split")
