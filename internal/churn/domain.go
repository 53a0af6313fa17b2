// Package churn derives churn labels, training rows and the leading
// indicator feature from monthly company activity series.
package churn

import (
	"errors"
	"fmt"
	"time"
)

// Status enumerates per-company labeling result values.
type Status string

const (
	// StatusChurned indicates the company stopped all activity before the
	// end of the observation window.
	StatusChurned Status = "CHURNED"
	// StatusActive indicates activity in the final observed month, so no
	// churn event can be placed inside the window.
	StatusActive Status = "ACTIVE"
	// StatusNeverActive indicates the company never recorded any mandates
	// or payments.
	StatusNeverActive Status = "NEVER_ACTIVE"
)

// Activity is one observed month for a company.
type Activity struct {
	Month    time.Time
	Mandates int64
	Payments int64
}

// Live reports whether the month shows any usage at all.
func (a Activity) Live() bool {
	return a.Mandates != 0 || a.Payments != 0
}

// History is the full activity series of a single company.
type History struct {
	CompanyID string
	Records   []Activity
}

// Bounds delimit the observation window shared by every company in a
// dataset. Both months are inclusive.
type Bounds struct {
	MinMonth time.Time
	MaxMonth time.Time
}

// Validate ensures the window is well formed.
func (b Bounds) Validate() error {
	if b.MinMonth.IsZero() || b.MaxMonth.IsZero() {
		return errors.New("churn: bounds required")
	}
	if b.MinMonth.After(b.MaxMonth) {
		return errors.New("churn: min month after max month")
	}
	return nil
}

// Outcome is the labeling result for one company.
type Outcome struct {
	CompanyID  string
	Status     Status
	LastActive time.Time
	ChurnMonth time.Time
	Indicator  bool
}

// Churned reports whether a churn event was placed.
func (o Outcome) Churned() bool {
	return o.Status == StatusChurned
}

// Profile carries the company attributes copied onto training rows.
type Profile struct {
	CompanyID      string
	Vertical       string
	IncorporatedAt time.Time
}

// TrainingRow is the single supervised-learning row emitted per company.
// Month is the churn month for churned companies and the final window month
// otherwise; together with CompanyID it forms the stable row identity.
type TrainingRow struct {
	CompanyID          string
	Month              time.Time
	Churned            bool
	LeadingIndicator   bool
	IncorporationYears float64
	Vertical           string
}

// MissingMonthError reports a gap in an activity series at a month the
// labeler had to read. The company is skipped, never defaulted.
type MissingMonthError struct {
	CompanyID string
	Month     time.Time
}

// Error implements the error interface.
func (e *MissingMonthError) Error() string {
	return fmt.Sprintf("churn: company %s has no record for %s", e.CompanyID, e.Month.Format("2006-01"))
}

var (
	// ErrEmptyHistory occurs when a company arrives without any records.
	ErrEmptyHistory = errors.New("churn: empty history")
	// ErrDuplicateCompany occurs when the same company id is submitted twice
	// in one labeling pass.
	ErrDuplicateCompany = errors.New("churn: duplicate company")
	// ErrUnlabeledCompany occurs when a company falls out of both the
	// churned and retained sets. It signals a labeling bug.
	ErrUnlabeledCompany = errors.New("churn: company missing from both label sets")
)
