package churn

import (
	"math"
	"time"

	"github.com/churnscope/churnscope/internal/period"
)

// SelectRow picks the single training row for a labeled company and attaches
// its features. Churned companies contribute their churn-month row with a
// positive label; everyone else contributes the final window month with a
// negative label. The reference date anchors the incorporation age feature.
func SelectRow(o Outcome, h History, b Bounds, p Profile, reference time.Time) (TrainingRow, error) {
	row := TrainingRow{
		CompanyID:          o.CompanyID,
		Vertical:           p.Vertical,
		IncorporationYears: incorporationYears(p.IncorporatedAt, reference),
		LeadingIndicator:   o.Indicator,
	}
	switch o.Status {
	case StatusChurned:
		row.Month = o.ChurnMonth
		row.Churned = true
	case StatusActive, StatusNeverActive:
		maxMonth := period.Normalize(b.MaxMonth)
		if _, ok := monthIndex(h.Records)[period.Format(maxMonth)]; !ok {
			return TrainingRow{}, &MissingMonthError{CompanyID: o.CompanyID, Month: maxMonth}
		}
		row.Month = maxMonth
	default:
		return TrainingRow{}, ErrUnlabeledCompany
	}
	return row, nil
}

// incorporationYears measures the age of a company at the reference date in
// years with one decimal place.
func incorporationYears(incorporated, reference time.Time) float64 {
	days := reference.Sub(incorporated).Hours() / 24
	return math.Round(days/365.25*10) / 10
}
