package churn

import (
	"github.com/churnscope/churnscope/internal/period"
)

// DeriveIndicator computes the leading indicator for a labeled company. The
// indicator fires only for churned companies whose mandates declined in the
// month before their last active month: with churn at c, it compares
// mandates(c-1) against mandates(c-2). Payments are not consulted.
//
// Companies churning too close to the window start carry a zero indicator,
// as do companies with no mandates baseline at c-2.
func DeriveIndicator(o Outcome, h History, b Bounds) (bool, error) {
	if !o.Churned() {
		return false, nil
	}
	m1 := period.Prev(o.ChurnMonth)
	m2 := period.Add(o.ChurnMonth, -2)
	if m2.Before(period.Normalize(b.MinMonth)) {
		return false, nil
	}

	index := monthIndex(h.Records)
	baseline, ok := index[period.Format(m2)]
	if !ok {
		return false, &MissingMonthError{CompanyID: h.CompanyID, Month: m2}
	}
	if baseline.Mandates <= 0 {
		return false, nil
	}
	latest, ok := index[period.Format(m1)]
	if !ok {
		return false, &MissingMonthError{CompanyID: h.CompanyID, Month: m1}
	}
	return latest.Mandates < baseline.Mandates, nil
}
