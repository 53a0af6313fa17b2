package churn

import (
	"sort"
	"time"

	"github.com/churnscope/churnscope/internal/period"
)

// Label computes the churn outcome for a single company. The history is
// sorted chronologically before scanning, so callers may pass records in any
// order. Companies whose last activity falls on the final window month stay
// active; companies without any activity never churn.
func Label(h History, b Bounds) (Outcome, error) {
	if err := b.Validate(); err != nil {
		return Outcome{}, err
	}
	if len(h.Records) == 0 {
		return Outcome{}, ErrEmptyHistory
	}

	records := sortedRecords(h.Records)
	outcome := Outcome{CompanyID: h.CompanyID}

	lastActive, ok := lastLiveMonth(records)
	if !ok {
		outcome.Status = StatusNeverActive
		return outcome, nil
	}
	outcome.LastActive = lastActive

	if lastActive.Equal(period.Normalize(b.MaxMonth)) {
		outcome.Status = StatusActive
		return outcome, nil
	}

	churnMonth := period.Next(lastActive)
	if _, ok := monthIndex(records)[period.Format(churnMonth)]; !ok {
		return Outcome{}, &MissingMonthError{CompanyID: h.CompanyID, Month: churnMonth}
	}
	outcome.Status = StatusChurned
	outcome.ChurnMonth = churnMonth
	return outcome, nil
}

// Gaps lists every window month absent from the history. Used by ingestion
// checks and the scheduled gap scan to surface contiguity violations before
// labeling trips over them.
func Gaps(h History, b Bounds) []time.Time {
	index := monthIndex(h.Records)
	var gaps []time.Time
	for _, month := range period.Enumerate(b.MinMonth, b.MaxMonth) {
		if _, ok := index[period.Format(month)]; !ok {
			gaps = append(gaps, month)
		}
	}
	return gaps
}

func sortedRecords(records []Activity) []Activity {
	out := make([]Activity, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Month.Before(out[j].Month)
	})
	return out
}

func lastLiveMonth(sorted []Activity) (time.Time, bool) {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Live() {
			return period.Normalize(sorted[i].Month), true
		}
	}
	return time.Time{}, false
}

func monthIndex(records []Activity) map[string]Activity {
	index := make(map[string]Activity, len(records))
	for _, rec := range records {
		index[period.Format(rec.Month)] = rec
	}
	return index
}
