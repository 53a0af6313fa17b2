package churn

import (
	"errors"
	"testing"
	"time"
)

func TestSelectRowChurnedCompanyUsesChurnMonth(t *testing.T) {
	h := series("x", month(2016, time.January), []int64{5, 3, 0, 0}, nil)
	b := testBounds()
	outcome := mustLabel(t, h, b)
	outcome.Indicator = true
	profile := Profile{CompanyID: "x", Vertical: "retail", IncorporatedAt: time.Date(2014, time.July, 1, 0, 0, 0, 0, time.UTC)}
	reference := time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)

	row, err := SelectRow(outcome, h, b, profile, reference)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !row.Churned || !row.LeadingIndicator {
		t.Fatalf("expected churned row with indicator, got %+v", row)
	}
	if !row.Month.Equal(month(2016, time.March)) {
		t.Fatalf("expected row at churn month, got %s", row.Month.Format("2006-01"))
	}
	if row.Vertical != "retail" {
		t.Fatalf("expected vertical copied, got %q", row.Vertical)
	}
	if row.IncorporationYears != 2.5 {
		t.Fatalf("expected 2.5 years, got %v", row.IncorporationYears)
	}
}

func TestSelectRowRetainedCompanyUsesFinalMonth(t *testing.T) {
	h := series("z", month(2016, time.January), []int64{2, 2, 2, 2}, nil)
	b := testBounds()
	outcome := mustLabel(t, h, b)
	row, err := SelectRow(outcome, h, b, Profile{CompanyID: "z"}, month(2017, time.January))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if row.Churned || row.LeadingIndicator {
		t.Fatalf("expected retained row, got %+v", row)
	}
	if !row.Month.Equal(month(2016, time.April)) {
		t.Fatalf("expected row at window end, got %s", row.Month.Format("2006-01"))
	}
}

func TestSelectRowNeverActiveCompanyUsesFinalMonth(t *testing.T) {
	h := series("y", month(2016, time.January), []int64{0, 0, 0, 0}, nil)
	b := testBounds()
	outcome := mustLabel(t, h, b)
	row, err := SelectRow(outcome, h, b, Profile{CompanyID: "y"}, month(2017, time.January))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if row.Churned {
		t.Fatalf("never-active companies must not churn")
	}
	if !row.Month.Equal(month(2016, time.April)) {
		t.Fatalf("expected row at window end, got %s", row.Month.Format("2006-01"))
	}
}

func TestSelectRowMissingFinalMonthFailsLoudly(t *testing.T) {
	h := History{CompanyID: "gap", Records: []Activity{
		{Month: month(2016, time.January), Mandates: 1},
		{Month: month(2016, time.February), Mandates: 1},
		{Month: month(2016, time.March), Mandates: 1},
	}}
	b := testBounds()
	outcome := Outcome{CompanyID: "gap", Status: StatusActive, LastActive: month(2016, time.March)}
	_, err := SelectRow(outcome, h, b, Profile{CompanyID: "gap"}, month(2017, time.January))
	var missing *MissingMonthError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingMonthError, got %v", err)
	}
}

func TestSelectRowRejectsUnlabeledOutcome(t *testing.T) {
	h := series("u", month(2016, time.January), []int64{1, 1, 1, 1}, nil)
	_, err := SelectRow(Outcome{CompanyID: "u"}, h, testBounds(), Profile{CompanyID: "u"}, month(2017, time.January))
	if !errors.Is(err, ErrUnlabeledCompany) {
		t.Fatalf("expected ErrUnlabeledCompany, got %v", err)
	}
}

func TestIncorporationYearsRoundsToOneDecimal(t *testing.T) {
	cases := []struct {
		incorporated time.Time
		reference    time.Time
		want         float64
	}{
		{time.Date(2014, time.July, 1, 0, 0, 0, 0, time.UTC), time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC), 2.5},
		{time.Date(2016, time.December, 1, 0, 0, 0, 0, time.UTC), time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC), 0.1},
		{time.Date(2007, time.January, 1, 0, 0, 0, 0, time.UTC), time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC), 10},
	}
	for _, tc := range cases {
		if got := incorporationYears(tc.incorporated, tc.reference); got != tc.want {
			t.Fatalf("incorporationYears(%s, %s) = %v, want %v",
				tc.incorporated.Format("2006-01-02"), tc.reference.Format("2006-01-02"), got, tc.want)
		}
	}
}
