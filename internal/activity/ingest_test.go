package activity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/churnscope/churnscope/internal/period"
)

func wideCSV(rows ...string) *strings.Reader {
	return strings.NewReader(strings.Join(rows, "\n") + "\n")
}

func TestParseWideReadsCompaniesAndWindow(t *testing.T) {
	input := wideCSV(
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments,2016-02-01_mandates,2016-02-01_payments",
		"c-1,2014-07-15,Retail,5,2,3,1",
		"c-2,2015-11-01,  Retail   Banking ,0,0,4,9",
	)

	table, err := ParseWide(input)
	if err != nil {
		t.Fatalf("ParseWide: %v", err)
	}
	if got := period.Format(table.MinMonth); got != "2016-01" {
		t.Fatalf("min month = %s, want 2016-01", got)
	}
	if got := period.Format(table.MaxMonth); got != "2016-02" {
		t.Fatalf("max month = %s, want 2016-02", got)
	}
	if len(table.Companies) != 2 {
		t.Fatalf("companies = %d, want 2", len(table.Companies))
	}

	first := table.Companies[0]
	if first.ExternalID != "c-1" || first.Vertical != "retail" {
		t.Fatalf("unexpected first company %+v", first)
	}
	if want := time.Date(2014, time.July, 15, 0, 0, 0, 0, time.UTC); !first.IncorporatedAt.Equal(want) {
		t.Fatalf("incorporated at %s, want %s", first.IncorporatedAt, want)
	}
	if len(first.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(first.Records))
	}
	if first.Records[0].Mandates != 5 || first.Records[0].Payments != 2 {
		t.Fatalf("unexpected january counts %+v", first.Records[0])
	}
	if first.Records[1].Mandates != 3 || first.Records[1].Payments != 1 {
		t.Fatalf("unexpected february counts %+v", first.Records[1])
	}

	if got := table.Companies[1].Vertical; got != "retail banking" {
		t.Fatalf("vertical = %q, want canonical form", got)
	}
}

func TestParseWideRejectsUnrecognisedColumn(t *testing.T) {
	input := wideCSV(
		"company_id,incorporation_date,vertical,revenue",
		"c-1,2014-07-15,retail,10",
	)
	if _, err := ParseWide(input); err == nil || !strings.Contains(err.Error(), "unrecognised column") {
		t.Fatalf("expected unrecognised column error, got %v", err)
	}
}

func TestParseWideRequiresBothCountColumns(t *testing.T) {
	input := wideCSV(
		"company_id,incorporation_date,vertical,2016-01-01_mandates",
		"c-1,2014-07-15,retail,10",
	)
	if _, err := ParseWide(input); err == nil || !strings.Contains(err.Error(), "both mandates and payments") {
		t.Fatalf("expected paired column error, got %v", err)
	}
}

func TestParseWideRejectsNonContiguousMonths(t *testing.T) {
	input := wideCSV(
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments,2016-03-01_mandates,2016-03-01_payments",
		"c-1,2014-07-15,retail,1,1,1,1",
	)
	_, err := ParseWide(input)
	if err == nil || !strings.Contains(err.Error(), "missing 2016-02") {
		t.Fatalf("expected contiguity error naming 2016-02, got %v", err)
	}
}

func TestParseWideRejectsMidMonthColumn(t *testing.T) {
	input := wideCSV(
		"company_id,incorporation_date,vertical,2016-01-15_mandates,2016-01-15_payments",
		"c-1,2014-07-15,retail,1,1",
	)
	if _, err := ParseWide(input); err == nil || !strings.Contains(err.Error(), "first of the month") {
		t.Fatalf("expected first-of-month error, got %v", err)
	}
}

func TestParseWideRejectsDuplicateCompany(t *testing.T) {
	input := wideCSV(
		"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments",
		"c-1,2014-07-15,retail,1,1",
		"c-1,2014-07-15,retail,2,2",
	)
	if _, err := ParseWide(input); err == nil || !strings.Contains(err.Error(), "duplicate company c-1") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestParseWideRejectsBadCounts(t *testing.T) {
	cases := []struct {
		name string
		row  string
		want string
	}{
		{"negative", "c-1,2014-07-15,retail,-1,0", "negative count"},
		{"garbage", "c-1,2014-07-15,retail,many,0", "invalid count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := wideCSV(
				"company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments",
				tc.row,
			)
			if _, err := ParseWide(input); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestParseWideRejectsEmptyInput(t *testing.T) {
	if _, err := ParseWide(strings.NewReader("")); err == nil || !strings.Contains(err.Error(), "empty input") {
		t.Fatalf("expected empty input error, got %v", err)
	}
}

func TestParseWideRequiresCompanyRows(t *testing.T) {
	input := wideCSV("company_id,incorporation_date,vertical,2016-01-01_mandates,2016-01-01_payments")
	if _, err := ParseWide(input); err == nil || !strings.Contains(err.Error(), "no company rows") {
		t.Fatalf("expected no rows error, got %v", err)
	}
}

func TestCanonicalVertical(t *testing.T) {
	cases := map[string]string{
		"Retail":            "retail",
		"  Retail Banking ": "retail banking",
		"SaaS\tTools":       "saas tools",
	}
	for in, want := range cases {
		if got := CanonicalVertical(in); got != want {
			t.Fatalf("CanonicalVertical(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateDatasetInputValidate(t *testing.T) {
	valid := CreateDatasetInput{
		Slug:          "q1-2016",
		ReferenceDate: time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC),
		MinMonth:      time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC),
		MaxMonth:      time.Date(2016, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	bad := valid
	bad.Slug = "Q1 2016"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected slug error")
	}

	bad = valid
	bad.MinMonth, bad.MaxMonth = valid.MaxMonth, valid.MinMonth
	if err := bad.Validate(); err == nil {
		t.Fatal("expected window order error")
	}

	bad = valid
	bad.ReferenceDate = time.Time{}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected reference date error")
	}
	if !errors.Is(valid.Validate(), nil) {
		t.Fatal("valid input must not error")
	}
}
