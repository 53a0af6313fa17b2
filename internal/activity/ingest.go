package activity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/churnscope/churnscope/internal/period"
)

// monthColumnPattern matches wide-format activity columns such as
// 2016-01-01_mandates. The date part must be the first of a month.
var monthColumnPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(mandates|payments)$`)

// ParsedCompany is one source row reshaped into a company plus its monthly
// series.
type ParsedCompany struct {
	ExternalID     string
	Vertical       string
	IncorporatedAt time.Time
	Records        []Record
}

// ParsedTable is the outcome of parsing a wide activity CSV.
type ParsedTable struct {
	MinMonth  time.Time
	MaxMonth  time.Time
	Companies []ParsedCompany
}

type monthColumns struct {
	month    time.Time
	mandates int
	payments int
}

type wideHeader struct {
	companyID     int
	incorporation int
	vertical      int
	months        []monthColumns
}

// CanonicalVertical folds a vertical label into its canonical form: interior
// whitespace collapsed, case folded.
func CanonicalVertical(v string) string {
	collapsed := strings.Join(strings.Fields(v), " ")
	return cases.Fold().String(collapsed)
}

// ParseWide reads a wide-format activity CSV: one row per company with
// identity columns followed by a pair of {date}_mandates / {date}_payments
// columns per month. The month columns must form a contiguous window and
// every row must fill it, so the parse fails on the malformed input instead
// of handing gaps to the labeler.
func ParseWide(r io.Reader) (*ParsedTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headerRecord, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("activity: empty input")
		}
		return nil, fmt.Errorf("activity: read header: %w", err)
	}
	header, err := parseWideHeader(headerRecord)
	if err != nil {
		return nil, err
	}

	table := &ParsedTable{
		MinMonth: header.months[0].month,
		MaxMonth: header.months[len(header.months)-1].month,
	}
	seen := make(map[string]bool)
	line := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("activity: read row: %w", err)
		}
		line++
		company, err := parseWideRow(header, record)
		if err != nil {
			return nil, fmt.Errorf("activity: row %d: %w", line, err)
		}
		if seen[company.ExternalID] {
			return nil, fmt.Errorf("activity: row %d: duplicate company %s", line, company.ExternalID)
		}
		seen[company.ExternalID] = true
		table.Companies = append(table.Companies, company)
	}
	if len(table.Companies) == 0 {
		return nil, errors.New("activity: no company rows")
	}
	return table, nil
}

func parseWideHeader(record []string) (*wideHeader, error) {
	header := &wideHeader{companyID: -1, incorporation: -1, vertical: -1}
	byMonth := make(map[string]*monthColumns)
	for i, col := range record {
		name := strings.ToLower(strings.TrimSpace(col))
		switch name {
		case "company_id":
			header.companyID = i
			continue
		case "incorporation_date":
			header.incorporation = i
			continue
		case "vertical":
			header.vertical = i
			continue
		}
		match := monthColumnPattern.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("activity: unrecognised column %q", col)
		}
		month, err := period.ParseDate(match[1])
		if err != nil {
			return nil, fmt.Errorf("activity: column %q: %w", col, err)
		}
		key := period.Format(month)
		entry, ok := byMonth[key]
		if !ok {
			entry = &monthColumns{month: month, mandates: -1, payments: -1}
			byMonth[key] = entry
		}
		switch match[2] {
		case "mandates":
			entry.mandates = i
		case "payments":
			entry.payments = i
		}
	}

	if header.companyID < 0 || header.incorporation < 0 || header.vertical < 0 {
		return nil, errors.New("activity: missing required columns (need company_id, incorporation_date, vertical)")
	}
	if len(byMonth) == 0 {
		return nil, errors.New("activity: no month columns found")
	}

	months := make([]monthColumns, 0, len(byMonth))
	for _, entry := range byMonth {
		if entry.mandates < 0 || entry.payments < 0 {
			return nil, fmt.Errorf("activity: month %s needs both mandates and payments columns", period.Format(entry.month))
		}
		months = append(months, *entry)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].month.Before(months[j].month) })

	first := months[0].month
	last := months[len(months)-1].month
	if period.Span(first, last) != len(months) {
		for i, want := range period.Enumerate(first, last) {
			if i >= len(months) || !months[i].month.Equal(want) {
				return nil, fmt.Errorf("activity: month columns not contiguous, missing %s", period.Format(want))
			}
		}
	}
	header.months = months
	return header, nil
}

func parseWideRow(header *wideHeader, record []string) (ParsedCompany, error) {
	companyID := strings.TrimSpace(record[header.companyID])
	if companyID == "" {
		return ParsedCompany{}, errors.New("empty company_id")
	}
	incorporated, err := time.ParseInLocation(period.DateLayout, strings.TrimSpace(record[header.incorporation]), time.UTC)
	if err != nil {
		return ParsedCompany{}, fmt.Errorf("company %s: invalid incorporation_date %q", companyID, record[header.incorporation])
	}
	vertical := CanonicalVertical(record[header.vertical])
	if vertical == "" {
		return ParsedCompany{}, fmt.Errorf("company %s: empty vertical", companyID)
	}

	company := ParsedCompany{
		ExternalID:     companyID,
		Vertical:       vertical,
		IncorporatedAt: incorporated,
		Records:        make([]Record, 0, len(header.months)),
	}
	for _, cols := range header.months {
		mandates, err := parseCount(record[cols.mandates])
		if err != nil {
			return ParsedCompany{}, fmt.Errorf("company %s: mandates for %s: %w", companyID, period.Format(cols.month), err)
		}
		payments, err := parseCount(record[cols.payments])
		if err != nil {
			return ParsedCompany{}, fmt.Errorf("company %s: payments for %s: %w", companyID, period.Format(cols.month), err)
		}
		company.Records = append(company.Records, Record{
			Month:    cols.month,
			Mandates: mandates,
			Payments: payments,
		})
	}
	return company, nil
}

func parseCount(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative count %d", value)
	}
	return value, nil
}
