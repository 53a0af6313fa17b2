package traininghttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/churnscope/churnscope/internal/runs"
	"github.com/churnscope/churnscope/internal/training"
)

type stubService struct {
	rows       []training.RowView
	csv        string
	split      training.SplitResult
	err        error
	lastRunID  string
	lastParams training.SplitParams
}

func (s *stubService) Table(ctx context.Context, runID string) ([]training.RowView, error) {
	s.lastRunID = runID
	return s.rows, s.err
}

func (s *stubService) WriteCSV(ctx context.Context, runID string, w io.Writer) error {
	s.lastRunID = runID
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, s.csv)
	return err
}

func (s *stubService) Split(ctx context.Context, runID string, params training.SplitParams) (training.SplitResult, error) {
	s.lastRunID = runID
	s.lastParams = params
	if s.err != nil {
		return training.SplitResult{}, s.err
	}
	return s.split, nil
}

func serve(service Service, target string, header http.Header) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	NewHandler(nil, service).MountRoutes(router)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleTableReturnsJSON(t *testing.T) {
	service := &stubService{rows: []training.RowView{{
		CompanyID:         "acme",
		Month:             "2016-03",
		IncorporationTime: 2.5,
		Vertical:          "retail",
		Churn:             1,
		LeadingIndicator:  1,
	}}}

	rec := serve(service, "/runs/run-1/training-table", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if service.lastRunID != "run-1" {
		t.Fatalf("run id = %q, want run-1", service.lastRunID)
	}
	var payload tableResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.RunID != "run-1" || len(payload.Rows) != 1 || payload.Rows[0].Churn != 1 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestHandleTableServesCSV(t *testing.T) {
	const export = "company_id,incorporation_time,vertical,churn,leading_indicator\nacme,2.5,retail,1,1\n"

	cases := []struct {
		name   string
		target string
		header http.Header
	}{
		{"format param", "/runs/run-1/training-table?format=csv", nil},
		{"accept header", "/runs/run-1/training-table", http.Header{"Accept": []string{"text/csv"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(&stubService{csv: export}, tc.target, tc.header)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "text/csv" {
				t.Fatalf("content type = %q, want text/csv", got)
			}
			if rec.Body.String() != export {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestHandleTableMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"run missing", runs.ErrRunNotFound, http.StatusNotFound},
		{"run pending", runs.ErrRunNotReady, http.StatusConflict},
		{"degenerate", training.ErrDegenerateTable, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(&stubService{err: tc.err}, "/runs/run-1/training-table", nil)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			// Error responses must not inherit export headers.
			if got := rec.Header().Get("Content-Disposition"); got != "" {
				t.Fatalf("unexpected content disposition %q", got)
			}
		})
	}
}

func TestHandleSplitParsesParams(t *testing.T) {
	service := &stubService{split: training.SplitResult{
		Seed:      "abc",
		TestRatio: 0.25,
		Train:     []string{"x", "y"},
		Test:      []string{"z"},
	}}

	rec := serve(service, "/runs/run-1/split?seed=abc&test_ratio=0.25", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := training.SplitParams{Seed: "abc", TestRatio: 0.25}
	if service.lastParams != want {
		t.Fatalf("params = %+v, want %+v", service.lastParams, want)
	}
	var payload training.SplitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Test) != 1 || payload.Test[0] != "z" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestHandleSplitRejectsBadParams(t *testing.T) {
	rec := serve(&stubService{}, "/runs/run-1/split?test_ratio=lots", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = serve(&stubService{err: training.ErrInvalidSplit}, "/runs/run-1/split?test_ratio=2", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid split") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
