package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/runs"
)

type stubImporter struct {
	summary activity.ImportSummary
	err     error
	input   activity.ImportInput
	data    []byte
}

func (s *stubImporter) Import(ctx context.Context, input activity.ImportInput, r io.Reader) (activity.ImportSummary, error) {
	s.input = input
	s.data, _ = io.ReadAll(r)
	if s.err != nil {
		return activity.ImportSummary{}, s.err
	}
	return s.summary, nil
}

func TestImportCommandJSONSuccess(t *testing.T) {
	importer := &stubImporter{
		summary: activity.ImportSummary{
			Dataset:   "pilot",
			DatasetID: 7,
			Companies: 3,
			Records:   36,
			MinMonth:  "2023-05",
			MaxMonth:  "2024-04",
		},
	}
	cli := NewImportCLI(importer)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), ImportOptions{
		Slug:          "pilot",
		ReferenceDate: "2024-04-15",
		SourceReader:  strings.NewReader("company_id,vertical\n"),
		JSONOutput:    true,
		Stdout:        stdout,
		Stderr:        stderr,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary activity.ImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "pilot", summary.Dataset)
	require.Equal(t, 3, summary.Companies)

	require.Equal(t, "pilot", importer.input.Slug)
	require.Equal(t, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC), importer.input.ReferenceDate)
	require.Equal(t, "company_id,vertical\n", string(importer.data))
}

func TestImportCommandInvalidReferenceDate(t *testing.T) {
	cli := NewImportCLI(&stubImporter{})

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), ImportOptions{
		Slug:          "pilot",
		ReferenceDate: "2024-04",
		SourceReader:  strings.NewReader("x"),
		Stdout:        stdout,
		Stderr:        stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "invalid --reference-date")
}

func TestImportCommandRequiresDataset(t *testing.T) {
	cli := NewImportCLI(&stubImporter{})

	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), ImportOptions{
		ReferenceDate: "2024-04-15",
		SourceReader:  strings.NewReader("x"),
		Stdout:        new(bytes.Buffer),
		Stderr:        stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "--dataset is required")
}

func TestImportCommandSurfacesImporterError(t *testing.T) {
	cli := NewImportCLI(&stubImporter{err: errors.New("activity: duplicate company acme")})

	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), ImportOptions{
		Slug:          "pilot",
		ReferenceDate: "2024-04-15",
		SourceReader:  strings.NewReader("x"),
		Stdout:        new(bytes.Buffer),
		Stderr:        stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "duplicate company")
}

type stubRunService struct {
	triggered runs.TriggerInput
	executed  string
	run       runs.Run
	final     runs.Run
	execErr   error
}

func (s *stubRunService) Trigger(ctx context.Context, input runs.TriggerInput) (runs.Run, error) {
	s.triggered = input
	return s.run, nil
}

func (s *stubRunService) Execute(ctx context.Context, runID string) error {
	s.executed = runID
	return s.execErr
}

func (s *stubRunService) Get(ctx context.Context, id string) (runs.Run, error) {
	return s.final, nil
}

func TestLabelCommandJSONSuccess(t *testing.T) {
	service := &stubRunService{
		run: runs.Run{ID: "run-1", Status: runs.StatusPending},
		final: runs.Run{
			ID:     "run-1",
			Status: runs.StatusSucceeded,
			Stats:  &runs.Stats{Companies: 4, Churned: 2, Retained: 2},
		},
	}
	cli := NewLabelCLI(service)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.LabelCommand(context.Background(), LabelOptions{
		Dataset:    "pilot",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())
	require.Equal(t, "pilot", service.triggered.DatasetSlug)
	require.Equal(t, "run-1", service.executed)

	var summary LabelSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, string(runs.StatusSucceeded), summary.Status)
	require.NotNil(t, summary.Stats)
	require.Equal(t, 4, summary.Stats.Companies)
}

func TestLabelCommandDegenerateTableExitsTen(t *testing.T) {
	service := &stubRunService{
		run: runs.Run{ID: "run-2"},
		final: runs.Run{
			ID:     "run-2",
			Status: runs.StatusSucceeded,
			Stats:  &runs.Stats{Companies: 2, Retained: 2, Degenerate: true, DegenerateReason: "single class"},
		},
	}
	cli := NewLabelCLI(service)

	stdout := new(bytes.Buffer)
	exitCode := cli.LabelCommand(context.Background(), LabelOptions{
		Dataset: "pilot",
		Stdout:  stdout,
		Stderr:  new(bytes.Buffer),
	})
	require.Equal(t, 10, exitCode)
	require.Contains(t, stdout.String(), "degenerate table: single class")
}

func TestLabelCommandReportsExecutionFailure(t *testing.T) {
	service := &stubRunService{
		run:     runs.Run{ID: "run-3"},
		execErr: errors.New("activity: missing month 2024-01"),
		final: runs.Run{
			ID:     "run-3",
			Status: runs.StatusFailed,
			Error:  "activity: missing month 2024-01",
		},
	}
	cli := NewLabelCLI(service)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.LabelCommand(context.Background(), LabelOptions{
		Dataset:    "pilot",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "missing month")

	var summary LabelSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, string(runs.StatusFailed), summary.Status)
	require.Contains(t, summary.Error, "missing month")
}

type stubExporter struct {
	csv   string
	err   error
	runID string
}

func (s *stubExporter) WriteCSV(ctx context.Context, runID string, w io.Writer) error {
	s.runID = runID
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, s.csv)
	return err
}

func TestExportCommandWritesStdout(t *testing.T) {
	exporter := &stubExporter{csv: "company_id,incorporation_time,vertical,churn,leading_indicator\n"}
	cli := NewExportCLI(exporter)

	stdout := new(bytes.Buffer)
	exitCode := cli.ExportCommand(context.Background(), ExportOptions{
		RunID:  "run-1",
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Zero(t, exitCode)
	require.Equal(t, exporter.csv, stdout.String())
	require.Equal(t, "run-1", exporter.runID)
}

func TestExportCommandWritesFile(t *testing.T) {
	exporter := &stubExporter{csv: "company_id,incorporation_time,vertical,churn,leading_indicator\n"}
	cli := NewExportCLI(exporter)

	path := filepath.Join(t.TempDir(), "table.csv")
	stdout := new(bytes.Buffer)
	exitCode := cli.ExportCommand(context.Background(), ExportOptions{
		RunID:  "run-1",
		Out:    path,
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Zero(t, exitCode)
	require.Contains(t, stdout.String(), "wrote "+path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, exporter.csv, string(written))
}

func TestExportCommandSurfacesNotReady(t *testing.T) {
	cli := NewExportCLI(&stubExporter{err: runs.ErrRunNotReady})

	stderr := new(bytes.Buffer)
	exitCode := cli.ExportCommand(context.Background(), ExportOptions{
		RunID:  "run-1",
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "not ready")
}

func TestExportCommandRequiresRun(t *testing.T) {
	cli := NewExportCLI(&stubExporter{})

	stderr := new(bytes.Buffer)
	exitCode := cli.ExportCommand(context.Background(), ExportOptions{
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "--run is required")
}
