package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// TableExporter streams a finished run's training table as CSV.
type TableExporter interface {
	WriteCSV(ctx context.Context, runID string, w io.Writer) error
}

// ExportCLI wraps the training table exporter for terminal use.
type ExportCLI struct {
	exporter TableExporter
}

// NewExportCLI constructs the helper around an exporter.
func NewExportCLI(exporter TableExporter) *ExportCLI {
	return &ExportCLI{exporter: exporter}
}

// ExportOptions configures the export command execution.
type ExportOptions struct {
	RunID  string
	Out    string
	Stdout io.Writer
	Stderr io.Writer
}

// ExportCommand writes the training table for a run to a file, or to stdout
// when no output path is given.
func (c *ExportCLI) ExportCommand(ctx context.Context, opts ExportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		fmt.Fprintln(opts.Stderr, "export: --run is required")
		return 1
	}
	dest := opts.Stdout
	toFile := opts.Out != "" && opts.Out != "-"
	if toFile {
		file, err := os.Create(opts.Out)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "export: %v\n", err)
			return 1
		}
		defer func() { _ = file.Close() }()
		dest = file
	}
	if err := c.exporter.WriteCSV(ctx, runID, dest); err != nil {
		fmt.Fprintf(opts.Stderr, "export: %v\n", err)
		return 1
	}
	if toFile {
		fmt.Fprintf(opts.Stdout, "export: wrote %s\n", opts.Out)
	}
	return 0
}
