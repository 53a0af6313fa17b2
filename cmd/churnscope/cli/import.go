package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/churnscope/churnscope/internal/activity"
	"github.com/churnscope/churnscope/internal/period"
)

// ImportRunner loads one wide activity CSV into a persisted dataset.
type ImportRunner interface {
	Import(ctx context.Context, input activity.ImportInput, r io.Reader) (activity.ImportSummary, error)
}

// ImportCLI wraps the dataset importer for terminal use.
type ImportCLI struct {
	importer ImportRunner
}

// NewImportCLI constructs the helper around an importer.
func NewImportCLI(importer ImportRunner) *ImportCLI {
	return &ImportCLI{importer: importer}
}

// ImportOptions configures the import command execution.
type ImportOptions struct {
	Slug          string
	ReferenceDate string
	Source        string
	SourceReader  io.Reader
	JSONOutput    bool
	Stdout        io.Writer
	Stderr        io.Writer
	Stdin         io.Reader
}

// ImportCommand ingests an activity CSV and reports what was stored.
func (c *ImportCLI) ImportCommand(ctx context.Context, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	slug := strings.TrimSpace(opts.Slug)
	if slug == "" {
		fmt.Fprintln(opts.Stderr, "import: --dataset is required")
		return 1
	}
	reference, err := time.Parse(period.DateLayout, strings.TrimSpace(opts.ReferenceDate))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "import: invalid --reference-date %q (expected YYYY-MM-DD)\n", opts.ReferenceDate)
		return 1
	}
	source, cleanup, err := openImportSource(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 1
	}
	defer cleanup()

	summary, err := c.importer.Import(ctx, activity.ImportInput{Slug: slug, ReferenceDate: reference}, source)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderImportHuman(opts.Stdout, summary)
	return 0
}

func openImportSource(opts ImportOptions) (io.Reader, func(), error) {
	noop := func() {}
	switch {
	case opts.SourceReader != nil:
		return opts.SourceReader, noop, nil
	case opts.Source == "" || opts.Source == "-":
		return opts.Stdin, noop, nil
	default:
		file, err := os.Open(opts.Source)
		if err != nil {
			return nil, noop, err
		}
		return file, func() { _ = file.Close() }, nil
	}
}

func renderImportHuman(out io.Writer, summary activity.ImportSummary) {
	fmt.Fprintf(out, "Imported dataset %s (#%d)\n", summary.Dataset, summary.DatasetID)
	fmt.Fprintf(out, " - companies: %d\n", summary.Companies)
	fmt.Fprintf(out, " - records:   %d\n", summary.Records)
	fmt.Fprintf(out, " - window:    %s to %s\n", summary.MinMonth, summary.MaxMonth)
}
