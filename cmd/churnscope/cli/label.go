package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/churnscope/churnscope/internal/runs"
)

// RunService drives label runs synchronously, without a queue worker.
type RunService interface {
	Trigger(ctx context.Context, input runs.TriggerInput) (runs.Run, error)
	Execute(ctx context.Context, runID string) error
	Get(ctx context.Context, id string) (runs.Run, error)
}

// LabelCLI wraps the run service for terminal use.
type LabelCLI struct {
	runs RunService
}

// NewLabelCLI constructs the helper around a run service.
func NewLabelCLI(service RunService) *LabelCLI {
	return &LabelCLI{runs: service}
}

// LabelOptions configures the label command execution.
type LabelOptions struct {
	Dataset    string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LabelSummary captures the structured reporting outcome.
type LabelSummary struct {
	RunID   string      `json:"run_id"`
	Dataset string      `json:"dataset"`
	Status  string      `json:"status"`
	Stats   *runs.Stats `json:"stats,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LabelCommand triggers a run and executes it in-process, then reports the
// final state. Exit code 10 marks a degenerate training table so pipelines
// can stop before training on it.
func (c *LabelCLI) LabelCommand(ctx context.Context, opts LabelOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	dataset := strings.TrimSpace(opts.Dataset)
	if dataset == "" {
		fmt.Fprintln(opts.Stderr, "label: --dataset is required")
		return 1
	}
	run, err := c.runs.Trigger(ctx, runs.TriggerInput{DatasetSlug: dataset})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "label: trigger run: %v\n", err)
		return 1
	}
	execErr := c.runs.Execute(ctx, run.ID)
	final, err := c.runs.Get(ctx, run.ID)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "label: fetch run %s: %v\n", run.ID, err)
		return 1
	}
	summary := LabelSummary{
		RunID:   final.ID,
		Dataset: dataset,
		Status:  string(final.Status),
		Stats:   final.Stats,
		Error:   final.Error,
	}
	if err := writeLabelOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "label: %v\n", err)
		return 1
	}
	if execErr != nil {
		fmt.Fprintf(opts.Stderr, "label: run %s failed: %v\n", run.ID, execErr)
		return 1
	}
	if final.Stats != nil && final.Stats.Degenerate {
		return 10
	}
	return 0
}

func writeLabelOutput(opts LabelOptions, summary LabelSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderLabelHuman(opts.Stdout, summary)
	return nil
}

func renderLabelHuman(out io.Writer, summary LabelSummary) {
	fmt.Fprintf(out, "Run %s on %s: %s\n", summary.RunID, summary.Dataset, summary.Status)
	if summary.Stats == nil {
		return
	}
	stats := summary.Stats
	fmt.Fprintf(out, " - companies: %d (skipped %d)\n", stats.Companies, stats.Skipped)
	fmt.Fprintf(out, " - churned:   %d / retained %d / never active %d\n", stats.Churned, stats.Retained, stats.NeverActive)
	fmt.Fprintf(out, " - indicator: %d positive\n", stats.IndicatorPositive)
	if stats.Degenerate {
		fmt.Fprintf(out, " - degenerate table: %s\n", stats.DegenerateReason)
	}
}
