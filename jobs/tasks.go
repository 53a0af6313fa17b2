package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLabelRun is the task type for executing a queued label run.
	TaskLabelRun = "churn:label_run"
	// TaskInsightsWarmup is the task type for pre-populating insight caches.
	TaskInsightsWarmup = "churn:insights_warmup"
	// TaskGapScan is the task type for the scheduled dataset integrity scan.
	TaskGapScan = "churn:gap_scan"
)

// LabelRunPayload identifies the run a labeling task should execute.
type LabelRunPayload struct {
	RunID string `json:"run_id"`
}

// InsightsWarmupPayload tunes how many recent runs the warmup touches.
type InsightsWarmupPayload struct {
	Runs int `json:"runs"`
}

// GapScanPayload optionally narrows the scan to a single dataset.
type GapScanPayload struct {
	Dataset string `json:"dataset"`
}

// NewLabelRunTask constructs an Asynq task.
func NewLabelRunTask(payload LabelRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLabelRun, data), nil
}

// NewInsightsWarmupTask constructs an Asynq task.
func NewInsightsWarmupTask(payload InsightsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightsWarmup, data), nil
}

// NewGapScanTask constructs an Asynq task.
func NewGapScanTask(payload GapScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGapScan, data), nil
}
