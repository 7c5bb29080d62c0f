package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// RunAnalysisTask is scheduled once per created or reanalyzed record.
	RunAnalysisTask = "analysis:run"
)

// RunPayload tells the worker which record to process.
type RunPayload struct {
	AnalysisID string `json:"analysis_id"`
}

// Enqueuer is the slice of asynq.Client the intake needs; a fake stands in
// for it in tests.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueRun schedules one analysis run. MaxRetry is zero on purpose: the
// pipeline owns its own retries, and a failed run is terminal for the record.
func EnqueueRun(ctx context.Context, client Enqueuer, payload RunPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(RunAnalysisTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(0), asynq.Timeout(10*time.Minute)); err != nil {
		return fmt.Errorf("enqueue analysis run: %w", err)
	}
	return nil
}
