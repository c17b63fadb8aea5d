package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// HandleFirePublishJobTask fires the job named in the task. Jobs already
// claimed by the sweep or replaced by a reschedule are skipped.
func (q *Queue) HandleFirePublishJobTask(ctx context.Context, task *asynq.Task) error {
	var payload FirePublishJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("payload without job id: %w", asynq.SkipRetry)
	}

	fired, err := q.firer.Fire(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if !fired {
		slog.Debug("publish job no longer pending", "job_id", payload.JobID, "content_item_id", payload.ContentItemID)
	}
	return nil
}
