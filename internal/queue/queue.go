package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/hibiken/asynq"
)

func NewFireTask(job *models.PublishJob) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(FirePublishJobPayload{
		JobID:         job.ID,
		ContentItemID: job.ContentItemID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFirePublishJob, taskPayload), nil
}

// Enqueuer is the part of *asynq.Client the trigger needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqTrigger delivers publish jobs at their fire time through asynq. The
// job id doubles as the task id so a job is enqueued at most once.
type AsynqTrigger struct {
	client Enqueuer
}

func NewAsynqTrigger(client Enqueuer) *AsynqTrigger {
	return &AsynqTrigger{client: client}
}

func (t *AsynqTrigger) Trigger(ctx context.Context, job *models.PublishJob) error {
	task, err := NewFireTask(job)
	if err != nil {
		return err
	}

	_, err = t.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(job.FireAt),
		asynq.TaskID(job.ID),
		asynq.MaxRetry(0))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("publish job enqueued", "job_id", job.ID, "content_item_id", job.ContentItemID, "fire_at", job.FireAt)
	return nil
}
