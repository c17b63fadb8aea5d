package queue

import (
	"context"
)

// Firer claims and dispatches one publish job.
type Firer interface {
	Fire(ctx context.Context, jobID string) (bool, error)
}

type Queue struct {
	firer Firer
}

func NewQueue(firer Firer) *Queue {
	return &Queue{
		firer: firer,
	}
}

const TaskTypeFirePublishJob = "publish:fire"

type FirePublishJobPayload struct {
	JobID         string `json:"job_id"`
	ContentItemID int64  `json:"content_item_id"`
}
