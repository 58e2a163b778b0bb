// Package queueing owns the que-go plumbing: inserting queue entries and
// running the worker pool that drains them.
package queueing

import (
	"context"
	"encoding/json"
	"time"

	que "github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"

	"github.com/wotcworks/wotc-app/wotc/models"
)

// Enqueuer only handles inserting job entries into the queue table. The
// interface lets the que client be mocked for testing; it also satisfies
// the narrower interfaces the service and worker declare.
type Enqueuer interface {
	AddSubmissionJob(ctx context.Context, args models.JobEnqueueArgs) error
	AddSubmissionJobAt(ctx context.Context, args models.JobEnqueueArgs, runAt time.Time) error
	AddCaptureJob(ctx context.Context, args models.CaptureEnqueueArgs) error
}

func NewEnqueuer(queDB *pgx.ConnPool) Enqueuer {
	return queEnqueuer{que.NewClient(queDB)}
}

type queEnqueuer struct {
	qc *que.Client
}

func (q queEnqueuer) AddSubmissionJob(ctx context.Context, args models.JobEnqueueArgs) error {
	return q.enqueue(models.QUE_PROCESS_SUBMISSION, args, time.Time{})
}

func (q queEnqueuer) AddSubmissionJobAt(ctx context.Context, args models.JobEnqueueArgs, runAt time.Time) error {
	return q.enqueue(models.QUE_PROCESS_SUBMISSION, args, runAt)
}

func (q queEnqueuer) AddCaptureJob(ctx context.Context, args models.CaptureEnqueueArgs) error {
	return q.enqueue(models.QUE_CAPTURE_RESULTS, args, time.Time{})
}

func (q queEnqueuer) enqueue(jobType string, args interface{}, runAt time.Time) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return errors.Wrapf(err, "could not marshal %s args", jobType)
	}
	return q.qc.Enqueue(&que.Job{
		Type:  jobType,
		Args:  payload,
		RunAt: runAt,
	})
}
