package queueing

import (
	"context"
	"encoding/json"

	que "github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/conf"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotcworker/worker"
)

type queue struct {
	worker  *worker.Worker
	log     logrus.FieldLogger
	queDB   *pgx.ConnPool
	quePool *que.WorkerPool

	environment string
}

// MasterQueue carries the pool plus its conf-derived settings.
type MasterQueue struct {
	*queue

	MaxNotFoundRetries int `conf:"WOTC_WORKER_MAX_JOB_NOT_FOUND_RETRIES" conf_default:"3"`
}

func newMasterQueue(q *queue) *MasterQueue {
	mq := &MasterQueue{queue: q}
	if err := conf.Checkout(mq); err != nil {
		logrus.Fatal("Could not get queue settings from conf.", err)
	}
	return mq
}

// StartQue creates a que-go client and begins listening for items. It
// returns immediately; the workers run in their own goroutines.
func StartQue(log logrus.FieldLogger, w *worker.Worker, queDB *pgx.ConnPool, numWorkers int) *MasterQueue {
	q := &queue{
		worker:      w,
		log:         log,
		queDB:       queDB,
		environment: conf.GetEnv("DEPLOYMENT_TARGET"),
	}
	master := newMasterQueue(q)

	qc := que.NewClient(q.queDB)
	wm := que.WorkMap{
		models.QUE_PROCESS_SUBMISSION: master.processSubmission,
		models.QUE_CAPTURE_RESULTS:    master.processCapture,
	}
	q.quePool = que.NewWorkerPool(qc, wm, numWorkers)
	q.quePool.Start()

	return master
}

// StopQue cleans up any resources created.
func (q *MasterQueue) StopQue() {
	q.quePool.Shutdown()
	q.queDB.Close()
}

func (q *MasterQueue) processSubmission(queJob *que.Job) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var jobArgs models.JobEnqueueArgs
	if err := json.Unmarshal(queJob.Args, &jobArgs); err != nil {
		// ACK the job because retrying it won't help us deserialize the
		// data.
		q.log.Warnf("Failed to deserialize job.Args '%s' %s. Removing queuejob from que.", queJob.Args, err)
		return nil
	}

	err := q.worker.ProcessSubmission(ctx, jobArgs)
	switch err {
	case nil:
		return nil
	case worker.ErrInFlight:
		// Another worker in this process holds the pair; let que retry
		// after its error backoff.
		q.log.Warnf("Job %d in flight elsewhere in this process. Deferring.", jobArgs.ID)
		return err
	case worker.ErrJobNotReady:
		if int(queJob.ErrorCount) >= q.MaxNotFoundRetries {
			q.log.Errorf("Job %d not found after %d attempts. Removing queuejob from que.", jobArgs.ID, queJob.ErrorCount)
			return nil
		}
		return err
	default:
		q.log.Error(err)
		return err
	}
}

func (q *MasterQueue) processCapture(queJob *que.Job) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var captureArgs models.CaptureEnqueueArgs
	if err := json.Unmarshal(queJob.Args, &captureArgs); err != nil {
		q.log.Warnf("Failed to deserialize capture job.Args '%s' %s. Removing queuejob from que.", queJob.Args, err)
		return nil
	}

	if err := q.worker.ProcessCapture(ctx, captureArgs); err != nil {
		q.log.Error(err)
		return err
	}
	return nil
}
