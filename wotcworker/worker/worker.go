package worker

import (
	"context"
	"database/sql"
	goerrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/log"
	"github.com/wotcworks/wotc-app/wotc/archive"
	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/channel"
	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/notification"
	"github.com/wotcworks/wotc-app/wotc/repository"
	"github.com/wotcworks/wotc-app/wotc/repository/postgres"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

var (
	// ErrInFlight means another worker in this process holds the pair's
	// token. The queue job is retried, not failed.
	ErrInFlight = goerrors.New("submission for this employer and state is already in flight")

	// ErrJobNotReady means the job row was not visible yet. Queue inserts
	// can land before the job row commits, so this is retried.
	ErrJobNotReady = goerrors.New("submission job row not found yet")
)

// retryBaseDelay seeds the exponential backoff between transient attempts.
const retryBaseDelay = time.Minute

// Requeuer schedules a transient retry for a later pass through the pool.
type Requeuer interface {
	AddSubmissionJobAt(ctx context.Context, args models.JobEnqueueArgs, runAt time.Time) error
}

// Worker executes one submission or capture job end to end.
type Worker struct {
	repo     repository.Repository
	vault    *vault.Vault
	saver    archive.Saver
	notifier notification.Notifier
	requeuer Requeuer
	inflight *Registry
	logger   logrus.FieldLogger

	// resolve and now are swappable for tests.
	resolve func(*models.StatePortalConfig) (channel.Adapter, error)
	now     func() time.Time
}

func NewWorker(db *sql.DB, v *vault.Vault, saver archive.Saver, notifier notification.Notifier, requeuer Requeuer) *Worker {
	return &Worker{
		repo:     postgres.NewRepository(db),
		vault:    v,
		saver:    saver,
		notifier: notifier,
		requeuer: requeuer,
		inflight: NewRegistry(),
		logger:   log.Worker,
		resolve:  channel.Resolve,
		now:      time.Now,
	}
}

// ProcessSubmission runs the submission state machine for one queued job.
// A nil return acknowledges the queue entry; transient retries are
// re-enqueued explicitly with their backoff delay before acknowledging.
func (w *Worker) ProcessSubmission(ctx context.Context, args models.JobEnqueueArgs) error {
	job, err := w.repo.GetSubmissionJobByID(ctx, args.ID)
	if goerrors.Is(err, repository.ErrJobNotFound) {
		return ErrJobNotReady
	} else if err != nil {
		return errors.Wrap(err, "could not retrieve job from database")
	}

	if job.Status.Terminal() {
		w.logger.Warnf("Job %d already in terminal status %s. Acknowledging.", job.ID, job.Status)
		return nil
	}

	if !w.inflight.Acquire(job.EmployerID, job.StateCode) {
		return ErrInFlight
	}
	defer w.inflight.Release(job.EmployerID, job.StateCode)

	err = w.repo.UpdateJobStatusCheckStatus(ctx, job.ID, job.Status, models.JobStatusProcessing)
	if goerrors.Is(err, repository.ErrJobNotUpdated) {
		w.logger.Warnf("Failed to update job %d. Assume another worker claimed it. Acknowledging.", job.ID)
		return nil
	} else if err != nil {
		return errors.Wrap(err, "could not update job status in database")
	}
	w.auditTransition(ctx, job, args.TransactionID, string(job.Status), string(models.JobStatusProcessing))

	portal, err := w.repo.GetPortalByState(ctx, job.StateCode)
	if err != nil {
		return w.failJob(ctx, job, args, job.AttemptCount+1, channel.KindStructural, err)
	}
	if portal.Disabled {
		return w.failJob(ctx, job, args, job.AttemptCount+1, channel.KindAuth,
			errors.Errorf("portal %d is disabled pending credential re-entry", portal.ID))
	}

	screenings, err := w.repo.GetCertifiedScreenings(ctx, job.EmployerID, job.StateCode)
	if err != nil {
		return errors.Wrap(err, "could not load certified screenings")
	}

	payload, err := formatter.Format(portal.ChannelType, formatter.Batch{
		EmployerID: job.EmployerID,
		StateCode:  job.StateCode,
		Records:    screenings,
		AsOf:       w.now(),
	})
	if err != nil {
		return w.failJob(ctx, job, args, job.AttemptCount+1, channel.KindStructural, err)
	}

	creds, err := w.vault.DecryptPortalCredentials(ctx, portal)
	if err != nil {
		var integrity *vault.IntegrityError
		if errors.As(err, &integrity) {
			// Quarantine the portal; every later trigger is rejected until
			// credentials are re-entered.
			if disableErr := w.repo.SetPortalDisabled(ctx, portal.ID, true); disableErr != nil {
				w.logger.Error(disableErr)
			}
		}
		return w.failJob(ctx, job, args, job.AttemptCount+1, channel.KindAuth, err)
	}

	adapter, err := w.resolve(portal)
	if err != nil {
		return w.failJob(ctx, job, args, job.AttemptCount+1, channel.Classify(err), err)
	}

	callCtx, cancel := context.WithTimeout(ctx, channel.CallTimeout)
	defer cancel()
	outcome, err := adapter.Submit(callCtx, creds, payload)
	if err != nil {
		return w.handleSubmitFailure(ctx, job, args, err)
	}

	return w.completeJob(ctx, job, args, payload, outcome)
}

func (w *Worker) completeJob(ctx context.Context, job *models.SubmissionJob, args models.JobEnqueueArgs,
	payload *formatter.Payload, outcome *channel.Outcome) error {

	attempt := job.AttemptCount + 1
	err := w.repo.UpdateJobOutcome(ctx, job.ID, models.JobStatusSucceeded, attempt, "", outcome.ConfirmationNumber)
	if err != nil {
		return errors.Wrap(err, "could not persist job success")
	}
	w.auditTransition(ctx, job, args.TransactionID, string(models.JobStatusProcessing), string(models.JobStatusSucceeded))

	if _, err := w.saver.Save(ctx, job.EmployerID, job.StateCode, payload.Filename, payload.Bytes); err != nil {
		// The submission already happened; losing the archive copy is an
		// operational problem, not a job failure.
		w.logger.Error(errors.Wrap(err, "could not archive payload"))
	}

	w.notifier.SubmissionSucceeded(ctx, notification.SuccessEvent{
		EmployerName:       job.EmployerName,
		StateCode:          job.StateCode,
		RecordCount:        payload.RecordCount,
		ConfirmationNumber: outcome.ConfirmationNumber,
		SubmittedAt:        w.now(),
	})
	return nil
}

func (w *Worker) handleSubmitFailure(ctx context.Context, job *models.SubmissionJob, args models.JobEnqueueArgs, submitErr error) error {
	kind := channel.Classify(submitErr)
	attempt := job.AttemptCount + 1

	if kind.Retryable() && attempt < job.MaxAttempts {
		err := w.repo.UpdateJobOutcome(ctx, job.ID, models.JobStatusRetrying, attempt, submitErr.Error(), "")
		if err != nil {
			return errors.Wrap(err, "could not persist retry state")
		}
		w.auditTransition(ctx, job, args.TransactionID, string(models.JobStatusProcessing), string(models.JobStatusRetrying))

		runAt := w.now().Add(retryDelay(attempt))
		if err := w.requeuer.AddSubmissionJobAt(ctx, args, runAt); err != nil {
			return errors.Wrap(err, "could not re-enqueue retry")
		}
		w.logger.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"attempt": attempt,
			"run_at":  runAt,
		}).Warn("transient submission failure, retry scheduled")
		return nil
	}

	return w.failJob(ctx, job, args, attempt, kind, submitErr)
}

func (w *Worker) failJob(ctx context.Context, job *models.SubmissionJob, args models.JobEnqueueArgs,
	attempt int, kind channel.ErrorKind, cause error) error {

	err := w.repo.UpdateJobOutcome(ctx, job.ID, models.JobStatusFailed, attempt, cause.Error(), "")
	if err != nil {
		return errors.Wrap(err, "could not persist job failure")
	}
	w.auditTransition(ctx, job, args.TransactionID, string(models.JobStatusProcessing), string(models.JobStatusFailed))

	fatal := !kind.Retryable()
	event := notification.FailureEvent{
		EmployerName: job.EmployerName,
		StateCode:    job.StateCode,
		RecordCount:  job.RecordCount,
		ErrorMessage: cause.Error(),
		JobID:        job.ID,
		RetryCount:   attempt,
		Fatal:        fatal,
	}
	if fatal {
		event.FatalKind = kind.String()
	}
	w.notifier.SubmissionFailed(ctx, event)

	if kind == channel.KindAuth {
		w.logger.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"state_code": job.StateCode,
		}).Error("authentication failure; credential rotation needed")
	}
	return nil
}

func (w *Worker) auditTransition(ctx context.Context, job *models.SubmissionJob, transactionID, from, to string) {
	audit.JobTransition(ctx, w.repo, audit.Event{
		Op:         "ProcessSubmission",
		JobID:      job.ID,
		EmployerID: job.EmployerID,
		StateCode:  job.StateCode,
		TrackingID: transactionID,
	}, from, to)
}

// retryDelay is base * 2^(attempt-1). The backoff is configured without
// jitter so the schedule is predictable for operators reading job rows.
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Minute

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
