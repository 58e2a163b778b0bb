// Package service exposes the operations the admin surface drives:
// triggering submissions and captures, testing credentials, and reading job
// status. It owns the synchronous validation that happens before anything
// is queued.
package service

import (
	"context"
	"errors"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/log"
	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/channel"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

var (
	// ErrSubmissionInProgress is returned when a trigger arrives while a
	// non-terminal job already exists for the same (employer, state) pair.
	// Callers must surface it, not queue behind it.
	ErrSubmissionInProgress = errors.New("a submission for this employer and state is already in progress")

	// ErrNothingToSubmit is returned when the employer has no certified
	// screenings in the state.
	ErrNothingToSubmit = errors.New("no certified screenings to submit")

	// ErrPortalDisabled is returned for portals quarantined by a vault
	// integrity failure.
	ErrPortalDisabled = errors.New("portal is disabled pending credential re-entry")
)

// DefaultMaxAttempts bounds the transient retry loop per job.
const DefaultMaxAttempts = 3

// Enqueuer only handles inserting job entries into the queue table. It is
// an interface so the que client can be mocked for testing.
type Enqueuer interface {
	AddSubmissionJob(ctx context.Context, args models.JobEnqueueArgs) error
	AddCaptureJob(ctx context.Context, args models.CaptureEnqueueArgs) error
}

type Service struct {
	repo     repository.Repository
	vault    *vault.Vault
	enqueuer Enqueuer
	logger   logrus.FieldLogger

	// resolve is swappable for tests; the default maps a portal to its
	// live channel adapter.
	resolve func(*models.StatePortalConfig) (channel.Adapter, error)
}

func New(repo repository.Repository, v *vault.Vault, enqueuer Enqueuer) *Service {
	return &Service{
		repo:     repo,
		vault:    v,
		enqueuer: enqueuer,
		logger:   log.Orchestrator,
		resolve:  channel.Resolve,
	}
}

// TriggerSubmission validates, creates the pending job row, enqueues it,
// and returns the job ID. The actual transmission happens on the worker.
func (s *Service) TriggerSubmission(ctx context.Context, employerID int64, employerName, stateCode string) (int64, error) {
	portal, err := s.repo.GetPortalByState(ctx, stateCode)
	if err != nil {
		return 0, err
	}
	if portal.Disabled {
		return 0, ErrPortalDisabled
	}

	active, err := s.repo.ActiveSubmissionJobExists(ctx, employerID, stateCode)
	if err != nil {
		return 0, err
	}
	if active {
		return 0, ErrSubmissionInProgress
	}

	screenings, err := s.repo.GetCertifiedScreenings(ctx, employerID, stateCode)
	if err != nil {
		return 0, err
	}
	if len(screenings) == 0 {
		return 0, ErrNothingToSubmit
	}

	transactionID := uuid.NewRandom().String()
	jobID, err := s.repo.CreateSubmissionJob(ctx, models.SubmissionJob{
		EmployerID:    employerID,
		EmployerName:  employerName,
		StateCode:     stateCode,
		Status:        models.JobStatusPending,
		RecordCount:   len(screenings),
		MaxAttempts:   DefaultMaxAttempts,
		TransactionID: transactionID,
	})
	if errors.Is(err, repository.ErrDuplicateActiveJob) {
		// A concurrent trigger for the same pair won the insert race after
		// our existence check; the database's partial unique index is the
		// authoritative guard.
		return 0, ErrSubmissionInProgress
	} else if err != nil {
		return 0, err
	}

	err = s.enqueuer.AddSubmissionJob(ctx, models.JobEnqueueArgs{
		ID:            jobID,
		EmployerID:    employerID,
		StateCode:     stateCode,
		TransactionID: transactionID,
	})
	if err != nil {
		// The pending row stays behind as evidence; without a queue entry
		// it can never start, so fail it in place.
		if updateErr := s.repo.UpdateJobStatus(ctx, jobID, models.JobStatusFailed); updateErr != nil {
			s.logger.Error(updateErr)
		}
		return 0, err
	}

	audit.JobTransition(ctx, s.repo, audit.Event{
		Op:         "TriggerSubmission",
		JobID:      jobID,
		EmployerID: employerID,
		StateCode:  stateCode,
		TrackingID: transactionID,
	}, "", string(models.JobStatusPending))

	return jobID, nil
}

// TriggerCapture enqueues a determination capture run for a state.
func (s *Service) TriggerCapture(ctx context.Context, stateCode string) error {
	portal, err := s.repo.GetPortalByState(ctx, stateCode)
	if err != nil {
		return err
	}
	if portal.Disabled {
		return ErrPortalDisabled
	}

	return s.enqueuer.AddCaptureJob(ctx, models.CaptureEnqueueArgs{
		StateCode:     stateCode,
		TransactionID: uuid.NewRandom().String(),
	})
}

// TestCredentials decrypts a portal's stored credentials and performs the
// adapter's login-only round trip. Nothing is transmitted.
func (s *Service) TestCredentials(ctx context.Context, portalID int64) error {
	portal, err := s.repo.GetPortalByID(ctx, portalID)
	if err != nil {
		return err
	}

	creds, err := s.vault.DecryptPortalCredentials(ctx, portal)
	if err != nil {
		return err
	}

	adapter, err := s.resolve(portal)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, channel.CallTimeout)
	defer cancel()
	return adapter.TestCredentials(callCtx, creds)
}

// GetJobStatus returns the job row for display.
func (s *Service) GetJobStatus(ctx context.Context, jobID int64) (*models.SubmissionJob, error) {
	return s.repo.GetSubmissionJobByID(ctx, jobID)
}
