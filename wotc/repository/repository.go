// Package repository contains all of the methods needed to interact with
// the WOTC submission data.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/models"
)

type Repository interface {
	portalRepository
	rotationHistoryRepository
	submissionJobRepository
	screeningRepository
	determinationRepository
	audit.Store
}

type portalRepository interface {
	GetPortalByID(ctx context.Context, portalID int64) (*models.StatePortalConfig, error)
	GetPortalByState(ctx context.Context, stateCode string) (*models.StatePortalConfig, error)

	// UpdatePortalCredentials overwrites the encrypted credential fields,
	// rotation schedule, and reminder marker. It never touches plaintext.
	UpdatePortalCredentials(ctx context.Context, portal models.StatePortalConfig) error

	UpdatePortalRotationSchedule(ctx context.Context, portalID int64, frequencyDays int, nextDue time.Time) error

	SetPortalDisabled(ctx context.Context, portalID int64, disabled bool) error

	// GetRotationDuePortals returns portals whose NextRotationDue falls
	// before asOf plus the due-soon window.
	GetRotationDuePortals(ctx context.Context, asOf time.Time, dueSoonWindow time.Duration) ([]models.StatePortalConfig, error)
}

type rotationHistoryRepository interface {
	CreateRotationHistoryEntry(ctx context.Context, entry models.CredentialRotationHistoryEntry) error
	GetRotationHistory(ctx context.Context, portalID int64) ([]models.CredentialRotationHistoryEntry, error)
}

type submissionJobRepository interface {
	// CreateSubmissionJob inserts the pending job row. The database holds a
	// partial unique index over non-terminal (employer, state) jobs; an
	// insert that loses that race returns ErrDuplicateActiveJob.
	CreateSubmissionJob(ctx context.Context, job models.SubmissionJob) (int64, error)

	GetSubmissionJobByID(ctx context.Context, jobID int64) (*models.SubmissionJob, error)

	// ActiveSubmissionJobExists reports whether a non-terminal job already
	// exists for the (employer, state) pair.
	ActiveSubmissionJobExists(ctx context.Context, employerID int64, stateCode string) (bool, error)

	UpdateJobStatus(ctx context.Context, jobID int64, new models.JobStatus) error

	// UpdateJobStatusCheckStatus updates the particular job indicated by
	// jobID iff the job's status field matches current.
	UpdateJobStatusCheckStatus(ctx context.Context, jobID int64, current, new models.JobStatus) error

	// UpdateJobOutcome persists attempt count, last error, and (on
	// success) the confirmation number alongside the status change.
	UpdateJobOutcome(ctx context.Context, jobID int64, status models.JobStatus, attemptCount int, lastError, confirmation string) error
}

type screeningRepository interface {
	// GetCertifiedScreenings returns the employer's screenings in the given
	// state that the eligibility collaborator marked certified, ordered by
	// screening ID so formatter output is stable.
	GetCertifiedScreenings(ctx context.Context, employerID int64, stateCode string) ([]models.ScreeningRecord, error)

	GetScreeningBySSNHash(ctx context.Context, stateCode, ssnHash string) (*models.ScreeningRecord, error)
}

type determinationRepository interface {
	GetDeterminationByScreeningID(ctx context.Context, screeningID int64) (*models.DeterminationRecord, error)
	CreateDeterminationRecord(ctx context.Context, record models.DeterminationRecord) error

	// UpdateDeterminationRecord upgrades a pending determination. Callers
	// must never use it against a terminal record.
	UpdateDeterminationRecord(ctx context.Context, record models.DeterminationRecord) error
}

var (
	ErrJobNotUpdated          = errors.New("job was not updated, no match found")
	ErrDuplicateActiveJob     = errors.New("an active job already exists for this employer and state")
	ErrJobNotFound            = errors.New("no job found for given id")
	ErrPortalNotFound         = errors.New("no portal config found")
	ErrScreeningNotFound      = errors.New("no screening found for given identifier")
	ErrDeterminationNotFound  = errors.New("no determination found for given screening")
	ErrPortalNotUpdated       = errors.New("portal config was not updated, no match found")
	ErrDeterminationNotUpdate = errors.New("determination was not updated, no match found")
)
