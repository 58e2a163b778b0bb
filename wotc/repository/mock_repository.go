package repository

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/models"
)

// MockRepository is a testify mock of Repository shared by vault, worker,
// and service tests.
type MockRepository struct {
	mock.Mock
}

var _ Repository = &MockRepository{}

func (m *MockRepository) GetPortalByID(ctx context.Context, portalID int64) (*models.StatePortalConfig, error) {
	args := m.Called(ctx, portalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatePortalConfig), args.Error(1)
}

func (m *MockRepository) GetPortalByState(ctx context.Context, stateCode string) (*models.StatePortalConfig, error) {
	args := m.Called(ctx, stateCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatePortalConfig), args.Error(1)
}

func (m *MockRepository) UpdatePortalCredentials(ctx context.Context, portal models.StatePortalConfig) error {
	args := m.Called(ctx, portal)
	return args.Error(0)
}

func (m *MockRepository) UpdatePortalRotationSchedule(ctx context.Context, portalID int64, frequencyDays int, nextDue time.Time) error {
	args := m.Called(ctx, portalID, frequencyDays, nextDue)
	return args.Error(0)
}

func (m *MockRepository) SetPortalDisabled(ctx context.Context, portalID int64, disabled bool) error {
	args := m.Called(ctx, portalID, disabled)
	return args.Error(0)
}

func (m *MockRepository) GetRotationDuePortals(ctx context.Context, asOf time.Time, dueSoonWindow time.Duration) ([]models.StatePortalConfig, error) {
	args := m.Called(ctx, asOf, dueSoonWindow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StatePortalConfig), args.Error(1)
}

func (m *MockRepository) CreateRotationHistoryEntry(ctx context.Context, entry models.CredentialRotationHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) GetRotationHistory(ctx context.Context, portalID int64) ([]models.CredentialRotationHistoryEntry, error) {
	args := m.Called(ctx, portalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CredentialRotationHistoryEntry), args.Error(1)
}

func (m *MockRepository) CreateSubmissionJob(ctx context.Context, job models.SubmissionJob) (int64, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetSubmissionJobByID(ctx context.Context, jobID int64) (*models.SubmissionJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubmissionJob), args.Error(1)
}

func (m *MockRepository) ActiveSubmissionJobExists(ctx context.Context, employerID int64, stateCode string) (bool, error) {
	args := m.Called(ctx, employerID, stateCode)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdateJobStatus(ctx context.Context, jobID int64, new models.JobStatus) error {
	args := m.Called(ctx, jobID, new)
	return args.Error(0)
}

func (m *MockRepository) UpdateJobStatusCheckStatus(ctx context.Context, jobID int64, current, new models.JobStatus) error {
	args := m.Called(ctx, jobID, current, new)
	return args.Error(0)
}

func (m *MockRepository) UpdateJobOutcome(ctx context.Context, jobID int64, status models.JobStatus, attemptCount int, lastError, confirmation string) error {
	args := m.Called(ctx, jobID, status, attemptCount, lastError, confirmation)
	return args.Error(0)
}

func (m *MockRepository) GetCertifiedScreenings(ctx context.Context, employerID int64, stateCode string) ([]models.ScreeningRecord, error) {
	args := m.Called(ctx, employerID, stateCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ScreeningRecord), args.Error(1)
}

func (m *MockRepository) GetScreeningBySSNHash(ctx context.Context, stateCode, ssnHash string) (*models.ScreeningRecord, error) {
	args := m.Called(ctx, stateCode, ssnHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScreeningRecord), args.Error(1)
}

func (m *MockRepository) GetDeterminationByScreeningID(ctx context.Context, screeningID int64) (*models.DeterminationRecord, error) {
	args := m.Called(ctx, screeningID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeterminationRecord), args.Error(1)
}

func (m *MockRepository) CreateDeterminationRecord(ctx context.Context, record models.DeterminationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) UpdateDeterminationRecord(ctx context.Context, record models.DeterminationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) RecordAuditEvent(ctx context.Context, event audit.Event, outcome string) error {
	args := m.Called(ctx, event, outcome)
	return args.Error(0)
}
