package service

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wotcworks/wotc-app/wotc/channel"
	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) AddSubmissionJob(ctx context.Context, args models.JobEnqueueArgs) error {
	called := m.Called(ctx, args)
	return called.Error(0)
}

func (m *mockEnqueuer) AddCaptureJob(ctx context.Context, args models.CaptureEnqueueArgs) error {
	called := m.Called(ctx, args)
	return called.Error(0)
}

func newTestService(repo repository.Repository, enqueuer Enqueuer) *Service {
	return &Service{
		repo:     repo,
		enqueuer: enqueuer,
		logger:   logrus.New(),
		resolve:  channel.Resolve,
	}
}

func enabledPortal(stateCode string) *models.StatePortalConfig {
	return &models.StatePortalConfig{ID: 1, StateCode: stateCode, ChannelType: models.ChannelSFTP}
}

func TestTriggerSubmission(t *testing.T) {
	repo := &repository.MockRepository{}
	enqueuer := &mockEnqueuer{}
	s := newTestService(repo, enqueuer)

	repo.On("GetPortalByState", mock.Anything, "TX").Return(enabledPortal("TX"), nil)
	repo.On("ActiveSubmissionJobExists", mock.Anything, int64(42), "TX").Return(false, nil)
	repo.On("GetCertifiedScreenings", mock.Anything, int64(42), "TX").
		Return(make([]models.ScreeningRecord, 5), nil)
	repo.On("CreateSubmissionJob", mock.Anything, mock.MatchedBy(func(job models.SubmissionJob) bool {
		return job.Status == models.JobStatusPending &&
			job.RecordCount == 5 &&
			job.MaxAttempts == DefaultMaxAttempts &&
			job.TransactionID != ""
	})).Return(int64(12), nil)
	enqueuer.On("AddSubmissionJob", mock.Anything, mock.MatchedBy(func(args models.JobEnqueueArgs) bool {
		return args.ID == 12 && args.EmployerID == 42 && args.StateCode == "TX"
	})).Return(nil)
	repo.On("RecordAuditEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	jobID, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
	require.NoError(t, err)
	assert.Equal(t, int64(12), jobID)

	repo.AssertExpectations(t)
	enqueuer.AssertExpectations(t)
}

func TestTriggerSubmissionWhileInProgress(t *testing.T) {
	repo := &repository.MockRepository{}
	enqueuer := &mockEnqueuer{}
	s := newTestService(repo, enqueuer)

	repo.On("GetPortalByState", mock.Anything, "TX").Return(enabledPortal("TX"), nil)
	repo.On("ActiveSubmissionJobExists", mock.Anything, int64(42), "TX").Return(true, nil)

	_, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	repo.AssertNotCalled(t, "CreateSubmissionJob", mock.Anything, mock.Anything)
	enqueuer.AssertNotCalled(t, "AddSubmissionJob", mock.Anything, mock.Anything)
}

func TestTriggerSubmissionInsertRaceMapsToInProgress(t *testing.T) {
	repo := &repository.MockRepository{}
	enqueuer := &mockEnqueuer{}
	s := newTestService(repo, enqueuer)

	repo.On("GetPortalByState", mock.Anything, "TX").Return(enabledPortal("TX"), nil)
	repo.On("ActiveSubmissionJobExists", mock.Anything, int64(42), "TX").Return(false, nil)
	repo.On("GetCertifiedScreenings", mock.Anything, int64(42), "TX").
		Return(make([]models.ScreeningRecord, 2), nil)
	repo.On("CreateSubmissionJob", mock.Anything, mock.Anything).
		Return(int64(0), repository.ErrDuplicateActiveJob)

	_, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	enqueuer.AssertNotCalled(t, "AddSubmissionJob", mock.Anything, mock.Anything)
}

func TestTriggerSubmissionConcurrentTriggers(t *testing.T) {
	repo := &repository.MockRepository{}
	enqueuer := &mockEnqueuer{}
	s := newTestService(repo, enqueuer)

	// Both triggers pass the existence check; the unique index lets only one
	// insert through, surfaced by the repository as ErrDuplicateActiveJob.
	repo.On("GetPortalByState", mock.Anything, "TX").Return(enabledPortal("TX"), nil)
	repo.On("ActiveSubmissionJobExists", mock.Anything, int64(42), "TX").Return(false, nil)
	repo.On("GetCertifiedScreenings", mock.Anything, int64(42), "TX").
		Return(make([]models.ScreeningRecord, 2), nil)
	repo.On("CreateSubmissionJob", mock.Anything, mock.Anything).Return(int64(12), nil).Once()
	repo.On("CreateSubmissionJob", mock.Anything, mock.Anything).
		Return(int64(0), repository.ErrDuplicateActiveJob)
	repo.On("RecordAuditEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	enqueuer.On("AddSubmissionJob", mock.Anything, mock.Anything).Return(nil)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var created, rejected int
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrSubmissionInProgress):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, rejected)
	enqueuer.AssertNumberOfCalls(t, "AddSubmissionJob", 1)
}

func TestTriggerSubmissionDisabledPortal(t *testing.T) {
	repo := &repository.MockRepository{}
	s := newTestService(repo, &mockEnqueuer{})

	portal := enabledPortal("TX")
	portal.Disabled = true
	repo.On("GetPortalByState", mock.Anything, "TX").Return(portal, nil)

	_, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
	assert.ErrorIs(t, err, ErrPortalDisabled)
}

func TestTriggerSubmissionNothingToSubmit(t *testing.T) {
	repo := &repository.MockRepository{}
	s := newTestService(repo, &mockEnqueuer{})

	repo.On("GetPortalByState", mock.Anything, "TX").Return(enabledPortal("TX"), nil)
	repo.On("ActiveSubmissionJobExists", mock.Anything, int64(42), "TX").Return(false, nil)
	repo.On("GetCertifiedScreenings", mock.Anything, int64(42), "TX").
		Return([]models.ScreeningRecord{}, nil)

	_, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
	assert.ErrorIs(t, err, ErrNothingToSubmit)
}

func TestTriggerSubmissionEnqueueFailureFailsJob(t *testing.T) {
	repo := &repository.MockRepository{}
	enqueuer := &mockEnqueuer{}
	s := newTestService(repo, enqueuer)

	repo.On("GetPortalByState", mock.Anything, "TX").Return(enabledPortal("TX"), nil)
	repo.On("ActiveSubmissionJobExists", mock.Anything, int64(42), "TX").Return(false, nil)
	repo.On("GetCertifiedScreenings", mock.Anything, int64(42), "TX").
		Return(make([]models.ScreeningRecord, 1), nil)
	repo.On("CreateSubmissionJob", mock.Anything, mock.Anything).Return(int64(12), nil)
	enqueuer.On("AddSubmissionJob", mock.Anything, mock.Anything).Return(errors.New("queue unavailable"))
	repo.On("UpdateJobStatus", mock.Anything, int64(12), models.JobStatusFailed).Return(nil)

	_, err := s.TriggerSubmission(context.Background(), 42, "Acme Staffing", "TX")
	require.Error(t, err)
	repo.AssertCalled(t, "UpdateJobStatus", mock.Anything, int64(12), models.JobStatusFailed)
}

func TestTriggerCapture(t *testing.T) {
	repo := &repository.MockRepository{}
	enqueuer := &mockEnqueuer{}
	s := newTestService(repo, enqueuer)

	repo.On("GetPortalByState", mock.Anything, "NY").Return(enabledPortal("NY"), nil)
	enqueuer.On("AddCaptureJob", mock.Anything, mock.MatchedBy(func(args models.CaptureEnqueueArgs) bool {
		return args.StateCode == "NY" && args.TransactionID != ""
	})).Return(nil)

	require.NoError(t, s.TriggerCapture(context.Background(), "NY"))
	enqueuer.AssertExpectations(t)
}

// fakeAdapter lets TestCredentials run without a live channel.
type fakeAdapter struct {
	testErr error
}

func (a *fakeAdapter) Submit(ctx context.Context, creds vault.Credentials, payload *formatter.Payload) (*channel.Outcome, error) {
	return nil, errors.New("not implemented")
}

func (a *fakeAdapter) TestCredentials(ctx context.Context, creds vault.Credentials) error {
	return a.testErr
}

func (a *fakeAdapter) CaptureDeterminations(ctx context.Context, creds vault.Credentials) ([]channel.CapturedDetermination, error) {
	return nil, errors.New("not implemented")
}

func TestTestCredentials(t *testing.T) {
	repo := &repository.MockRepository{}
	repo.On("RecordAuditEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	key := &[32]byte{1, 2, 3}
	v := vault.New(nil, repo, key)

	encUser, err := v.Encrypt("agency-user")
	require.NoError(t, err)
	encPass, err := v.Encrypt("agency-pass")
	require.NoError(t, err)

	portal := &models.StatePortalConfig{
		ID:                7,
		StateCode:         "TX",
		ChannelType:       models.ChannelSFTP,
		EncryptedUsername: encUser,
		EncryptedPassword: encPass,
		MFAType:           models.MFATypeNone,
	}
	repo.On("GetPortalByID", mock.Anything, int64(7)).Return(portal, nil)

	adapter := &fakeAdapter{}
	s := &Service{
		repo:   repo,
		vault:  v,
		logger: logrus.New(),
		resolve: func(p *models.StatePortalConfig) (channel.Adapter, error) {
			return adapter, nil
		},
	}

	require.NoError(t, s.TestCredentials(context.Background(), 7))

	adapter.testErr = errors.New("login rejected")
	assert.Error(t, s.TestCredentials(context.Background(), 7))
}

func TestGetJobStatus(t *testing.T) {
	repo := &repository.MockRepository{}
	s := newTestService(repo, &mockEnqueuer{})

	job := &models.SubmissionJob{ID: 12, Status: models.JobStatusSucceeded, Confirmation: "TX-CONF-001"}
	repo.On("GetSubmissionJobByID", mock.Anything, int64(12)).Return(job, nil)

	got, err := s.GetJobStatus(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "TX-CONF-001", got.Confirmation)
}
