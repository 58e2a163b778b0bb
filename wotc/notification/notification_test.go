package notification

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifierSuccess(t *testing.T) {
	logger, hook := logrusTest.NewNullLogger()
	notifier := &LogNotifier{Logger: logger}

	notifier.SubmissionSucceeded(context.Background(), SuccessEvent{
		EmployerName:       "Acme Staffing",
		StateCode:          "TX",
		RecordCount:        5,
		ConfirmationNumber: "TX-CONF-001",
		SubmittedAt:        time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC),
	})

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "TX-CONF-001", entry.Data["confirmation_number"])
	assert.Equal(t, 5, entry.Data["record_count"])
}

func TestLogNotifierFailure(t *testing.T) {
	logger, hook := logrusTest.NewNullLogger()
	notifier := &LogNotifier{Logger: logger}

	notifier.SubmissionFailed(context.Background(), FailureEvent{
		EmployerName: "Acme Staffing",
		StateCode:    "TX",
		JobID:        12,
		RetryCount:   3,
		ErrorMessage: "context deadline exceeded",
	})

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, int64(12), entry.Data["job_id"])
	assert.Equal(t, 3, entry.Data["retry_count"])
}

type fakePoster struct {
	channels []string
	err      error
}

func (p *fakePoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	p.channels = append(p.channels, channelID)
	return "", "", p.err
}

func TestSlackNotifierRoutesByOutcome(t *testing.T) {
	poster := &fakePoster{}
	logger, _ := logrusTest.NewNullLogger()
	notifier := &SlackNotifier{
		client:      poster,
		operations:  "ops-channel",
		alerts:      "alerts-channel",
		environment: "test",
		logger:      logger,
	}

	notifier.SubmissionSucceeded(context.Background(), SuccessEvent{StateCode: "TX"})
	notifier.SubmissionFailed(context.Background(), FailureEvent{StateCode: "TX", Fatal: true, FatalKind: "authentication"})

	assert.Equal(t, []string{"ops-channel", "alerts-channel"}, poster.channels)
}

func TestSlackNotifierDeliveryFailureOnlyLogs(t *testing.T) {
	poster := &fakePoster{err: assert.AnError}
	logger, hook := logrusTest.NewNullLogger()
	notifier := &SlackNotifier{client: poster, alerts: "alerts", logger: logger}

	notifier.SubmissionFailed(context.Background(), FailureEvent{JobID: 3})

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
