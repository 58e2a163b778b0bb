package notification

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

const (
	colorGood   = "good"
	colorDanger = "danger"
)

// slackPoster is the slice of *slack.Client the alerter uses.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier raises admin alerts. Successes go to the operations
// channel, failures to the alerts channel. Alert delivery is best effort
// and never blocks the job outcome, so failures only log.
type SlackNotifier struct {
	client      slackPoster
	operations  string
	alerts      string
	environment string
	logger      logrus.FieldLogger
}

func NewSlackNotifier(token, operationsChannel, alertsChannel, environment string, logger logrus.FieldLogger) *SlackNotifier {
	return &SlackNotifier{
		client:      slack.New(token),
		operations:  operationsChannel,
		alerts:      alertsChannel,
		environment: environment,
		logger:      logger,
	}
}

func (n *SlackNotifier) SubmissionSucceeded(ctx context.Context, event SuccessEvent) {
	msg := fmt.Sprintf("SUCCESS: WOTC submission for %s to %s (%d records, confirmation %s) in %s env.",
		event.EmployerName, event.StateCode, event.RecordCount, event.ConfirmationNumber, n.environment)
	n.post(ctx, n.operations, msg, colorGood)
}

func (n *SlackNotifier) SubmissionFailed(ctx context.Context, event FailureEvent) {
	var msg string
	if event.Fatal {
		msg = fmt.Sprintf("FAILURE: WOTC submission job %d for %s to %s failed (%s) in %s env: %s",
			event.JobID, event.EmployerName, event.StateCode, event.FatalKind, n.environment, event.ErrorMessage)
	} else {
		msg = fmt.Sprintf("FAILURE: WOTC submission job %d for %s to %s exhausted %d attempts in %s env: %s",
			event.JobID, event.EmployerName, event.StateCode, event.RetryCount, n.environment, event.ErrorMessage)
	}
	n.post(ctx, n.alerts, msg, colorDanger)
}

func (n *SlackNotifier) post(ctx context.Context, channel, msg, color string) {
	a := slack.Attachment{
		Color: color,
		Text:  msg,
	}
	if _, _, err := n.client.PostMessageContext(ctx, channel, slack.MsgOptionAttachments(a)); err != nil {
		n.logger.Errorf("Failed to send slack message: %+v", err)
	}
}
