// Package notification emits structured submission outcome events. Employer
// facing email rendering belongs to the downstream notification
// collaborator; this package only produces the payloads and pushes admin
// alerts.
package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SuccessEvent is emitted once per successfully transmitted batch.
type SuccessEvent struct {
	EmployerName       string    `json:"employer_name"`
	StateCode          string    `json:"state_code"`
	RecordCount        int       `json:"record_count"`
	ConfirmationNumber string    `json:"confirmation_number"`
	SubmittedAt        time.Time `json:"submitted_at"`
}

// FailureEvent is emitted when a job reaches the failed state. Fatal marks
// failures that never entered the retry loop; FatalKind carries the channel
// error classification for those.
type FailureEvent struct {
	EmployerName string `json:"employer_name"`
	StateCode    string `json:"state_code"`
	RecordCount  int    `json:"record_count"`
	ErrorMessage string `json:"error_message"`
	JobID        int64  `json:"job_id"`
	RetryCount   int    `json:"retry_count"`
	Fatal        bool   `json:"fatal"`
	FatalKind    string `json:"fatal_kind,omitempty"`
}

// Notifier consumes submission outcomes.
type Notifier interface {
	SubmissionSucceeded(ctx context.Context, event SuccessEvent)
	SubmissionFailed(ctx context.Context, event FailureEvent)
}

// LogNotifier writes events to a structured logger; the downstream
// collaborator tails that stream.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func (n *LogNotifier) SubmissionSucceeded(ctx context.Context, event SuccessEvent) {
	n.Logger.WithFields(logrus.Fields{
		"employer_name":       event.EmployerName,
		"state_code":          event.StateCode,
		"record_count":        event.RecordCount,
		"confirmation_number": event.ConfirmationNumber,
		"submitted_at":        event.SubmittedAt.Format(time.RFC3339),
	}).Info("submission succeeded")
}

func (n *LogNotifier) SubmissionFailed(ctx context.Context, event FailureEvent) {
	n.Logger.WithFields(logrus.Fields{
		"employer_name": event.EmployerName,
		"state_code":    event.StateCode,
		"record_count":  event.RecordCount,
		"job_id":        event.JobID,
		"retry_count":   event.RetryCount,
		"fatal":         event.Fatal,
		"fatal_kind":    event.FatalKind,
		"error":         event.ErrorMessage,
	}).Error("submission failed")
}

// FakeNotifier records events in memory for tests.
type FakeNotifier struct {
	Successes []SuccessEvent
	Failures  []FailureEvent
}

func (n *FakeNotifier) SubmissionSucceeded(ctx context.Context, event SuccessEvent) {
	n.Successes = append(n.Successes, event)
}

func (n *FakeNotifier) SubmissionFailed(ctx context.Context, event FailureEvent) {
	n.Failures = append(n.Failures, event)
}
