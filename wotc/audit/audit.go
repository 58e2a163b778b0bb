// Package audit records every credential access, credential rotation, and
// submission job state transition as an append-only stream: structured JSON
// log lines plus rows in the insert-only audit_events table.
package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/log"
)

type Event struct {
	Op         string
	PortalID   int64
	JobID      int64
	EmployerID int64
	StateCode  string
	Actor      string
	Help       string
	TrackingID string
	Elapsed    time.Duration
}

// Store persists audit events. Implementations must be insert-only; there is
// deliberately no update or delete operation.
type Store interface {
	RecordAuditEvent(ctx context.Context, event Event, outcome string) error
}

func mergeNonEmpty(data Event) *logrus.Entry {
	entry := log.Audit.WithField("op", data.Op)

	if data.PortalID != 0 {
		entry = entry.WithField("portalID", data.PortalID)
	}
	if data.JobID != 0 {
		entry = entry.WithField("jobID", data.JobID)
	}
	if data.EmployerID != 0 {
		entry = entry.WithField("employerID", data.EmployerID)
	}
	if data.StateCode != "" {
		entry = entry.WithField("stateCode", data.StateCode)
	}
	if data.Actor != "" {
		entry = entry.WithField("actor", data.Actor)
	}
	if data.TrackingID != "" {
		entry = entry.WithField("trackingID", data.TrackingID)
	}
	if data.Elapsed != 0 {
		entry = entry.WithField("elapsed", data.Elapsed)
	}

	return entry
}

// The following functions should be passed an Event with at least Op and
// TrackingID set, and general messages in the Help field. Successive logs for
// the same event should reuse the same randomly generated TrackingID.

// OperationStarted should be called at the beginning of all logged events.
func OperationStarted(data Event) {
	mergeNonEmpty(data).WithField("event", "OperationStarted").Print(data.Help)
}

// OperationSucceeded should be called after an event's success, and should
// always be preceded by a call to OperationStarted.
func OperationSucceeded(data Event) {
	mergeNonEmpty(data).WithField("event", "OperationSucceeded").Print(data.Help)
}

// OperationFailed should be called after an event's failure, and should
// always be preceded by a call to OperationStarted.
func OperationFailed(data Event) {
	mergeNonEmpty(data).WithField("event", "OperationFailed").Print(data.Help)
}

// CredentialAccessed records a vault decrypt performed on behalf of a channel
// call. Decrypted material itself must never reach this package.
func CredentialAccessed(ctx context.Context, store Store, data Event) {
	data.Op = "CredentialAccessed"
	mergeNonEmpty(data).WithField("event", data.Op).Print(data.Help)
	persist(ctx, store, data, "ok")
}

// JobTransition records a submission job state change.
func JobTransition(ctx context.Context, store Store, data Event, from, to string) {
	data.Op = "JobTransition"
	mergeNonEmpty(data).
		WithField("event", data.Op).
		WithField("from", from).
		WithField("to", to).
		Print(data.Help)
	persist(ctx, store, data, to)
}

// CredentialRotated records a completed rotation. The paired history entry
// carries the credential hashes; this event carries only identifiers.
func CredentialRotated(ctx context.Context, store Store, data Event) {
	data.Op = "CredentialRotated"
	mergeNonEmpty(data).WithField("event", data.Op).Print(data.Help)
	persist(ctx, store, data, "ok")
}

func persist(ctx context.Context, store Store, data Event, outcome string) {
	if store == nil {
		return
	}
	if err := store.RecordAuditEvent(ctx, data, outcome); err != nil {
		// The log line above already happened; losing the row is not a
		// reason to fail the operation being audited.
		log.Audit.WithField("op", data.Op).Errorf("failed to persist audit event: %s", err)
	}
}
