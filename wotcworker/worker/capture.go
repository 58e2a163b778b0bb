package worker

import (
	"context"
	goerrors "errors"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/channel"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

// ProcessCapture runs one determination capture pass against a state's
// channel. The pass is idempotent: re-running against an unchanged remote
// set writes nothing.
func (w *Worker) ProcessCapture(ctx context.Context, args models.CaptureEnqueueArgs) error {
	portal, err := w.repo.GetPortalByState(ctx, args.StateCode)
	if err != nil {
		return errors.Wrap(err, "could not load portal config")
	}
	if portal.Disabled {
		w.logger.Warnf("Skipping capture for disabled portal %d (%s).", portal.ID, portal.StateCode)
		return nil
	}

	creds, err := w.vault.DecryptPortalCredentials(ctx, portal)
	if err != nil {
		var integrity *vault.IntegrityError
		if errors.As(err, &integrity) {
			if disableErr := w.repo.SetPortalDisabled(ctx, portal.ID, true); disableErr != nil {
				w.logger.Error(disableErr)
			}
		}
		return err
	}

	adapter, err := w.resolve(portal)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, channel.CallTimeout)
	defer cancel()
	captured, err := adapter.CaptureDeterminations(callCtx, creds)
	if err != nil {
		return errors.Wrap(err, "capture call failed")
	}

	var created, upgraded, skipped int
	for _, det := range captured {
		outcome, err := w.reconcileDetermination(ctx, portal.StateCode, det)
		if err != nil {
			return err
		}
		switch outcome {
		case captureCreated:
			created++
		case captureUpgraded:
			upgraded++
		default:
			skipped++
		}
	}

	w.logger.WithFields(logrus.Fields{
		"state_code": portal.StateCode,
		"created":    created,
		"upgraded":   upgraded,
		"skipped":    skipped,
	}).Info("determination capture complete")

	audit.OperationSucceeded(audit.Event{
		Op:         "ProcessCapture",
		PortalID:   portal.ID,
		StateCode:  portal.StateCode,
		TrackingID: args.TransactionID,
	})
	return nil
}

type captureOutcome int

const (
	captureSkipped captureOutcome = iota
	captureCreated
	captureUpgraded
)

func (w *Worker) reconcileDetermination(ctx context.Context, stateCode string, det channel.CapturedDetermination) (captureOutcome, error) {
	ssnHash := vault.HashSSN(det.SSN)

	screening, err := w.repo.GetScreeningBySSNHash(ctx, stateCode, ssnHash)
	if goerrors.Is(err, repository.ErrScreeningNotFound) {
		// The agency can return decisions for employees screened elsewhere.
		w.logger.Warnf("No screening in %s matches a captured determination. Skipping.", stateCode)
		return captureSkipped, nil
	} else if err != nil {
		return captureSkipped, errors.Wrap(err, "could not look up screening")
	}

	record := models.DeterminationRecord{
		ScreeningID:         screening.ID,
		SSNLast4:            lastFour(det.SSN),
		SSNHash:             ssnHash,
		Status:              det.Status,
		CertificationNumber: det.CertificationNumber,
		CreditAmountCents:   det.CreditAmountCents,
		StateCode:           stateCode,
		CapturedAt:          w.now(),
	}

	existing, err := w.repo.GetDeterminationByScreeningID(ctx, screening.ID)
	if goerrors.Is(err, repository.ErrDeterminationNotFound) {
		if err := w.repo.CreateDeterminationRecord(ctx, record); err != nil {
			return captureSkipped, errors.Wrap(err, "could not create determination")
		}
		return captureCreated, nil
	} else if err != nil {
		return captureSkipped, errors.Wrap(err, "could not look up determination")
	}

	// Terminal records are immutable history; a pending record only moves
	// when the agency has decided.
	if existing.Status.Terminal() || !det.Status.Terminal() {
		return captureSkipped, nil
	}

	record.ID = existing.ID
	if err := w.repo.UpdateDeterminationRecord(ctx, record); err != nil {
		return captureSkipped, errors.Wrap(err, "could not upgrade determination")
	}
	return captureUpgraded, nil
}

func lastFour(ssn string) string {
	if len(ssn) < 4 {
		return ssn
	}
	return ssn[len(ssn)-4:]
}
