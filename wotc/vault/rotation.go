package vault

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wotcworks/wotc-app/log"
	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository/postgres"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6

	// Portals within this window of NextRotationDue report "due-soon".
	dueSoonWindow = 7 * 24 * time.Hour
)

// NewCredentials is the replacement material supplied to Rotate.
type NewCredentials struct {
	Username         string
	Password         string
	MFASecret        string
	MFAType          models.MFAType
	ChallengeAnswers map[string]string
}

type RotationResult struct {
	PortalID        int64
	NextRotationDue time.Time
	HistoryEntry    models.CredentialRotationHistoryEntry
}

type RotationDueItem struct {
	PortalID    int64  `json:"portal_id"`
	StateCode   string `json:"state_code"`
	Name        string `json:"name"`
	DaysOverdue int    `json:"days_overdue"`
	Status      string `json:"status"` // "overdue" or "due-soon"
}

// Rotate stores re-encrypted portal credentials, appends the immutable
// history entry, and recomputes the rotation schedule in one transaction.
// Rotations on the same portal are serialized.
func (v *Vault) Rotate(ctx context.Context, portalID int64, newCreds NewCredentials,
	actor, reason string, rotationType models.RotationType) (*RotationResult, error) {

	if err := validateCredentials(newCreds); err != nil {
		return nil, err
	}

	lock := v.portalLock(portalID)
	lock.Lock()
	defer lock.Unlock()

	portal, err := v.repo.GetPortalByID(ctx, portalID)
	if err != nil {
		return nil, err
	}

	oldHash, err := v.hashExisting(portal)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(newCreds.Username)
	password := strings.TrimSpace(newCreds.Password)

	updated := *portal
	if updated.EncryptedUsername, err = v.Encrypt(username); err != nil {
		return nil, err
	}
	if updated.EncryptedPassword, err = v.Encrypt(password); err != nil {
		return nil, err
	}

	mfaChanged := false
	if newCreds.MFASecret != "" || newCreds.MFAType != "" {
		mfaChanged = true
		updated.MFAType = newCreds.MFAType
		if newCreds.MFASecret != "" {
			if updated.EncryptedMFASecret, err = v.Encrypt(newCreds.MFASecret); err != nil {
				return nil, err
			}
		} else {
			updated.EncryptedMFASecret = ""
		}
	}
	if newCreds.ChallengeAnswers != nil {
		if updated.EncryptedChallengeAnswers, err = v.encryptChallengeAnswers(newCreds.ChallengeAnswers); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	nextDue := now.AddDate(0, 0, portal.RotationFrequencyDays)
	updated.LastRotatedAt = &now
	updated.NextRotationDue = &nextDue
	updated.RotationReminderSent = false

	entry := models.CredentialRotationHistoryEntry{
		PortalID:          portalID,
		Actor:             actor,
		RotationType:      rotationType,
		Reason:            reason,
		OldCredentialHash: oldHash,
		NewCredentialHash: HashMaterial(username, password),
		MFAChanged:        mfaChanged,
		CreatedAt:         now,
	}

	// New credentials, new schedule, and the history entry commit as one
	// unit or not at all.
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not begin rotation transaction")
	}

	txRepo := postgres.NewRepositoryTx(tx)
	if err := txRepo.UpdatePortalCredentials(ctx, updated); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, "could not store rotated credentials")
	}
	if err := txRepo.CreateRotationHistoryEntry(ctx, entry); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, "could not append rotation history")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "could not commit rotation")
	}

	audit.CredentialRotated(ctx, v.repo, audit.Event{
		PortalID:  portalID,
		StateCode: portal.StateCode,
		Actor:     actor,
		Help:      string(rotationType) + " rotation: " + reason,
	})
	log.Vault.WithField("portal_id", portalID).Info("credentials rotated")

	return &RotationResult{
		PortalID:        portalID,
		NextRotationDue: nextDue,
		HistoryEntry:    entry,
	}, nil
}

// SetRotationSchedule updates a portal's rotation frequency and recomputes
// the next due date from the last rotation (or now, if never rotated).
func (v *Vault) SetRotationSchedule(ctx context.Context, portalID int64, frequencyDays int) (time.Time, error) {
	if frequencyDays < 1 {
		return time.Time{}, &ValidationError{Field: "rotation frequency", Reason: "must be at least 1 day"}
	}

	portal, err := v.repo.GetPortalByID(ctx, portalID)
	if err != nil {
		return time.Time{}, err
	}

	base := time.Now()
	if portal.LastRotatedAt != nil {
		base = *portal.LastRotatedAt
	}
	nextDue := base.AddDate(0, 0, frequencyDays)

	if err := v.repo.UpdatePortalRotationSchedule(ctx, portalID, frequencyDays, nextDue); err != nil {
		return time.Time{}, err
	}

	return nextDue, nil
}

// RotationDue lists portals past or approaching their rotation deadline.
func (v *Vault) RotationDue(ctx context.Context) ([]RotationDueItem, error) {
	now := time.Now()
	portals, err := v.repo.GetRotationDuePortals(ctx, now, dueSoonWindow)
	if err != nil {
		return nil, err
	}

	items := make([]RotationDueItem, 0, len(portals))
	for _, p := range portals {
		if p.NextRotationDue == nil {
			continue
		}
		item := RotationDueItem{
			PortalID:  p.ID,
			StateCode: p.StateCode,
			Name:      p.Name,
		}
		if p.NextRotationDue.Before(now) {
			item.Status = "overdue"
			item.DaysOverdue = int(now.Sub(*p.NextRotationDue).Hours() / 24)
		} else {
			item.Status = "due-soon"
		}
		items = append(items, item)
	}

	return items, nil
}

func validateCredentials(c NewCredentials) error {
	if len(strings.TrimSpace(c.Username)) < minUsernameLen {
		return &ValidationError{Field: "username", Reason: "must be at least 3 characters"}
	}
	if len(strings.TrimSpace(c.Password)) < minPasswordLen {
		return &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	return nil
}

// hashExisting hashes the portal's current material for the history entry.
// Old material may be undecryptable when a rotation is repairing an
// integrity failure; in that case the ciphertext itself is hashed so the
// entry still records what was replaced.
func (v *Vault) hashExisting(portal *models.StatePortalConfig) (string, error) {
	username, uerr := v.Decrypt(portal.EncryptedUsername)
	password, perr := v.Decrypt(portal.EncryptedPassword)
	if uerr != nil || perr != nil {
		return HashMaterial(portal.EncryptedUsername, portal.EncryptedPassword), nil
	}
	return HashMaterial(username, password), nil
}

func (v *Vault) encryptChallengeAnswers(answers map[string]string) (string, error) {
	encrypted := make(map[string]string, len(answers))
	for question, answer := range answers {
		enc, err := v.Encrypt(answer)
		if err != nil {
			return "", err
		}
		encrypted[question] = enc
	}
	return marshalChallenge(encrypted)
}

func (v *Vault) portalLock(portalID int64) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()

	lock, ok := v.rotationLocks[portalID]
	if !ok {
		lock = &sync.Mutex{}
		v.rotationLocks[portalID] = lock
	}
	return lock
}
