package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/database"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
)

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ repository.Repository = &Repository{}

type Repository struct {
	database.Queryable
	database.Executable
}

func NewRepository(db *sql.DB) *Repository {
	wrapped := &database.DB{DB: db}
	return &Repository{wrapped, wrapped}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	wrapped := &database.Tx{Tx: tx}
	return &Repository{wrapped, wrapped}
}

const portalColumns = "id, state_code, name, channel_type, portal_url, " +
	"encrypted_username, encrypted_password, encrypted_mfa_secret, mfa_type, " +
	"encrypted_challenge_answers, rotation_frequency_days, last_rotated_at, " +
	"next_rotation_due, rotation_reminder_sent, disabled, signature_requirement, " +
	"no_electronic_submittal, long_approval_duration, extra_config"

func (r *Repository) GetPortalByID(ctx context.Context, portalID int64) (*models.StatePortalConfig, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(portalColumns).From("state_portal_configs")
	sb.Where(sb.Equal("id", portalID))

	query, args := sb.Build()
	return scanPortal(r.QueryRowContext(ctx, query, args...))
}

func (r *Repository) GetPortalByState(ctx context.Context, stateCode string) (*models.StatePortalConfig, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(portalColumns).From("state_portal_configs")
	sb.Where(sb.Equal("state_code", stateCode))

	query, args := sb.Build()
	return scanPortal(r.QueryRowContext(ctx, query, args...))
}

func scanPortal(row database.Row) (*models.StatePortalConfig, error) {
	var (
		p                          models.StatePortalConfig
		lastRotated, nextDue       sql.NullTime
		mfaSecret, challenge       sql.NullString
		extraConfig                []byte
	)

	err := row.Scan(&p.ID, &p.StateCode, &p.Name, &p.ChannelType, &p.PortalURL,
		&p.EncryptedUsername, &p.EncryptedPassword, &mfaSecret, &p.MFAType,
		&challenge, &p.RotationFrequencyDays, &lastRotated, &nextDue,
		&p.RotationReminderSent, &p.Disabled, &p.SignatureRequirement,
		&p.NoElectronicSubmittal, &p.LongApprovalDuration, &extraConfig)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrPortalNotFound
		}
		return nil, err
	}

	p.EncryptedMFASecret = mfaSecret.String
	p.EncryptedChallengeAnswers = challenge.String
	if lastRotated.Valid {
		p.LastRotatedAt = &lastRotated.Time
	}
	if nextDue.Valid {
		p.NextRotationDue = &nextDue.Time
	}
	if len(extraConfig) > 0 {
		if err := json.Unmarshal(extraConfig, &p.ExtraConfig); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

func (r *Repository) UpdatePortalCredentials(ctx context.Context, portal models.StatePortalConfig) error {
	return r.updatePortal(ctx,
		map[string]interface{}{"id": portal.ID},
		map[string]interface{}{
			"encrypted_username":          portal.EncryptedUsername,
			"encrypted_password":          portal.EncryptedPassword,
			"encrypted_mfa_secret":        portal.EncryptedMFASecret,
			"mfa_type":                    portal.MFAType,
			"encrypted_challenge_answers": portal.EncryptedChallengeAnswers,
			"last_rotated_at":             portal.LastRotatedAt,
			"next_rotation_due":           portal.NextRotationDue,
			"rotation_reminder_sent":      portal.RotationReminderSent,
		})
}

func (r *Repository) UpdatePortalRotationSchedule(ctx context.Context, portalID int64, frequencyDays int, nextDue time.Time) error {
	return r.updatePortal(ctx,
		map[string]interface{}{"id": portalID},
		map[string]interface{}{
			"rotation_frequency_days": frequencyDays,
			"next_rotation_due":       nextDue,
		})
}

func (r *Repository) SetPortalDisabled(ctx context.Context, portalID int64, disabled bool) error {
	return r.updatePortal(ctx,
		map[string]interface{}{"id": portalID},
		map[string]interface{}{"disabled": disabled})
}

func (r *Repository) GetRotationDuePortals(ctx context.Context, asOf time.Time, dueSoonWindow time.Duration) ([]models.StatePortalConfig, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(portalColumns).From("state_portal_configs")
	sb.Where(
		sb.IsNotNull("next_rotation_due"),
		sb.LessThan("next_rotation_due", asOf.Add(dueSoonWindow)),
		sb.Equal("disabled", false),
	)
	sb.OrderBy("next_rotation_due").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var portals []models.StatePortalConfig
	for rows.Next() {
		var (
			p                    models.StatePortalConfig
			lastRotated, nextDue sql.NullTime
			mfaSecret, challenge sql.NullString
			extraConfig          []byte
		)
		err := rows.Scan(&p.ID, &p.StateCode, &p.Name, &p.ChannelType, &p.PortalURL,
			&p.EncryptedUsername, &p.EncryptedPassword, &mfaSecret, &p.MFAType,
			&challenge, &p.RotationFrequencyDays, &lastRotated, &nextDue,
			&p.RotationReminderSent, &p.Disabled, &p.SignatureRequirement,
			&p.NoElectronicSubmittal, &p.LongApprovalDuration, &extraConfig)
		if err != nil {
			return nil, err
		}
		p.EncryptedMFASecret = mfaSecret.String
		p.EncryptedChallengeAnswers = challenge.String
		if lastRotated.Valid {
			p.LastRotatedAt = &lastRotated.Time
		}
		if nextDue.Valid {
			p.NextRotationDue = &nextDue.Time
		}
		if len(extraConfig) > 0 {
			if err := json.Unmarshal(extraConfig, &p.ExtraConfig); err != nil {
				return nil, err
			}
		}
		portals = append(portals, p)
	}

	return portals, rows.Err()
}

func (r *Repository) CreateRotationHistoryEntry(ctx context.Context, entry models.CredentialRotationHistoryEntry) error {
	ib := sqlFlavor.NewInsertBuilder().InsertInto("credential_rotation_history")
	ib.Cols("portal_id", "actor", "rotation_type", "reason",
		"old_credential_hash", "new_credential_hash", "mfa_changed", "created_at").
		Values(entry.PortalID, entry.Actor, entry.RotationType, entry.Reason,
			entry.OldCredentialHash, entry.NewCredentialHash, entry.MFAChanged, entry.CreatedAt)

	query, args := ib.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) GetRotationHistory(ctx context.Context, portalID int64) ([]models.CredentialRotationHistoryEntry, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "portal_id", "actor", "rotation_type", "reason",
		"old_credential_hash", "new_credential_hash", "mfa_changed", "created_at")
	sb.From("credential_rotation_history").Where(sb.Equal("portal_id", portalID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CredentialRotationHistoryEntry
	for rows.Next() {
		var e models.CredentialRotationHistoryEntry
		if err := rows.Scan(&e.ID, &e.PortalID, &e.Actor, &e.RotationType, &e.Reason,
			&e.OldCredentialHash, &e.NewCredentialHash, &e.MFAChanged, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *Repository) CreateSubmissionJob(ctx context.Context, job models.SubmissionJob) (int64, error) {
	now := time.Now()
	ib := sqlFlavor.NewInsertBuilder().InsertInto("submission_jobs")
	ib.Cols("employer_id", "employer_name", "state_code", "status", "record_count",
		"attempt_count", "max_attempts", "transaction_id", "created_at", "updated_at").
		Values(job.EmployerID, job.EmployerName, job.StateCode, job.Status, job.RecordCount,
			job.AttemptCount, job.MaxAttempts, job.TransactionID, now, now)

	query, args := ib.Build()
	query += " RETURNING id"

	var id int64
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		// The partial unique index over non-terminal (employer, state) jobs
		// rejects a second active insert that raced past the existence check.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, repository.ErrDuplicateActiveJob
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) GetSubmissionJobByID(ctx context.Context, jobID int64) (*models.SubmissionJob, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employer_id", "employer_name", "state_code", "status", "record_count",
		"attempt_count", "max_attempts", "last_error", "confirmation_number",
		"transaction_id", "created_at", "updated_at")
	sb.From("submission_jobs").Where(sb.Equal("id", jobID))

	query, args := sb.Build()

	var (
		j                        models.SubmissionJob
		lastError, confirmation  sql.NullString
		createdAt, updatedAt     sql.NullTime
	)

	err := r.QueryRowContext(ctx, query, args...).Scan(&j.ID, &j.EmployerID, &j.EmployerName,
		&j.StateCode, &j.Status, &j.RecordCount, &j.AttemptCount, &j.MaxAttempts,
		&lastError, &confirmation, &j.TransactionID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, err
	}

	j.LastError, j.Confirmation = lastError.String, confirmation.String
	j.CreatedAt, j.UpdatedAt = createdAt.Time, updatedAt.Time

	return &j, nil
}

func (r *Repository) ActiveSubmissionJobExists(ctx context.Context, employerID int64, stateCode string) (bool, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("submission_jobs")
	sb.Where(
		sb.Equal("employer_id", employerID),
		sb.Equal("state_code", stateCode),
		sb.In("status", models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRetrying),
	)

	query, args := sb.Build()
	var count int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) UpdateJobStatus(ctx context.Context, jobID int64, new models.JobStatus) error {
	return r.updateJob(ctx,
		map[string]interface{}{"id": jobID},
		map[string]interface{}{"status": new, "updated_at": time.Now()})
}

func (r *Repository) UpdateJobStatusCheckStatus(ctx context.Context, jobID int64, current, new models.JobStatus) error {
	return r.updateJob(ctx,
		map[string]interface{}{"id": jobID, "status": current},
		map[string]interface{}{"status": new, "updated_at": time.Now()})
}

func (r *Repository) UpdateJobOutcome(ctx context.Context, jobID int64, status models.JobStatus, attemptCount int, lastError, confirmation string) error {
	return r.updateJob(ctx,
		map[string]interface{}{"id": jobID},
		map[string]interface{}{
			"status":              status,
			"attempt_count":       attemptCount,
			"last_error":          lastError,
			"confirmation_number": confirmation,
			"updated_at":          time.Now(),
		})
}

func (r *Repository) GetCertifiedScreenings(ctx context.Context, employerID int64, stateCode string) ([]models.ScreeningRecord, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employer_id", "employee_first_name", "employee_last_name", "ssn",
		"hire_date", "start_wage_cents", "target_group_code", "state_code", "status")
	sb.From("screenings")
	sb.Where(
		sb.Equal("employer_id", employerID),
		sb.Equal("state_code", stateCode),
		sb.Equal("status", models.ScreeningStatusCertified),
	)
	sb.OrderBy("id").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var screenings []models.ScreeningRecord
	for rows.Next() {
		var s models.ScreeningRecord
		if err := rows.Scan(&s.ID, &s.EmployerID, &s.EmployeeFirst, &s.EmployeeLast, &s.SSN,
			&s.HireDate, &s.StartWageCents, &s.TargetGroupCode, &s.StateCode, &s.Status); err != nil {
			return nil, err
		}
		screenings = append(screenings, s)
	}

	return screenings, rows.Err()
}

func (r *Repository) GetScreeningBySSNHash(ctx context.Context, stateCode, ssnHash string) (*models.ScreeningRecord, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "employer_id", "employee_first_name", "employee_last_name", "ssn",
		"hire_date", "start_wage_cents", "target_group_code", "state_code", "status")
	sb.From("screenings")
	sb.Where(sb.Equal("state_code", stateCode), sb.Equal("ssn_hash", ssnHash))

	query, args := sb.Build()
	var s models.ScreeningRecord
	err := r.QueryRowContext(ctx, query, args...).Scan(&s.ID, &s.EmployerID, &s.EmployeeFirst,
		&s.EmployeeLast, &s.SSN, &s.HireDate, &s.StartWageCents, &s.TargetGroupCode,
		&s.StateCode, &s.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrScreeningNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *Repository) GetDeterminationByScreeningID(ctx context.Context, screeningID int64) (*models.DeterminationRecord, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "screening_id", "ssn_last4", "ssn_hash", "status",
		"certification_number", "credit_amount_cents", "state_code", "captured_at")
	sb.From("determination_records").Where(sb.Equal("screening_id", screeningID))

	query, args := sb.Build()
	var (
		d          models.DeterminationRecord
		certNumber sql.NullString
	)
	err := r.QueryRowContext(ctx, query, args...).Scan(&d.ID, &d.ScreeningID, &d.SSNLast4,
		&d.SSNHash, &d.Status, &certNumber, &d.CreditAmountCents, &d.StateCode, &d.CapturedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrDeterminationNotFound
		}
		return nil, err
	}
	d.CertificationNumber = certNumber.String

	return &d, nil
}

func (r *Repository) CreateDeterminationRecord(ctx context.Context, record models.DeterminationRecord) error {
	ib := sqlFlavor.NewInsertBuilder().InsertInto("determination_records")
	ib.Cols("screening_id", "ssn_last4", "ssn_hash", "status", "certification_number",
		"credit_amount_cents", "state_code", "captured_at").
		Values(record.ScreeningID, record.SSNLast4, record.SSNHash, record.Status,
			record.CertificationNumber, record.CreditAmountCents, record.StateCode, record.CapturedAt)

	query, args := ib.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) UpdateDeterminationRecord(ctx context.Context, record models.DeterminationRecord) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("determination_records")
	ub.Set(
		ub.Assign("status", record.Status),
		ub.Assign("certification_number", record.CertificationNumber),
		ub.Assign("credit_amount_cents", record.CreditAmountCents),
		ub.Assign("captured_at", record.CapturedAt),
	)
	// Terminal determinations are immutable; the guard is in the query, not
	// just the caller.
	ub.Where(
		ub.Equal("screening_id", record.ScreeningID),
		ub.Equal("status", models.DeterminationPending),
	)

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrDeterminationNotUpdate
	}

	return nil
}

func (r *Repository) RecordAuditEvent(ctx context.Context, event audit.Event, outcome string) error {
	ib := sqlFlavor.NewInsertBuilder().InsertInto("audit_events")
	ib.Cols("op", "portal_id", "job_id", "employer_id", "state_code", "actor",
		"detail", "tracking_id", "outcome", "created_at").
		Values(event.Op, nullableID(event.PortalID), nullableID(event.JobID),
			nullableID(event.EmployerID), event.StateCode, event.Actor,
			event.Help, event.TrackingID, outcome, time.Now())

	query, args := ib.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func (r *Repository) updatePortal(ctx context.Context, clauses map[string]interface{}, fieldAndValues map[string]interface{}) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("state_portal_configs")
	for field, value := range fieldAndValues {
		ub.SetMore(ub.Assign(field, value))
	}
	for field, value := range clauses {
		ub.Where(ub.Equal(field, value))
	}

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrPortalNotUpdated
	}

	return nil
}

func (r *Repository) updateJob(ctx context.Context, clauses map[string]interface{}, fieldAndValues map[string]interface{}) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("submission_jobs")
	for field, value := range fieldAndValues {
		ub.SetMore(ub.Assign(field, value))
	}
	for field, value := range clauses {
		ub.Where(ub.Equal(field, value))
	}

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.ErrJobNotUpdated
	}

	return nil
}
