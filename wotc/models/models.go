package models

import (
	"time"
)

// ChannelType identifies how a state agency accepts WOTC submissions.
type ChannelType string

const (
	ChannelBrowser      ChannelType = "browser"
	ChannelSFTP         ChannelType = "sftp"
	ChannelVendorPortal ChannelType = "vendor-portal"
)

// MFAType identifies the second factor a state portal requires at login.
type MFAType string

const (
	MFATypeTOTP  MFAType = "totp"
	MFATypeSMS   MFAType = "sms"
	MFATypeEmail MFAType = "email"
	MFATypeNone  MFAType = "none"
)

// SignatureRequirement captures a state's signature policy for 8850 forms.
type SignatureRequirement string

const (
	SignatureNone       SignatureRequirement = "none"
	SignatureWet        SignatureRequirement = "wet"
	SignatureElectronic SignatureRequirement = "electronic"
)

// StatePortalConfig holds one state agency's (or vendor grouping's) channel
// configuration. Credential fields are opaque vault ciphertext; nothing
// outside the vault may interpret them. Rows are never hard-deleted, they
// are superseded through rotation history.
type StatePortalConfig struct {
	ID          int64       `json:"id"`
	StateCode   string      `json:"state_code"`
	Name        string      `json:"name"`
	ChannelType ChannelType `json:"channel_type"`
	PortalURL   string      `json:"portal_url"`

	EncryptedUsername  string  `json:"-"`
	EncryptedPassword  string  `json:"-"`
	EncryptedMFASecret string  `json:"-"`
	MFAType            MFAType `json:"mfa_type"`
	// JSON object of question -> encrypted answer.
	EncryptedChallengeAnswers string `json:"-"`

	RotationFrequencyDays int        `json:"rotation_frequency_days"`
	LastRotatedAt         *time.Time `json:"last_rotated_at"`
	NextRotationDue       *time.Time `json:"next_rotation_due"`
	RotationReminderSent  bool       `json:"rotation_reminder_sent"`

	// Disabled is set when vault integrity fails for this portal; the
	// orchestrator refuses to dispatch against disabled portals.
	Disabled bool `json:"disabled"`

	// Per-state quirks, explicit rather than keyed off the state code.
	SignatureRequirement  SignatureRequirement `json:"signature_requirement"`
	NoElectronicSubmittal bool                 `json:"no_electronic_submittal"`
	LongApprovalDuration  bool                 `json:"long_approval_duration"`

	// ExtraConfig carries channel-specific settings (bulk upload URL,
	// remote SFTP path, login selectors). Decoded into typed structs by
	// the channel package.
	ExtraConfig map[string]interface{} `json:"extra_config"`
}

// RotationType distinguishes why credentials were rotated.
type RotationType string

const (
	RotationManual           RotationType = "manual"
	RotationScheduled        RotationType = "scheduled"
	RotationSecurityIncident RotationType = "security-incident"
)

// CredentialRotationHistoryEntry is an immutable audit record of one
// credential rotation. Only one-way hashes of the credential material are
// stored, never the material itself.
type CredentialRotationHistoryEntry struct {
	ID                int64        `json:"id"`
	PortalID          int64        `json:"portal_id"`
	Actor             string       `json:"actor"`
	RotationType      RotationType `json:"rotation_type"`
	Reason            string       `json:"reason"`
	OldCredentialHash string       `json:"old_credential_hash"`
	NewCredentialHash string       `json:"new_credential_hash"`
	MFAChanged        bool         `json:"mfa_changed"`
	CreatedAt         time.Time    `json:"created_at"`
}

// JobStatus is the submission job state machine's current state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job in this status may never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// SubmissionJob tracks one (employer, state, batch) submission lineage.
// At most one job per (EmployerID, StateCode) may hold JobStatusProcessing
// at a time.
type SubmissionJob struct {
	ID            int64     `json:"id"`
	EmployerID    int64     `json:"employer_id"`
	EmployerName  string    `json:"employer_name"`
	StateCode     string    `json:"state_code"`
	Status        JobStatus `json:"status"`
	RecordCount   int       `json:"record_count"`
	AttemptCount  int       `json:"attempt_count"`
	MaxAttempts   int       `json:"max_attempts"`
	LastError     string    `json:"last_error"`
	Confirmation  string    `json:"confirmation_number"`
	TransactionID string    `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DeterminationStatus is the state agency's decision for one employee.
type DeterminationStatus string

const (
	DeterminationCertified DeterminationStatus = "certified"
	DeterminationDenied    DeterminationStatus = "denied"
	DeterminationPending   DeterminationStatus = "pending"
)

// Terminal reports whether this determination may never be overwritten.
func (s DeterminationStatus) Terminal() bool {
	return s == DeterminationCertified || s == DeterminationDenied
}

// DeterminationRecord is one agency decision reconciled onto a screening.
// Terminal records are immutable history.
type DeterminationRecord struct {
	ID                  int64               `json:"id"`
	ScreeningID         int64               `json:"screening_id"`
	SSNLast4            string              `json:"ssn_last4"`
	SSNHash             string              `json:"-"`
	Status              DeterminationStatus `json:"status"`
	CertificationNumber string              `json:"certification_number"`
	CreditAmountCents   int64               `json:"credit_amount_cents"`
	StateCode           string              `json:"state_code"`
	CapturedAt          time.Time           `json:"captured_at"`
}

// ScreeningRecord is the orchestrator's read-only view of an eligibility
// screening produced by the screening collaborator. Only records with
// ScreeningStatusCertified are ever submitted.
type ScreeningRecord struct {
	ID              int64     `json:"id"`
	EmployerID      int64     `json:"employer_id"`
	EmployeeFirst   string    `json:"employee_first_name"`
	EmployeeLast    string    `json:"employee_last_name"`
	SSN             string    `json:"-"`
	HireDate        time.Time `json:"hire_date"`
	StartWageCents  int64     `json:"start_wage_cents"`
	TargetGroupCode string    `json:"target_group_code"`
	StateCode       string    `json:"state_code"`
	Status          string    `json:"status"`
}

const ScreeningStatusCertified = "certified"

// Queue job type names registered in the que WorkMap.
const (
	QUE_PROCESS_SUBMISSION = "ProcessSubmission"
	QUE_CAPTURE_RESULTS    = "CaptureDeterminations"
)

// JobEnqueueArgs is the JSON payload for a queued submission job.
type JobEnqueueArgs struct {
	ID            int64  `json:"id"`
	EmployerID    int64  `json:"employer_id"`
	StateCode     string `json:"state_code"`
	TransactionID string `json:"transaction_id"`
}

// CaptureEnqueueArgs is the JSON payload for a queued determination capture.
type CaptureEnqueueArgs struct {
	StateCode     string `json:"state_code"`
	TransactionID string `json:"transaction_id"`
}
