// Package vault owns every encrypt and decrypt of state portal secrets.
// Ciphertext leaving this package is an opaque blob; plaintext never
// outlives the single channel call it was decrypted for.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/wotcworks/wotc-app/conf"
	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
)

// IntegrityError indicates ciphertext that this vault cannot decrypt:
// corrupted data or the wrong master key. The affected portal must be
// disabled rather than retried.
type IntegrityError struct {
	Portal int64
	cause  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("vault integrity failure for portal %d: %s", e.Portal, e.cause)
}

func (e *IntegrityError) Unwrap() error { return e.cause }

// ValidationError rejects rotation input before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Credentials is decrypted portal material. Values must be discarded at the
// end of the channel call they were produced for.
type Credentials struct {
	Username         string
	Password         string
	MFASecret        string
	MFAType          models.MFAType
	ChallengeAnswers map[string]string
}

// String keeps decrypted material out of log output.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username:%s, Password:REDACTED, MFASecret:REDACTED}", c.Username)
}

// GoString keeps %#v formatting from leaking secrets.
func (c Credentials) GoString() string { return c.String() }

type Vault struct {
	key  *[32]byte
	db   *sql.DB
	repo repository.Repository

	// rotate is serialized per portal so concurrent rotations cannot
	// interleave credential writes with stale reads.
	mu            sync.Mutex
	rotationLocks map[int64]*sync.Mutex
}

func New(db *sql.DB, repo repository.Repository, key *[32]byte) *Vault {
	return &Vault{
		key:           key,
		db:            db,
		repo:          repo,
		rotationLocks: make(map[int64]*sync.Mutex),
	}
}

// KeyFromHex parses a 64-character hex master key.
func KeyFromHex(s string) (*[32]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "vault key is not valid hex")
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("vault key must be 32 bytes, got %d", len(raw))
	}
	key := &[32]byte{}
	copy(key[:], raw)
	return key, nil
}

// LoadKey reads the master key from WOTC_VAULT_KEY.
func LoadKey() (*[32]byte, error) {
	raw := conf.GetEnv("WOTC_VAULT_KEY")
	if raw == "" {
		return nil, errors.New("WOTC_VAULT_KEY must be set")
	}
	return KeyFromHex(raw)
}

// Encrypt seals plaintext with 256-bit AES-GCM. Output is
// base64(nonce|ciphertext|tag); the nonce is random per record so the
// ciphertext self-describes everything needed to decrypt beyond the key.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt. Any tampering, truncation,
// or wrong-key condition yields an IntegrityError, never garbage plaintext.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &IntegrityError{cause: err}
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", &IntegrityError{cause: errors.New("ciphertext shorter than nonce")}
	}

	plaintext, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", &IntegrityError{cause: err}
	}

	return string(plaintext), nil
}

// DecryptPortalCredentials produces the decrypted material for one channel
// call and records the access in the audit stream. On integrity failure the
// returned error carries the portal ID so the caller can disable it.
func (v *Vault) DecryptPortalCredentials(ctx context.Context, portal *models.StatePortalConfig) (Credentials, error) {
	creds := Credentials{MFAType: portal.MFAType}

	var err error
	if creds.Username, err = v.Decrypt(portal.EncryptedUsername); err != nil {
		return Credentials{}, tagPortal(err, portal.ID)
	}
	if creds.Password, err = v.Decrypt(portal.EncryptedPassword); err != nil {
		return Credentials{}, tagPortal(err, portal.ID)
	}
	if portal.EncryptedMFASecret != "" {
		if creds.MFASecret, err = v.Decrypt(portal.EncryptedMFASecret); err != nil {
			return Credentials{}, tagPortal(err, portal.ID)
		}
	}
	if portal.EncryptedChallengeAnswers != "" {
		var encrypted map[string]string
		if err := json.Unmarshal([]byte(portal.EncryptedChallengeAnswers), &encrypted); err != nil {
			return Credentials{}, &IntegrityError{Portal: portal.ID, cause: err}
		}
		creds.ChallengeAnswers = make(map[string]string, len(encrypted))
		for question, enc := range encrypted {
			answer, err := v.Decrypt(enc)
			if err != nil {
				return Credentials{}, tagPortal(err, portal.ID)
			}
			creds.ChallengeAnswers[question] = answer
		}
	}

	audit.CredentialAccessed(ctx, v.repo, audit.Event{
		PortalID:  portal.ID,
		StateCode: portal.StateCode,
		Help:      "credentials decrypted for channel call",
	})

	return creds, nil
}

func tagPortal(err error, portalID int64) error {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		ie.Portal = portalID
	}
	return err
}

func marshalChallenge(encrypted map[string]string) (string, error) {
	raw, err := json.Marshal(encrypted)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// HashMaterial computes the one-way hash stored in rotation history entries
// in place of credential material.
func HashMaterial(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// HashSSN is the lookup key determination capture uses so raw SSNs never
// appear in determination rows.
func HashSSN(ssn string) string {
	sum := sha256.Sum256([]byte(ssn))
	return hex.EncodeToString(sum[:])
}
