package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wotcworks/wotc-app/wotc/audit"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
)

func testKey(t *testing.T) *[32]byte {
	t.Helper()
	key := &[32]byte{}
	_, err := io.ReadFull(rand.Reader, key[:])
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := New(nil, nil, testKey(t))

	for _, plaintext := range []string{"", "hunter2", "p@ssw0rd with spaces", "日本語"} {
		ciphertext, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		decrypted, err := v.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptProducesUniqueCiphertext(t *testing.T) {
	v := New(nil, nil, testKey(t))

	first, err := v.Encrypt("state-portal-password")
	require.NoError(t, err)
	second, err := v.Encrypt("state-portal-password")
	require.NoError(t, err)

	// Random nonce per record means identical plaintext never repeats.
	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsForeignData(t *testing.T) {
	v := New(nil, nil, testKey(t))

	for _, bad := range []string{"not base64!!", "Zm9vYmFy", ""} {
		_, err := v.Decrypt(bad)
		var ie *IntegrityError
		assert.ErrorAs(t, err, &ie, "input %q should fail integrity, not decode", bad)
	}
}

func TestDecryptWithWrongKeyFailsIntegrity(t *testing.T) {
	v1 := New(nil, nil, testKey(t))
	v2 := New(nil, nil, testKey(t))

	ciphertext, err := v1.Encrypt("secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(ciphertext)
	var ie *IntegrityError
	assert.ErrorAs(t, err, &ie)
}

func TestCredentialsRedaction(t *testing.T) {
	creds := Credentials{Username: "twc_user", Password: "hunter2", MFASecret: "JBSWY3DP"}

	rendered := fmt.Sprintf("%v %s %#v", creds, creds, creds)
	assert.NotContains(t, rendered, "hunter2")
	assert.NotContains(t, rendered, "JBSWY3DP")
	assert.Contains(t, rendered, "twc_user")
}

func TestKeyFromHex(t *testing.T) {
	_, err := KeyFromHex("zz")
	assert.Error(t, err)

	_, err = KeyFromHex("abcd")
	assert.Error(t, err)

	key, err := KeyFromHex("000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	assert.Equal(t, byte(0x0f), key[15])
}

func TestDecryptPortalCredentials(t *testing.T) {
	repo := &repository.MockRepository{}
	v := New(nil, repo, testKey(t))
	ctx := context.Background()

	encUser, err := v.Encrypt("twc_user")
	require.NoError(t, err)
	encPass, err := v.Encrypt("hunter2hunter2")
	require.NoError(t, err)
	encSecret, err := v.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	encAnswer, err := v.Encrypt("first dog")
	require.NoError(t, err)
	challenge, err := json.Marshal(map[string]string{"What was your first pet?": encAnswer})
	require.NoError(t, err)

	portal := &models.StatePortalConfig{
		ID:                        12,
		StateCode:                 "TX",
		EncryptedUsername:         encUser,
		EncryptedPassword:         encPass,
		EncryptedMFASecret:        encSecret,
		MFAType:                   models.MFATypeTOTP,
		EncryptedChallengeAnswers: string(challenge),
	}

	repo.On("RecordAuditEvent", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.PortalID == 12 && e.StateCode == "TX"
	}), "ok").Return(nil)

	creds, err := v.DecryptPortalCredentials(ctx, portal)
	require.NoError(t, err)
	assert.Equal(t, "twc_user", creds.Username)
	assert.Equal(t, "hunter2hunter2", creds.Password)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", creds.MFASecret)
	assert.Equal(t, models.MFATypeTOTP, creds.MFAType)
	assert.Equal(t, "first dog", creds.ChallengeAnswers["What was your first pet?"])
	repo.AssertExpectations(t)
}

func TestDecryptPortalCredentialsIntegrityCarriesPortalID(t *testing.T) {
	v := New(nil, &repository.MockRepository{}, testKey(t))

	portal := &models.StatePortalConfig{
		ID:                7,
		EncryptedUsername: "corrupted-blob",
	}

	_, err := v.DecryptPortalCredentials(context.Background(), portal)
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(7), ie.Portal)
}

func TestHashMaterialIsOneWayAndDistinct(t *testing.T) {
	a := HashMaterial("user", "oldpass")
	b := HashMaterial("user", "newpass")

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "oldpass")
	assert.Equal(t, a, HashMaterial("user", "oldpass"))
}
