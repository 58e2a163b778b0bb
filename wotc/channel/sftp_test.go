package channel

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

func sftpPortal() *models.StatePortalConfig {
	return &models.StatePortalConfig{
		ID:          7,
		StateCode:   "TX",
		ChannelType: models.ChannelSFTP,
		ExtraConfig: map[string]interface{}{
			"host":       "sftp.twc.texas.gov",
			"remote_dir": "/wotc/incoming",
			"inbox_dir":  "/wotc/outgoing",
		},
	}
}

func TestNewSFTPAdapterDefaultsPort(t *testing.T) {
	adapter, err := NewSFTPAdapter(sftpPortal())
	require.NoError(t, err)
	assert.Equal(t, 22, adapter.extra.Port)
}

func TestNewSFTPAdapterRequiresHostAndRemoteDir(t *testing.T) {
	portal := sftpPortal()
	portal.ExtraConfig = map[string]interface{}{"host": "sftp.example.gov"}

	_, err := NewSFTPAdapter(portal)
	require.Error(t, err)
	assert.Equal(t, KindStructural, Classify(err))
}

func TestSFTPSubmitWritesPayloadToRemoteDir(t *testing.T) {
	session := newFakeSFTPSession()
	adapter := fakeDialAdapter(t, session, nil)

	payload := &formatter.Payload{
		Bytes:       []byte("H00000000001201012026\r\n"),
		Filename:    "WOTC_TX_12_20260601.txt",
		RecordCount: 1,
	}
	outcome, err := adapter.Submit(context.Background(), vault.Credentials{Username: "u", Password: "p"}, payload)
	require.NoError(t, err)

	assert.Equal(t, "/wotc/incoming/WOTC_TX_12_20260601.txt", outcome.ConfirmationNumber)
	assert.Equal(t, payload.Bytes, session.files["/wotc/incoming/WOTC_TX_12_20260601.txt"])
}

func TestSFTPSubmitAuthRejection(t *testing.T) {
	adapter := fakeDialAdapter(t, nil,
		errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [password]"))

	_, err := adapter.Submit(context.Background(), vault.Credentials{}, &formatter.Payload{Filename: "f.txt"})
	require.Error(t, err)
	assert.Equal(t, KindAuth, Classify(err))
}

func TestSFTPSubmitDeadlineIsTransient(t *testing.T) {
	adapter := fakeDialAdapter(t, nil, context.DeadlineExceeded)

	_, err := adapter.Submit(context.Background(), vault.Credentials{}, &formatter.Payload{Filename: "f.txt"})
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
}

func TestSFTPTestCredentialsStatsRemoteDirOnly(t *testing.T) {
	session := newFakeSFTPSession()
	adapter := fakeDialAdapter(t, session, nil)

	require.NoError(t, adapter.TestCredentials(context.Background(), vault.Credentials{Username: "u", Password: "p"}))
	assert.Equal(t, []string{"/wotc/incoming"}, session.statted)
	assert.Empty(t, session.files)
}

func TestSFTPCaptureParsesInboxCSVs(t *testing.T) {
	session := newFakeSFTPSession()
	session.inbox["results_202606.csv"] = []byte(
		"ssn,status,certification_number,credit_amount\n123456789,certified,TX-C-1,2400.00\n")
	session.inbox["readme.txt"] = []byte("not a result file")

	adapter := fakeDialAdapter(t, session, nil)

	rows, err := adapter.CaptureDeterminations(context.Background(), vault.Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "123456789", rows[0].SSN)
	assert.Equal(t, models.DeterminationCertified, rows[0].Status)
	assert.Equal(t, int64(240000), rows[0].CreditAmountCents)
}

func TestSFTPCaptureWithoutInboxDir(t *testing.T) {
	portal := sftpPortal()
	portal.ExtraConfig = map[string]interface{}{
		"host":       "sftp.twc.texas.gov",
		"remote_dir": "/wotc/incoming",
	}
	adapter, err := NewSFTPAdapter(portal)
	require.NoError(t, err)

	_, err = adapter.CaptureDeterminations(context.Background(), vault.Credentials{})
	require.Error(t, err)
	assert.Equal(t, KindStructural, Classify(err))
}

func fakeDialAdapter(t *testing.T, session *fakeSFTPSession, dialErr error) *SFTPAdapter {
	t.Helper()
	adapter, err := NewSFTPAdapter(sftpPortal())
	require.NoError(t, err)
	adapter.dial = func(ctx context.Context, addr string, config *ssh.ClientConfig) (sshConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		assert.Equal(t, "sftp.twc.texas.gov:22", addr)
		assert.Less(t, config.Timeout, 30*time.Second)
		return &fakeSSHConn{session: session}, nil
	}
	return adapter
}

type fakeSSHConn struct {
	session *fakeSFTPSession
}

func (c *fakeSSHConn) Close() error                     { return nil }
func (c *fakeSSHConn) sftpClient() (sftpSession, error) { return c.session, nil }

type fakeSFTPSession struct {
	files   map[string][]byte
	inbox   map[string][]byte
	statted []string
}

func newFakeSFTPSession() *fakeSFTPSession {
	return &fakeSFTPSession{files: map[string][]byte{}, inbox: map[string][]byte{}}
}

func (s *fakeSFTPSession) Close() error { return nil }

func (s *fakeSFTPSession) Stat(p string) (interface{ Name() string }, error) {
	s.statted = append(s.statted, p)
	return fakeFileInfo(p), nil
}

func (s *fakeSFTPSession) Create(p string) (io.WriteCloser, error) {
	return &fakeRemoteFile{session: s, path: p}, nil
}

func (s *fakeSFTPSession) Open(p string) (io.ReadCloser, error) {
	for name, contents := range s.inbox {
		if p == "/wotc/outgoing/"+name {
			return io.NopCloser(bytes.NewReader(contents)), nil
		}
	}
	return nil, errors.Errorf("file does not exist: %s", p)
}

func (s *fakeSFTPSession) ReadDirNames(p string) ([]string, error) {
	names := make([]string, 0, len(s.inbox))
	for name := range s.inbox {
		names = append(names, name)
	}
	return names, nil
}

type fakeRemoteFile struct {
	session *fakeSFTPSession
	path    string
	buf     bytes.Buffer
}

func (f *fakeRemoteFile) Write(p []byte) (int, error) { return f.buf.Write(p) }

func (f *fakeRemoteFile) Close() error {
	f.session.files[f.path] = f.buf.Bytes()
	return nil
}

type fakeFileInfo string

func (f fakeFileInfo) Name() string { return string(f) }
