package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

// fakeVendor is a minimal stand-in for the aggregator's API: form login
// that sets a session cookie, multipart upload, JSON determinations feed.
type fakeVendor struct {
	username, password string
	confirmation       string
	determinations     []vendorDetermination

	uploads []fakeUpload
}

type fakeUpload struct {
	filename  string
	contents  string
	stateCode string
	signatory string
}

func (v *fakeVendor) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != v.username || r.PostForm.Get("password") != v.password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
	})

	requireSession := func(w http.ResponseWriter, r *http.Request) bool {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusForbidden)
			return false
		}
		return true
	}

	mux.HandleFunc("/api/submissions", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, header.Size)
		_, err = file.Read(buf)
		require.NoError(t, err)

		v.uploads = append(v.uploads, fakeUpload{
			filename:  header.Filename,
			contents:  string(buf),
			stateCode: r.FormValue("state_code"),
			signatory: r.FormValue("signatory_name"),
		})
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(vendorConfirmation{ConfirmationNumber: v.confirmation})
	})

	mux.HandleFunc("/api/determinations", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		json.NewEncoder(w).Encode(v.determinations)
	})

	return mux
}

func vendorPortal(baseURL string) *models.StatePortalConfig {
	return &models.StatePortalConfig{
		ID:          9,
		StateCode:   "FL",
		ChannelType: models.ChannelVendorPortal,
		ExtraConfig: map[string]interface{}{
			"base_url":       baseURL,
			"signatory_name": "Pat Morgan",
			"contact_email":  "wotc@employer.example",
		},
	}
}

func TestVendorSubmit(t *testing.T) {
	vendor := &fakeVendor{username: "acme", password: "hunter22", confirmation: "VND-20260601-77"}
	server := httptest.NewServer(vendor.handler(t))
	defer server.Close()

	adapter, err := NewVendorPortalAdapter(vendorPortal(server.URL))
	require.NoError(t, err)

	payload := &formatter.Payload{
		Bytes:       []byte("ssn,last_name\n123456789,Doe\n"),
		Filename:    "WOTC_FL_12_20260601.csv",
		RecordCount: 1,
	}
	outcome, err := adapter.Submit(context.Background(),
		vault.Credentials{Username: "acme", Password: "hunter22", MFAType: models.MFATypeNone}, payload)
	require.NoError(t, err)

	assert.Equal(t, "VND-20260601-77", outcome.ConfirmationNumber)
	require.Len(t, vendor.uploads, 1)
	assert.Equal(t, "WOTC_FL_12_20260601.csv", vendor.uploads[0].filename)
	assert.Equal(t, string(payload.Bytes), vendor.uploads[0].contents)
	assert.Equal(t, "FL", vendor.uploads[0].stateCode)
	assert.Equal(t, "Pat Morgan", vendor.uploads[0].signatory)
}

func TestVendorLoginRejectionIsAuth(t *testing.T) {
	vendor := &fakeVendor{username: "acme", password: "hunter22"}
	server := httptest.NewServer(vendor.handler(t))
	defer server.Close()

	adapter, err := NewVendorPortalAdapter(vendorPortal(server.URL))
	require.NoError(t, err)

	err = adapter.TestCredentials(context.Background(),
		vault.Credentials{Username: "acme", Password: "wrong", MFAType: models.MFATypeNone})
	require.Error(t, err)
	assert.Equal(t, KindAuth, Classify(err))
}

func TestVendorCaptureDeterminations(t *testing.T) {
	vendor := &fakeVendor{
		username: "acme", password: "hunter22",
		determinations: []vendorDetermination{
			{SSN: "123-45-6789", Status: "certified", CertificationNumber: "FL-C-9", CreditAmountCents: 960000},
			{SSN: "987654321", Status: "denied"},
		},
	}
	server := httptest.NewServer(vendor.handler(t))
	defer server.Close()

	adapter, err := NewVendorPortalAdapter(vendorPortal(server.URL))
	require.NoError(t, err)

	rows, err := adapter.CaptureDeterminations(context.Background(),
		vault.Credentials{Username: "acme", Password: "hunter22", MFAType: models.MFATypeNone})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "123456789", rows[0].SSN)
	assert.Equal(t, models.DeterminationCertified, rows[0].Status)
	assert.Equal(t, "FL-C-9", rows[0].CertificationNumber)
	assert.Equal(t, int64(960000), rows[0].CreditAmountCents)
	assert.Equal(t, models.DeterminationDenied, rows[1].Status)
}

func TestVendorMalformedConfirmationIsStructural(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
	})
	mux.HandleFunc("/api/submissions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter, err := NewVendorPortalAdapter(vendorPortal(server.URL))
	require.NoError(t, err)

	_, err = adapter.Submit(context.Background(),
		vault.Credentials{MFAType: models.MFATypeNone},
		&formatter.Payload{Bytes: []byte("x"), Filename: "f.csv"})
	require.Error(t, err)
	assert.Equal(t, KindStructural, Classify(err))
}

func TestVendorServerErrorIsTransient(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter, err := NewVendorPortalAdapter(vendorPortal(server.URL))
	require.NoError(t, err)
	adapter.client.RetryMax = 1
	adapter.client.RetryWaitMin = 0
	adapter.client.RetryWaitMax = 0

	err = adapter.TestCredentials(context.Background(), vault.Credentials{MFAType: models.MFATypeNone})
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
	assert.Equal(t, 2, calls, "client retries before giving up")
}

func TestNewVendorPortalAdapterRequiresBaseURL(t *testing.T) {
	portal := vendorPortal("")
	portal.ExtraConfig = map[string]interface{}{}

	_, err := NewVendorPortalAdapter(portal)
	require.Error(t, err)
	assert.Equal(t, KindStructural, Classify(err))
}
