package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

// VendorPortalAdapter drives a third-party aggregator's bulk upload API.
// Several states share one vendor; the signatory metadata in extra config
// is what differs between them.
type VendorPortalAdapter struct {
	portal *models.StatePortalConfig
	extra  VendorPortalExtra
	client *retryablehttp.Client
}

// NewVendorPortalAdapter builds the adapter from a portal's typed extra
// config.
func NewVendorPortalAdapter(portal *models.StatePortalConfig) (*VendorPortalAdapter, error) {
	var extra VendorPortalExtra
	if err := decodeExtra(portal.ExtraConfig, &extra); err != nil {
		return nil, newError(KindStructural, "vendor.config", err)
	}
	if extra.BaseURL == "" {
		extra.BaseURL = portal.PortalURL
	}
	if extra.BaseURL == "" {
		return nil, newError(KindStructural, "vendor.config",
			errf("portal %d vendor config missing base_url", portal.ID))
	}
	if extra.LoginPath == "" {
		extra.LoginPath = "/api/login"
	}
	if extra.UploadPath == "" {
		extra.UploadPath = "/api/submissions"
	}
	if extra.ResultsPath == "" {
		extra.ResultsPath = "/api/determinations"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, newError(KindStructural, "vendor.config", err)
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = time.Second
	client.Logger = nil
	// Hand back the final 5xx response instead of a synthesized "giving
	// up" error so status classification stays uniform.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Jar = jar
	client.HTTPClient.Timeout = 30 * time.Second

	return &VendorPortalAdapter{portal: portal, extra: extra, client: client}, nil
}

type vendorConfirmation struct {
	ConfirmationNumber string `json:"confirmation_number"`
}

type vendorDetermination struct {
	SSN                 string `json:"ssn"`
	Status              string `json:"status"`
	CertificationNumber string `json:"certification_number"`
	CreditAmountCents   int64  `json:"credit_amount_cents"`
}

// Submit logs in, uploads the CSV payload as multipart form data, and reads
// the confirmation number from the vendor's JSON response.
func (a *VendorPortalAdapter) Submit(ctx context.Context, creds vault.Credentials, payload *formatter.Payload) (*Outcome, error) {
	if err := a.login(ctx, creds); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", payload.Filename)
	if err != nil {
		return nil, newError(KindStructural, "vendor.upload", err)
	}
	if _, err := part.Write(payload.Bytes); err != nil {
		return nil, newError(KindStructural, "vendor.upload", err)
	}
	fields := map[string]string{
		"state_code":      a.portal.StateCode,
		"signatory_name":  a.extra.SignatoryName,
		"signatory_title": a.extra.SignatoryTitle,
		"contact_email":   a.extra.ContactEmail,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, newError(KindStructural, "vendor.upload", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, newError(KindStructural, "vendor.upload", err)
	}

	resp, err := a.do(ctx, http.MethodPost, a.extra.UploadPath, writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, classifyTransport("vendor.upload", err)
	}
	defer resp.Body.Close()

	if err := a.checkStatus("vendor.upload", resp); err != nil {
		return nil, err
	}

	var conf vendorConfirmation
	if err := json.NewDecoder(resp.Body).Decode(&conf); err != nil {
		return nil, newError(KindStructural, "vendor.upload", err)
	}
	if conf.ConfirmationNumber == "" {
		return nil, newError(KindStructural, "vendor.upload",
			errf("vendor response carried no confirmation number"))
	}
	return &Outcome{ConfirmationNumber: conf.ConfirmationNumber}, nil
}

// TestCredentials performs the login round trip only.
func (a *VendorPortalAdapter) TestCredentials(ctx context.Context, creds vault.Credentials) error {
	return a.login(ctx, creds)
}

// CaptureDeterminations logs in and pages the vendor's determinations feed.
func (a *VendorPortalAdapter) CaptureDeterminations(ctx context.Context, creds vault.Credentials) ([]CapturedDetermination, error) {
	if err := a.login(ctx, creds); err != nil {
		return nil, err
	}

	resultsURL := a.extra.ResultsPath + "?state=" + url.QueryEscape(a.portal.StateCode)
	resp, err := a.do(ctx, http.MethodGet, resultsURL, "", nil)
	if err != nil {
		return nil, classifyTransport("vendor.capture", err)
	}
	defer resp.Body.Close()

	if err := a.checkStatus("vendor.capture", resp); err != nil {
		return nil, err
	}

	var rows []vendorDetermination
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, newError(KindStructural, "vendor.capture", err)
	}

	out := make([]CapturedDetermination, 0, len(rows))
	for i, row := range rows {
		status, err := parseDeterminationStatus(row.Status)
		if err != nil {
			return nil, err
		}
		ssn := digitsOnly(row.SSN)
		if len(ssn) != 9 {
			return nil, newError(KindStructural, "vendor.capture",
				errf("determination %d has malformed ssn", i+1))
		}
		out = append(out, CapturedDetermination{
			SSN:                 ssn,
			Status:              status,
			CertificationNumber: strings.TrimSpace(row.CertificationNumber),
			CreditAmountCents:   row.CreditAmountCents,
		})
	}
	return out, nil
}

// login posts the credential form; a TOTP factor rides along when the
// portal requires one. The vendor sets a session cookie on success.
func (a *VendorPortalAdapter) login(ctx context.Context, creds vault.Credentials) error {
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
	}
	if creds.MFAType == models.MFATypeTOTP {
		code, err := totpCode(creds, time.Now())
		if err != nil {
			return err
		}
		form.Set("totp_code", code)
	}

	resp, err := a.do(ctx, http.MethodPost, a.extra.LoginPath,
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return classifyTransport("vendor.login", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return a.checkStatus("vendor.login", resp)
}

func (a *VendorPortalAdapter) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequest(method, strings.TrimRight(a.extra.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return a.client.Do(req)
}

func (a *VendorPortalAdapter) checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(KindAuth, op, errf("vendor rejected credentials with status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return newError(KindTransient, op, errf("vendor returned status %d", resp.StatusCode))
	default:
		return newError(KindStructural, op, errf("unexpected vendor status %d", resp.StatusCode))
	}
}
