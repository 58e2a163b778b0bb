package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

// BrowserAdapter drives a state portal that only offers an interactive web
// UI. Every page interaction is selector-driven from portal config so state
// markup changes are config edits, not releases.
type BrowserAdapter struct {
	portal *models.StatePortalConfig
	extra  BrowserExtra
}

// browserSessions serializes portal access. State portals commonly bind a
// login to one active session and drop the older one, so two concurrent
// automations against the same portal would evict each other mid-flow.
var (
	browserSessionsMu sync.Mutex
	browserSessions   = map[int64]*sync.Mutex{}
)

func browserSessionLock(portalID int64) *sync.Mutex {
	browserSessionsMu.Lock()
	defer browserSessionsMu.Unlock()
	if _, ok := browserSessions[portalID]; !ok {
		browserSessions[portalID] = &sync.Mutex{}
	}
	return browserSessions[portalID]
}

// NewBrowserAdapter builds the adapter from a portal's typed extra config.
func NewBrowserAdapter(portal *models.StatePortalConfig) (*BrowserAdapter, error) {
	var extra BrowserExtra
	if err := decodeExtra(portal.ExtraConfig, &extra); err != nil {
		return nil, newError(KindStructural, "browser.config", err)
	}
	if extra.LoginURL == "" {
		extra.LoginURL = portal.PortalURL
	}
	switch {
	case extra.LoginURL == "":
		return nil, newError(KindStructural, "browser.config",
			errf("portal %d browser config missing login_url", portal.ID))
	case extra.UsernameSelector == "" || extra.PasswordSelector == "" || extra.LoginButtonSelector == "":
		return nil, newError(KindStructural, "browser.config",
			errf("portal %d browser config missing login selectors", portal.ID))
	}
	return &BrowserAdapter{portal: portal, extra: extra}, nil
}

// Submit logs in, uploads the payload through the portal's file input, and
// scrapes the confirmation identifier off the landing page.
func (a *BrowserAdapter) Submit(ctx context.Context, creds vault.Credentials, payload *formatter.Payload) (*Outcome, error) {
	if a.extra.UploadURL == "" || a.extra.FileInputSelector == "" ||
		a.extra.SubmitSelector == "" || a.extra.ConfirmationSel == "" {
		return nil, newError(KindStructural, "browser.upload",
			errf("portal %d browser config missing upload selectors", a.portal.ID))
	}

	lock := browserSessionLock(a.portal.ID)
	lock.Lock()
	defer lock.Unlock()

	// chromedp only uploads from disk; stage the payload in a temp file
	// that dies with the call.
	tmpDir, err := os.MkdirTemp("", "wotc-upload-")
	if err != nil {
		return nil, newError(KindStructural, "browser.upload", err)
	}
	defer os.RemoveAll(tmpDir)
	local := filepath.Join(tmpDir, payload.Filename)
	if err := os.WriteFile(local, payload.Bytes, 0600); err != nil {
		return nil, newError(KindStructural, "browser.upload", err)
	}

	taskCtx, cancel := a.newBrowserContext(ctx)
	defer cancel()

	if err := a.login(taskCtx, creds); err != nil {
		return nil, err
	}

	var confirmation string
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(a.extra.UploadURL),
		chromedp.WaitVisible(a.extra.FileInputSelector),
		chromedp.SetUploadFiles(a.extra.FileInputSelector, []string{local}),
		chromedp.Click(a.extra.SubmitSelector),
		chromedp.WaitVisible(a.extra.ConfirmationSel),
		chromedp.Text(a.extra.ConfirmationSel, &confirmation),
	)
	if err != nil {
		return nil, classifyTransport("browser.upload", err)
	}
	confirmation = strings.TrimSpace(confirmation)
	if confirmation == "" {
		return nil, newError(KindStructural, "browser.upload",
			errf("confirmation element was present but empty"))
	}
	return &Outcome{ConfirmationNumber: confirmation}, nil
}

// TestCredentials performs the login flow only.
func (a *BrowserAdapter) TestCredentials(ctx context.Context, creds vault.Credentials) error {
	lock := browserSessionLock(a.portal.ID)
	lock.Lock()
	defer lock.Unlock()

	taskCtx, cancel := a.newBrowserContext(ctx)
	defer cancel()
	return a.login(taskCtx, creds)
}

// CaptureDeterminations scrapes the portal's results table. Cell order is
// fixed by the results page: identifier, status, certification number,
// credit amount.
func (a *BrowserAdapter) CaptureDeterminations(ctx context.Context, creds vault.Credentials) ([]CapturedDetermination, error) {
	if a.extra.ResultsURL == "" || a.extra.ResultsTableSel == "" {
		return nil, newError(KindStructural, "browser.capture",
			errf("portal %d browser config missing results selectors", a.portal.ID))
	}

	lock := browserSessionLock(a.portal.ID)
	lock.Lock()
	defer lock.Unlock()

	taskCtx, cancel := a.newBrowserContext(ctx)
	defer cancel()

	if err := a.login(taskCtx, creds); err != nil {
		return nil, err
	}

	extract := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q + " tbody tr")).map(tr => Array.from(tr.cells).map(td => td.innerText.trim()))`,
		a.extra.ResultsTableSel)

	var raw json.RawMessage
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(a.extra.ResultsURL),
		chromedp.WaitVisible(a.extra.ResultsTableSel),
		chromedp.Evaluate(extract, &raw),
	)
	if err != nil {
		return nil, classifyTransport("browser.capture", err)
	}

	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, newError(KindStructural, "browser.capture", err)
	}

	out := make([]CapturedDetermination, 0, len(rows))
	for i, cells := range rows {
		if len(cells) < 4 {
			return nil, newError(KindStructural, "browser.capture",
				errf("results row %d has %d cells, want 4", i+1, len(cells)))
		}
		ssn := digitsOnly(cells[0])
		if len(ssn) != 9 {
			return nil, newError(KindStructural, "browser.capture",
				errf("results row %d has malformed identifier", i+1))
		}
		status, err := parseDeterminationStatus(cells[1])
		if err != nil {
			return nil, err
		}
		cents, err := parseCreditCents(cells[3])
		if err != nil {
			return nil, newError(KindStructural, "browser.capture",
				errf("results row %d has malformed credit amount: %v", i+1, err))
		}
		out = append(out, CapturedDetermination{
			SSN:                 ssn,
			Status:              status,
			CertificationNumber: cells[2],
			CreditAmountCents:   cents,
		})
	}
	return out, nil
}

// login runs the selector-driven login flow, answering a TOTP prompt when
// one is configured, then probes for the portal's login failure banner.
func (a *BrowserAdapter) login(taskCtx context.Context, creds vault.Credentials) error {
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(a.extra.LoginURL),
		chromedp.WaitVisible(a.extra.UsernameSelector),
		chromedp.SendKeys(a.extra.UsernameSelector, creds.Username),
		chromedp.SendKeys(a.extra.PasswordSelector, creds.Password),
		chromedp.Click(a.extra.LoginButtonSelector),
	)
	if err != nil {
		return classifyTransport("browser.login", err)
	}

	if a.extra.MFACodeSelector != "" && creds.MFAType != models.MFATypeNone {
		code, err := totpCode(creds, time.Now())
		if err != nil {
			return err
		}
		err = chromedp.Run(taskCtx,
			chromedp.WaitVisible(a.extra.MFACodeSelector),
			chromedp.SendKeys(a.extra.MFACodeSelector, code),
			chromedp.Click(a.extra.MFASubmitSelector),
		)
		if err != nil {
			return classifyTransport("browser.mfa", err)
		}
	}

	if a.extra.LoginErrorSelector != "" {
		var failed bool
		probe := fmt.Sprintf(`document.querySelector(%q) !== null`, a.extra.LoginErrorSelector)
		if err := chromedp.Run(taskCtx, chromedp.Evaluate(probe, &failed)); err != nil {
			return classifyTransport("browser.login", err)
		}
		if failed {
			return newError(KindAuth, "browser.login",
				errf("portal displayed its login failure banner"))
		}
	}
	return nil
}

func (a *BrowserAdapter) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}
