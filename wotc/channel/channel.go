// Package channel abstracts the three ways a state workforce agency accepts
// WOTC submissions: an interactive web portal driven by a scriptable
// browser, a shared SFTP drop, and a vendor-hosted bulk-upload site. The
// orchestrator only ever sees the Adapter interface; which concrete adapter
// serves a state is a configuration lookup, not a conditional chain.
package channel

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wotcworks/wotc-app/wotc/formatter"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

// Outcome is a successful submission's result.
type Outcome struct {
	ConfirmationNumber string
}

// CapturedDetermination is one (identifier, decision) pair scraped or
// downloaded from a state channel in capture mode.
type CapturedDetermination struct {
	SSN                 string
	Status              models.DeterminationStatus
	CertificationNumber string
	CreditAmountCents   int64
}

// Adapter is the single capability the orchestrator drives. Implementations
// must return *ChannelError for every failure so policy can branch on kind.
type Adapter interface {
	// Submit authenticates and transmits the payload, returning the
	// portal's confirmation identifier.
	Submit(ctx context.Context, creds vault.Credentials, payload *formatter.Payload) (*Outcome, error)

	// TestCredentials performs the minimal login-only round trip; no data
	// is transmitted. Used by the admin "test before saving" flow.
	TestCredentials(ctx context.Context, creds vault.Credentials) error

	// CaptureDeterminations reads the channel's results surface instead of
	// submitting.
	CaptureDeterminations(ctx context.Context, creds vault.Credentials) ([]CapturedDetermination, error)
}

// CallTimeout is the hard ceiling on any single adapter call. Hung remote
// portals surface as transient failures feeding the retry policy.
const CallTimeout = 90 * time.Second

// Resolve returns the adapter for a portal's configured channel type.
func Resolve(portal *models.StatePortalConfig) (Adapter, error) {
	switch portal.ChannelType {
	case models.ChannelBrowser:
		return NewBrowserAdapter(portal)
	case models.ChannelSFTP:
		return NewSFTPAdapter(portal)
	case models.ChannelVendorPortal:
		return NewVendorPortalAdapter(portal)
	default:
		return nil, newError(KindStructural, "resolve",
			errors.Errorf("no adapter for channel type %q", portal.ChannelType))
	}
}
