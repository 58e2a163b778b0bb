// Package formatter renders screening batches into the exact byte layout a
// state channel expects. Rendering is deterministic: the same batch always
// produces byte-identical output, which is what makes retries idempotent and
// payload archives auditable.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wotcworks/wotc-app/wotc/models"
)

// ErrNothingToSend is returned for an empty batch. An empty file is never a
// valid submission to any state channel.
var ErrNothingToSend = errors.New("no certified records to send")

// Batch is the input to one Format call. AsOf is the submission timestamp
// supplied by the caller; the formatter itself never reads the clock.
type Batch struct {
	EmployerID int64
	StateCode  string
	Records    []models.ScreeningRecord
	AsOf       time.Time
}

// Payload is the rendered submission.
type Payload struct {
	Bytes       []byte
	Filename    string
	RecordCount int
}

// Format renders the batch for the given channel type. SFTP channels use the
// fixed-width vendor layout; browser and vendor-portal channels upload CSV.
func Format(channel models.ChannelType, batch Batch) (*Payload, error) {
	if len(batch.Records) == 0 {
		return nil, ErrNothingToSend
	}

	switch channel {
	case models.ChannelSFTP:
		return formatFixedWidth(batch)
	case models.ChannelBrowser, models.ChannelVendorPortal:
		return formatCSV(batch)
	default:
		return nil, errors.Errorf("unsupported channel type %s", channel)
	}
}

func filename(batch Batch, extension string) string {
	return fmt.Sprintf("WOTC_%s_%d_%s.%s",
		strings.ToUpper(batch.StateCode), batch.EmployerID,
		batch.AsOf.Format("20060102"), extension)
}

// digitsOnly strips SSN punctuation so both layouts carry the bare 9 digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cents renders a currency amount with fixed two-decimal precision.
func cents(amountCents int64) string {
	return fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)
}
