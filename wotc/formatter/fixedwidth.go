package formatter

import (
	"fmt"
	"strings"
)

// Fixed-width vendor layout used by shared SFTP drops. Dates are MMDDYYYY;
// currency is zero-padded cents with no decimal point; text fields are
// left-justified space-padded, numeric fields right-justified zero-padded.
//
// Record types: H (header), D (detail), T (trailer with detail count).
const (
	fwSSNWidth       = 9
	fwLastNameWidth  = 20
	fwFirstNameWidth = 15
	fwDateWidth      = 8
	fwGroupWidth     = 2
	fwWageWidth      = 10
	fwStateWidth     = 2
	fwCountWidth     = 6
)

func formatFixedWidth(batch Batch) (*Payload, error) {
	var b strings.Builder

	b.WriteString("H")
	b.WriteString(padLeft(fmt.Sprintf("%d", batch.EmployerID), 12, '0'))
	b.WriteString(batch.AsOf.Format("01022006"))
	b.WriteString("\r\n")

	for _, r := range batch.Records {
		b.WriteString("D")
		b.WriteString(padLeft(digitsOnly(r.SSN), fwSSNWidth, '0'))
		b.WriteString(padRight(truncate(r.EmployeeLast, fwLastNameWidth), fwLastNameWidth))
		b.WriteString(padRight(truncate(r.EmployeeFirst, fwFirstNameWidth), fwFirstNameWidth))
		b.WriteString(r.HireDate.Format("01022006"))
		b.WriteString(padRight(truncate(r.TargetGroupCode, fwGroupWidth), fwGroupWidth))
		b.WriteString(padLeft(fmt.Sprintf("%d", r.StartWageCents), fwWageWidth, '0'))
		b.WriteString(padRight(strings.ToUpper(r.StateCode), fwStateWidth))
		b.WriteString("\r\n")
	}

	b.WriteString("T")
	b.WriteString(padLeft(fmt.Sprintf("%d", len(batch.Records)), fwCountWidth, '0'))
	b.WriteString("\r\n")

	return &Payload{
		Bytes:       []byte(b.String()),
		Filename:    filename(batch, "txt"),
		RecordCount: len(batch.Records),
	}, nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func padLeft(s string, width int, fill byte) string {
	if len(s) >= width {
		return s[len(s)-width:]
	}
	return strings.Repeat(string(fill), width-len(s)) + s
}

func truncate(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s
}
