package channel

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/go-gota/gota/dataframe"

	"github.com/wotcworks/wotc-app/wotc/models"
)

// Agencies export determination results as CSV, frequently with a UTF-8 BOM
// and inconsistent header casing. Column names are matched case-insensitively
// and every required column must be present before any row is trusted.
var resultFileColumns = []string{"ssn", "status", "certification_number", "credit_amount"}

// ParseResultFile decodes one determination result CSV into captured
// determinations.
func ParseResultFile(raw []byte) ([]CapturedDetermination, error) {
	df := dataframe.ReadCSV(utfbom.SkipOnly(bytes.NewReader(raw)))
	if df.Err != nil {
		return nil, newError(KindStructural, "resultfile", df.Err)
	}

	cols := make(map[string]string, len(df.Names()))
	for _, name := range df.Names() {
		cols[strings.ToLower(strings.TrimSpace(name))] = name
	}
	for _, required := range resultFileColumns {
		if _, ok := cols[required]; !ok {
			return nil, newError(KindStructural, "resultfile",
				errf("result file missing required column %q", required))
		}
	}

	out := make([]CapturedDetermination, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		row := df.Subset(i).Maps()[0]

		ssn := digitsOnly(stringCell(row[cols["ssn"]]))
		if len(ssn) != 9 {
			return nil, newError(KindStructural, "resultfile",
				errf("row %d has malformed ssn", i+1))
		}

		status, err := parseDeterminationStatus(stringCell(row[cols["status"]]))
		if err != nil {
			return nil, err
		}

		cents, err := parseCreditCents(stringCell(row[cols["credit_amount"]]))
		if err != nil {
			return nil, newError(KindStructural, "resultfile",
				errf("row %d has malformed credit amount: %v", i+1, err))
		}

		out = append(out, CapturedDetermination{
			SSN:                 ssn,
			Status:              status,
			CertificationNumber: strings.TrimSpace(stringCell(row[cols["certification_number"]])),
			CreditAmountCents:   cents,
		})
	}
	return out, nil
}

func parseDeterminationStatus(raw string) (models.DeterminationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "certified", "c", "approved":
		return models.DeterminationCertified, nil
	case "denied", "d", "rejected":
		return models.DeterminationDenied, nil
	case "pending", "p", "in review":
		return models.DeterminationPending, nil
	default:
		return "", newError(KindStructural, "resultfile",
			errf("unrecognized determination status %q", raw))
	}
}

// parseCreditCents parses a dollar amount ("$2,400.00", "2400", "") into
// cents. Empty and NaN cells mean no credit was reported.
func parseCreditCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" || strings.EqualFold(raw, "nan") {
		return 0, nil
	}
	dollars, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(dollars * 100)), nil
}

func stringCell(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
