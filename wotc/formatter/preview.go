package formatter

import (
	"github.com/wotcworks/wotc-app/wotc/models"
)

// PreviewRow is one display-ready record with the SSN masked. Masking is a
// preview concern only; transmitted payloads always carry the real value.
type PreviewRow struct {
	SSNMasked   string `json:"ssn"`
	LastName    string `json:"last_name"`
	FirstName   string `json:"first_name"`
	HireDate    string `json:"hire_date"`
	TargetGroup string `json:"target_group"`
	StartWage   string `json:"start_wage"`
}

type PreviewResult struct {
	Rows       []PreviewRow `json:"rows"`
	TotalCount int          `json:"total_count"`
}

// Preview renders at most maxRows records for the confirmation screen shown
// before a real transmission.
func Preview(records []models.ScreeningRecord, maxRows int) PreviewResult {
	result := PreviewResult{TotalCount: len(records)}

	n := len(records)
	if n > maxRows {
		n = maxRows
	}

	result.Rows = make([]PreviewRow, 0, n)
	for _, r := range records[:n] {
		result.Rows = append(result.Rows, PreviewRow{
			SSNMasked:   MaskSSN(r.SSN),
			LastName:    r.EmployeeLast,
			FirstName:   r.EmployeeFirst,
			HireDate:    r.HireDate.Format("2006-01-02"),
			TargetGroup: r.TargetGroupCode,
			StartWage:   cents(r.StartWageCents),
		})
	}

	return result
}

// MaskSSN renders all but the last four digits as asterisks.
func MaskSSN(ssn string) string {
	digits := digitsOnly(ssn)
	if len(digits) < 4 {
		return "***-**-****"
	}
	return "***-**-" + digits[len(digits)-4:]
}
