package formatter

import (
	"bytes"
	"encoding/csv"

	"github.com/wotcworks/wotc-app/wotc/models"
)

// Default CSV column order. States that deviate get an entry in
// stateColumnOrders; everything about the layout stays data, not code.
var defaultColumns = []string{
	"ssn", "last_name", "first_name", "hire_date",
	"target_group", "start_wage", "state",
}

var stateColumnOrders = map[string][]string{
	// California's aggregator wants the name first and no state column.
	"CA": {"last_name", "first_name", "ssn", "hire_date", "target_group", "start_wage"},
	// New York prepends the hire date.
	"NY": {"hire_date", "ssn", "last_name", "first_name", "target_group", "start_wage", "state"},
}

func columnsFor(stateCode string) []string {
	if cols, ok := stateColumnOrders[stateCode]; ok {
		return cols
	}
	return defaultColumns
}

func csvValue(column string, r models.ScreeningRecord) string {
	switch column {
	case "ssn":
		return digitsOnly(r.SSN)
	case "last_name":
		return r.EmployeeLast
	case "first_name":
		return r.EmployeeFirst
	case "hire_date":
		return r.HireDate.Format("2006-01-02")
	case "target_group":
		return r.TargetGroupCode
	case "start_wage":
		return cents(r.StartWageCents)
	case "state":
		return r.StateCode
	default:
		return ""
	}
}

func formatCSV(batch Batch) (*Payload, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	columns := columnsFor(batch.StateCode)
	if err := w.Write(columns); err != nil {
		return nil, err
	}

	row := make([]string, len(columns))
	for _, r := range batch.Records {
		for i, col := range columns {
			row[i] = csvValue(col, r)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &Payload{
		Bytes:       buf.Bytes(),
		Filename:    filename(batch, "csv"),
		RecordCount: len(batch.Records),
	}, nil
}
