package payroll

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// rowWire is the JSON shape of a worksheet row, discriminated by kind.
type rowWire struct {
	ID           string           `json:"id,omitempty"`
	Kind         RowKind          `json:"kind"`
	Pay          *decimal.Decimal `json:"pay,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Description  string           `json:"description,omitempty"`
	Date         string           `json:"date,omitempty"`
	Employee     string           `json:"employee,omitempty"`
	EmployeeName string           `json:"employeeName,omitempty"`
	EmployeeRef  string           `json:"employeeRef,omitempty"`
	JobRef       string           `json:"jobRef,omitempty"`
	Hours        *decimal.Decimal `json:"hours,omitempty"`
	Rate         *decimal.Decimal `json:"rate,omitempty"`
	Bonus        *decimal.Decimal `json:"bonus,omitempty"`
	JobPay       *decimal.Decimal `json:"jobPay,omitempty"`
	PaymentType  PaymentType      `json:"paymentType,omitempty"`
	OtherReason  string           `json:"otherReason,omitempty"`
}

func toWire(row PayRow) rowWire {
	pay := Pay(row)
	switch r := row.(type) {
	case JobRow:
		return rowWire{Kind: KindJob, Pay: &pay, Amount: &r.Amount, Description: r.Description, Date: formatDate(r.Date), Employee: r.Employee, EmployeeRef: r.EmployeeRef, JobRef: r.JobRef}
	case HourlyRow:
		return rowWire{Kind: KindHourly, Pay: &pay, EmployeeName: r.EmployeeName, EmployeeRef: r.EmployeeRef, Hours: &r.Hours, Rate: &r.Rate, Bonus: &r.Bonus, JobPay: &r.JobPay}
	case CustomRow:
		return rowWire{Kind: KindCustom, Pay: &pay, Amount: &r.Amount, PaymentType: r.PaymentType, OtherReason: r.OtherReason, Employee: r.Employee, EmployeeRef: r.EmployeeRef, Date: formatDate(r.Date)}
	default:
		panic(fmt.Sprintf("payroll: unhandled row type %T", row))
	}
}

func fromWire(w rowWire) (PayRow, error) {
	date, err := parseDate(w.Date)
	if err != nil {
		return nil, &ValidationError{Issues: []FieldIssue{{Field: "date", Message: "must be YYYY-MM-DD"}}}
	}
	switch RowKind(strings.ToLower(string(w.Kind))) {
	case KindJob:
		return JobRow{Amount: orZero(w.Amount), Description: w.Description, Date: date, Employee: w.Employee, EmployeeRef: w.EmployeeRef, JobRef: w.JobRef}, nil
	case KindHourly:
		name := w.EmployeeName
		if name == "" {
			name = w.Employee
		}
		return HourlyRow{EmployeeName: name, EmployeeRef: w.EmployeeRef, Hours: orZero(w.Hours), Rate: orZero(w.Rate), Bonus: orZero(w.Bonus), JobPay: orZero(w.JobPay)}, nil
	case KindCustom:
		return CustomRow{Amount: orZero(w.Amount), PaymentType: w.PaymentType, OtherReason: w.OtherReason, Employee: w.Employee, EmployeeRef: w.EmployeeRef, Date: date}, nil
	}
	return nil, &ValidationError{Issues: []FieldIssue{{Field: "kind", Message: "must be job, hourly or custom"}}}
}

func EncodeRow(row PayRow) ([]byte, error) {
	return json.Marshal(toWire(row))
}

func DecodeRow(data []byte) (PayRow, error) {
	var w rowWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return fromWire(w)
}

func DecodeRows(data []json.RawMessage) ([]PayRow, error) {
	rows := make([]PayRow, 0, len(data))
	for i, raw := range data {
		row, err := DecodeRow(raw)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, &ValidationError{Issues: verr.prefixed(fmt.Sprintf("rows[%d].", i))}
			}
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r WorksheetRow) MarshalJSON() ([]byte, error) {
	w := toWire(r.Row)
	w.ID = r.ID
	return json.Marshal(w)
}

func orZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if len(value) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return DateOnly(t), nil
		}
	}
	return time.Parse(DateLayout, value)
}
