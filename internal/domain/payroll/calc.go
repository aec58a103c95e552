package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pay is the row's contribution to the worksheet gross.
func Pay(row PayRow) decimal.Decimal {
	switch r := row.(type) {
	case JobRow:
		return r.Amount
	case HourlyRow:
		return r.Hours.Mul(r.Rate).Add(r.Bonus).Add(r.JobPay)
	case CustomRow:
		return r.Amount
	default:
		panic(fmt.Sprintf("payroll: unhandled row type %T", row))
	}
}

func GrossTotal(rows []PayRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(Pay(row))
	}
	return total
}

func Validate(row PayRow) error {
	verr := &ValidationError{}
	nonNegative := func(field string, value decimal.Decimal) {
		if value.IsNegative() {
			verr.add(field, "must not be negative")
		}
	}
	switch r := row.(type) {
	case JobRow:
		nonNegative("amount", r.Amount)
	case HourlyRow:
		nonNegative("hours", r.Hours)
		nonNegative("rate", r.Rate)
		nonNegative("bonus", r.Bonus)
		nonNegative("jobPay", r.JobPay)
	case CustomRow:
		nonNegative("amount", r.Amount)
		if !r.PaymentType.Valid() {
			verr.add("paymentType", "unknown payment type")
		}
		if r.PaymentType == PaymentOther && strings.TrimSpace(r.OtherReason) == "" {
			verr.add("otherReason", "required when payment type is Other")
		}
	default:
		panic(fmt.Sprintf("payroll: unhandled row type %T", row))
	}
	return verr.orNil()
}

// ToEntry maps a row to the history entry it persists as. Rows without a date take today.
func ToEntry(row PayRow, status string, today time.Time) HistoryEntry {
	entry := HistoryEntry{
		Status: status,
		Amount: Pay(row).Round(2),
		Date:   DateOnly(today),
	}
	switch r := row.(type) {
	case JobRow:
		entry.Type = EntryTypeJob
		entry.Description = strings.TrimSpace(r.Description)
		entry.Employee = strings.TrimSpace(r.Employee)
		entry.JobRef = r.JobRef
		if !r.Date.IsZero() {
			entry.Date = DateOnly(r.Date)
		}
	case HourlyRow:
		entry.Type = EntryTypeHours
		entry.Employee = strings.TrimSpace(r.EmployeeName)
		entry.Description = fmt.Sprintf("%s hrs @ %s/hr", r.Hours.String(), r.Rate.StringFixed(2))
		if r.Bonus.IsPositive() {
			entry.Description += " + bonus " + r.Bonus.StringFixed(2)
		}
		if r.JobPay.IsPositive() {
			entry.Description += " + job pay " + r.JobPay.StringFixed(2)
		}
	case CustomRow:
		entry.Type = EntryTypeCustom
		entry.Employee = strings.TrimSpace(r.Employee)
		entry.Description = string(r.PaymentType)
		if r.PaymentType == PaymentOther {
			entry.Description = "Other: " + strings.TrimSpace(r.OtherReason)
		}
		if !r.Date.IsZero() {
			entry.Date = DateOnly(r.Date)
		}
	default:
		panic(fmt.Sprintf("payroll: unhandled row type %T", row))
	}
	return entry
}

// employeeIdentity returns the directory id and display name a row is paid to, if any.
func employeeIdentity(row PayRow) (ref, name string) {
	switch r := row.(type) {
	case JobRow:
		return r.EmployeeRef, strings.TrimSpace(r.Employee)
	case HourlyRow:
		return r.EmployeeRef, strings.TrimSpace(r.EmployeeName)
	case CustomRow:
		return r.EmployeeRef, strings.TrimSpace(r.Employee)
	default:
		panic(fmt.Sprintf("payroll: unhandled row type %T", row))
	}
}

// JobPayFor prices a completed job for an employee. Employees paid by job use their rate for
// the job's service when one exists; everyone else is credited the job revenue.
func JobPayFor(employee EmployeeRecord, job CompletedJob) decimal.Decimal {
	if employee.PaymentByJob {
		service := strings.ToLower(strings.TrimSpace(job.Service))
		for name, rate := range employee.JobRates {
			if strings.ToLower(strings.TrimSpace(name)) == service {
				return rate
			}
		}
	}
	return job.TotalRevenue
}

func JobDescription(job CompletedJob) string {
	var parts []string
	for _, part := range []string{job.Service, job.Vehicle, job.Customer} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " - ")
}

func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MatchesFilter applies a history filter to a single entry in memory.
func MatchesFilter(entry HistoryEntry, filter HistoryFilter) bool {
	if filter.Employee != "" && !strings.EqualFold(entry.Employee, strings.TrimSpace(filter.Employee)) {
		return false
	}
	if filter.Type != "" && !strings.EqualFold(entry.Type, filter.Type) {
		return false
	}
	if filter.Status != "" && entry.Status != filter.Status {
		return false
	}
	date := DateOnly(entry.Date)
	if filter.DateStart != nil && date.Before(DateOnly(*filter.DateStart)) {
		return false
	}
	if filter.DateEnd != nil && date.After(DateOnly(*filter.DateEnd)) {
		return false
	}
	if text := strings.ToLower(strings.TrimSpace(filter.Text)); text != "" {
		if !strings.Contains(strings.ToLower(entry.Description), text) && !strings.Contains(strings.ToLower(entry.Type), text) {
			return false
		}
	}
	return true
}
