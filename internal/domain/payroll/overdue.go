package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"detailpay/internal/domain/alerts"
)

const weeklyDueMessage = "Weekly payroll due"

// EmployeeOverdueScan flags employees whose last payment is older than grace with no Paid
// history inside the window, and employees never paid who have unpaid jobs. Each flagged
// employee gets at most one unread alert per de-duplication window.
func (s *Service) EmployeeOverdueScan(ctx context.Context, grace time.Duration) ([]OverdueEmployee, error) {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	employees, err := s.deps.Employees.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	now := s.Now()
	since := now.Add(-grace)

	var out []OverdueEmployee
	for _, employee := range employees {
		overdue, err := s.isOverdue(ctx, employee, now, since, grace)
		if err != nil {
			return out, err
		}
		if !overdue {
			continue
		}
		due, err := s.EstimateAmountDue(ctx, employee)
		if err != nil {
			return out, err
		}
		raised, err := s.raiseUnlessDuplicate(ctx, overdueCandidate(employee, due), alerts.EmployeeWindow{EmployeeID: employee.ID, Employee: employee.Name, Window: s.dedupWindow})
		if err != nil {
			slog.Warn("overdue alert failed", "employee", employee.Name, "err", err)
		}
		out = append(out, OverdueEmployee{Employee: employee, AmountDue: due, AlertRaised: raised})
	}
	return out, nil
}

func (s *Service) isOverdue(ctx context.Context, employee EmployeeRecord, now, since time.Time, grace time.Duration) (bool, error) {
	if employee.LastPaid == nil {
		jobs, err := s.deps.Jobs.ListUnpaidJobs(ctx, employee.Name)
		if err != nil {
			return false, fmt.Errorf("list unpaid jobs: %w", err)
		}
		return len(jobs) > 0, nil
	}
	if now.Sub(*employee.LastPaid) <= grace {
		return false, nil
	}
	paid, err := s.deps.History.HasPaidForEmployeeSince(ctx, employee.Name, DateOnly(since))
	if err != nil {
		return false, fmt.Errorf("check paid history: %w", err)
	}
	return !paid, nil
}

func overdueCandidate(employee EmployeeRecord, due decimal.Decimal) alerts.Candidate {
	lastPaid := "never"
	if employee.LastPaid != nil {
		lastPaid = employee.LastPaid.Format(DateLayout)
	}
	return alerts.Candidate{
		Type:       alerts.TypePayrollDue,
		Message:    fmt.Sprintf("Payroll overdue for %s: last paid %s, estimated $%s due", employee.Name, lastPaid, due.StringFixed(2)),
		Source:     alerts.SourcePayroll,
		RecordType: alerts.RecordTypeEmployeeDue,
		RecordKey:  employee.ID,
		Payload: map[string]any{
			alerts.PayloadEmployee: employee.Name,
			alerts.PayloadAmount:   due.StringFixed(2),
			"lastPaid":             lastPaid,
		},
	}
}

// PeriodOverdueScan reports whether a pay period has ended without a single Paid entry, and
// raises one weekly-due alert per period no matter how often it is called.
func (s *Service) PeriodOverdueScan(ctx context.Context, period Period) (bool, error) {
	start, end := DateOnly(period.Start), DateOnly(period.End)
	if end.Before(start) {
		return false, &ValidationError{Issues: []FieldIssue{{Field: "periodEnd", Message: "must not be before periodStart"}}}
	}
	if end.After(s.today()) {
		return false, nil
	}
	paid, err := s.deps.History.HasPaidBetween(ctx, start, end)
	if err != nil {
		return false, fmt.Errorf("check paid history: %w", err)
	}
	if paid {
		return false, nil
	}
	startKey, endKey := start.Format(DateLayout), end.Format(DateLayout)
	candidate := alerts.Candidate{
		Type:       alerts.TypeWeeklyPayrollDue,
		Message:    fmt.Sprintf("%s for %s to %s: no payments recorded", weeklyDueMessage, startKey, endKey),
		Source:     alerts.SourcePayroll,
		RecordType: alerts.RecordTypePeriod,
		RecordKey:  startKey + "/" + endKey,
		Payload: map[string]any{
			alerts.PayloadPeriodStart: startKey,
			alerts.PayloadPeriodEnd:   endKey,
		},
	}
	rule := alerts.PeriodKey{Start: startKey, End: endKey, MessageContains: weeklyDueMessage}
	if _, err := s.raiseUnlessDuplicate(ctx, candidate, rule); err != nil {
		return true, err
	}
	return true, nil
}

// PreviousPeriod returns the last full week that ended before the week containing now.
func PreviousPeriod(now time.Time, startDay time.Weekday) Period {
	today := DateOnly(now)
	offset := (int(today.Weekday()) - int(startDay) + 7) % 7
	currentStart := today.AddDate(0, 0, -offset)
	return Period{Start: currentStart.AddDate(0, 0, -7), End: currentStart.AddDate(0, 0, -1)}
}

// EstimateAmountDue is unpaid job revenue plus pending entries minus adjustments, floored at
// zero. It is used for alert text, not as ledger truth.
func (s *Service) EstimateAmountDue(ctx context.Context, employee EmployeeRecord) (decimal.Decimal, error) {
	jobs, err := s.deps.Jobs.ListUnpaidJobs(ctx, employee.Name)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list unpaid jobs: %w", err)
	}
	due := decimal.Zero
	for _, job := range jobs {
		due = due.Add(job.TotalRevenue)
	}
	pending, err := s.deps.History.PendingTotal(ctx, employee.Name)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pending total: %w", err)
	}
	due = due.Add(pending)
	if s.deps.Adjustments != nil && employee.ID != "" {
		adjusted, err := s.deps.Adjustments.AdjustmentTotal(ctx, employee.ID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("adjustment total: %w", err)
		}
		due = due.Sub(adjusted)
	}
	if due.IsNegative() {
		return decimal.Zero, nil
	}
	return due, nil
}

func (s *Service) AmountDue(ctx context.Context, employeeID string) (EmployeeRecord, decimal.Decimal, error) {
	employee, err := s.deps.Employees.GetEmployee(ctx, employeeID)
	if err != nil {
		return EmployeeRecord{}, decimal.Zero, err
	}
	due, err := s.EstimateAmountDue(ctx, employee)
	return employee, due, err
}
