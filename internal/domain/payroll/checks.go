package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"detailpay/internal/domain/accounting"
	"detailpay/internal/domain/alerts"
	"detailpay/internal/platform/archive"
)

func (s *Service) validatePayment(req *PaymentRequest) error {
	verr := &ValidationError{}
	switch req.PayeeType {
	case PayeeEmployee, PayeeCustomer, PayeeOther:
	default:
		verr.add("payeeType", "must be Employee, Customer or Other")
	}
	req.PayeeName = strings.TrimSpace(req.PayeeName)
	if req.PayeeName == "" && req.EmployeeRef == "" {
		verr.add("payeeName", "is required")
	}
	if !req.Amount.IsPositive() {
		verr.add("amount", "must be greater than zero")
	}
	if _, ok := req.Method.EntryType(); !ok {
		verr.add("method", "must be Check, Cash or DirectDeposit")
	}
	if req.Date.IsZero() {
		req.Date = s.today()
	}
	req.Date = DateOnly(req.Date)
	req.Amount = req.Amount.Round(2)
	return verr.orNil()
}

// IssuePayment records a manual check, cash or direct-deposit payment. The document is
// archived first but is not required; the Paid entry is the only step that can abort.
func (s *Service) IssuePayment(ctx context.Context, req PaymentRequest) (WriteResult, error) {
	if err := s.validatePayment(&req); err != nil {
		return WriteResult{}, err
	}
	var employee EmployeeRecord
	if req.PayeeType == PayeeEmployee {
		found, err := s.resolveEmployee(ctx, req.EmployeeRef, req.PayeeName)
		if err != nil {
			if errors.Is(err, ErrEmployeeNotFound) {
				return WriteResult{}, &ValidationError{Issues: []FieldIssue{{Field: "payeeName", Message: "employee not found"}}}
			}
			return WriteResult{}, err
		}
		employee = found
		req.PayeeName = found.Name
	}

	entryType, _ := req.Method.EntryType()
	entry := HistoryEntry{
		Date:        req.Date,
		Type:        entryType,
		Description: paymentDescription(req),
		Amount:      req.Amount,
		Status:      StatusPaid,
	}
	if req.PayeeType == PayeeEmployee {
		entry.Employee = employee.Name
	}

	var result WriteResult
	docRef, warning := s.archiveDocument(ctx, archive.Document{
		Category:     archive.CategoryCheck,
		PayeeName:    req.PayeeName,
		ReferenceKey: firstNonEmpty(req.CheckNumber, req.Date.Format(DateLayout)),
		FileName:     paymentFileName(req, s.Now().Unix()),
		Path:         req.Date.Format("2006/01"),
	}, func() ([]byte, error) { return renderPaymentDocument(req) })
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	entry.DocumentRef = docRef

	created, err := s.deps.History.CreateEntry(ctx, entry)
	if err != nil {
		s.recorder.LedgerStepFailed(StepPersistEntry)
		result.Steps = []StepResult{{Step: StepPersistEntry, Error: err.Error()}}
		return result, fmt.Errorf("persist payment entry: %w", err)
	}
	s.recorder.LedgerWrite(created.Type, created.Status)
	result.Entry = created
	result.Steps = append(result.Steps, StepResult{Step: StepPersistEntry, OK: true, Detail: created.ID})
	steps := stepRecorder{svc: s, result: &result}

	if s.deps.Expenses != nil {
		steps.run(StepRecordExpense, func() (string, error) {
			expense, err := s.deps.Expenses.RecordExpense(ctx, accounting.Expense{
				Amount:        req.Amount,
				Description:   created.Description,
				Category:      accounting.CategoryPayroll,
				PaymentMethod: string(req.Method),
				CreatedAt:     req.Date,
			})
			return expense.ID, err
		})
	}

	if req.PayeeType == PayeeEmployee {
		steps.run(StepAdvanceLastPaid, func() (string, error) {
			return s.advanceLastPaid(ctx, employee, req.Date)
		})
		if s.deps.Adjustments != nil {
			steps.run(StepAddAdjustment, func() (string, error) {
				adj, err := s.deps.Adjustments.AddAdjustment(ctx, employee.ID, req.Amount, created.ID)
				if err != nil {
					return "", err
				}
				s.mirrorAdjustment(ctx, employee.ID)
				return adj.ID, nil
			})
		}
		if s.deps.Alerts != nil {
			steps.run(StepDismissDueAlerts, func() (string, error) {
				n, err := s.deps.Alerts.DismissByKey(ctx, alerts.RecordTypeEmployeeDue, employee.ID)
				return fmt.Sprintf("%d dismissed", n), err
			})
		}
	}

	s.notify(HistoryCreated, result.Entry)
	return result, partialError(result)
}

func (s *Service) mirrorAdjustment(ctx context.Context, employeeID string) {
	total, err := s.deps.Adjustments.AdjustmentTotal(ctx, employeeID)
	if err != nil {
		return
	}
	s.mirror(ctx, adjustmentKey(employeeID), total.StringFixed(2))
}

func paymentDescription(req PaymentRequest) string {
	var b strings.Builder
	switch req.Method {
	case MethodCheck:
		b.WriteString("Check")
		if req.CheckNumber != "" {
			b.WriteString(" #" + req.CheckNumber)
		}
	case MethodCash:
		b.WriteString("Cash")
	case MethodDirectDeposit:
		b.WriteString("Direct deposit")
	}
	b.WriteString(" to " + req.PayeeName)
	if memo := strings.TrimSpace(req.Memo); memo != "" {
		b.WriteString(": " + memo)
	}
	return b.String()
}

func paymentFileName(req PaymentRequest, stamp int64) string {
	prefix := "receipt"
	if req.Method == MethodCheck {
		prefix = "check"
	}
	if req.CheckNumber != "" {
		return fmt.Sprintf("%s-%s.pdf", prefix, req.CheckNumber)
	}
	return fmt.Sprintf("%s-%s-%d.pdf", prefix, req.Date.Format(DateLayout), stamp)
}
