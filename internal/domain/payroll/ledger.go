package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/platform/archive"
)

func validStatus(status string) bool {
	return status == StatusPaid || status == StatusPending
}

func statusError(status string) error {
	return &ValidationError{Issues: []FieldIssue{{Field: "status", Message: fmt.Sprintf("must be %s or %s, got %q", StatusPaid, StatusPending, status)}}}
}

// SaveRow writes one row as a history entry and applies the Paid/Pending side effects. When
// the entry is committed but a later step fails, the result is returned with ErrPartialWrite.
func (s *Service) SaveRow(ctx context.Context, row PayRow, status string) (WriteResult, error) {
	if !validStatus(status) {
		return WriteResult{}, statusError(status)
	}
	if err := Validate(row); err != nil {
		return WriteResult{}, err
	}
	return s.saveRow(ctx, row, status)
}

func (s *Service) saveRow(ctx context.Context, row PayRow, status string) (WriteResult, error) {
	entry := ToEntry(row, status, s.today())
	created, err := s.deps.History.CreateEntry(ctx, entry)
	if err != nil {
		s.recorder.LedgerStepFailed(StepPersistEntry)
		return WriteResult{Steps: []StepResult{{Step: StepPersistEntry, Error: err.Error()}}}, fmt.Errorf("persist history entry: %w", err)
	}
	s.recorder.LedgerWrite(created.Type, created.Status)

	result := WriteResult{Entry: created, Steps: []StepResult{{Step: StepPersistEntry, OK: true, Detail: created.ID}}}
	steps := stepRecorder{svc: s, result: &result}

	if status == StatusPaid {
		if job, ok := row.(JobRow); ok && job.JobRef != "" {
			steps.run(StepMarkJobPaid, func() (string, error) {
				return job.JobRef, s.deps.Jobs.MarkJobPaid(ctx, job.JobRef)
			})
		}
	}

	ref, name := employeeIdentity(row)
	var employee EmployeeRecord
	haveEmployee := false
	if ref != "" || name != "" {
		found, err := s.resolveEmployee(ctx, ref, name)
		switch {
		case err == nil:
			employee, haveEmployee = found, true
			if name == "" {
				name = found.Name
			}
		case errors.Is(err, ErrEmployeeNotFound):
			result.Warnings = append(result.Warnings, fmt.Sprintf("employee %q is not in the directory", firstNonEmpty(name, ref)))
		case status == StatusPaid:
			steps.run(StepAdvanceLastPaid, func() (string, error) { return "", fmt.Errorf("lookup employee: %w", err) })
		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("employee lookup failed: %v", err))
		}
	}
	if status == StatusPaid && haveEmployee {
		steps.run(StepAdvanceLastPaid, func() (string, error) {
			return s.advanceLastPaid(ctx, employee, s.today())
		})
	}

	steps.run(StepRaiseAlert, func() (string, error) {
		return s.raiseEntryAlert(ctx, result.Entry, employee, name)
	})

	if status == StatusPaid {
		docRef, warning := s.archiveDocument(ctx, archive.Document{
			Category:     archive.CategoryPayStub,
			PayeeName:    firstNonEmpty(name, "unassigned"),
			ReferenceKey: created.ID,
			FileName:     "paystub-" + created.ID + ".pdf",
			Path:         created.Date.Format("2006/01"),
		}, func() ([]byte, error) { return renderPayStub(created) })
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		if docRef != "" {
			if err := s.deps.History.SetDocumentRef(ctx, created.ID, docRef); err != nil {
				slog.Warn("payroll document ref update failed", "entryId", created.ID, "err", err)
				result.Warnings = append(result.Warnings, fmt.Sprintf("document archived at %s but not linked: %v", docRef, err))
			} else {
				result.Entry.DocumentRef = docRef
			}
		}
	}

	s.notify(HistoryCreated, result.Entry)
	return result, partialError(result)
}

func (s *Service) raiseEntryAlert(ctx context.Context, entry HistoryEntry, employee EmployeeRecord, name string) (string, error) {
	subject := firstNonEmpty(name, entry.Description, entry.Type)
	candidate := alerts.Candidate{
		Source: alerts.SourcePayroll,
		Payload: map[string]any{
			alerts.PayloadEntryID:  entry.ID,
			alerts.PayloadEmployee: name,
			alerts.PayloadAmount:   entry.Amount.StringFixed(2),
		},
	}
	if entry.JobRef != "" {
		candidate.Payload[alerts.PayloadJobRef] = entry.JobRef
	}
	if employee.ID != "" {
		candidate.RecordType = alerts.RecordTypeEmployee
		candidate.RecordKey = employee.ID
	}
	if entry.Status == StatusPaid {
		candidate.Type = alerts.TypePayrollPaid
		candidate.Message = fmt.Sprintf("Payroll paid: $%s to %s (%s)", entry.Amount.StringFixed(2), subject, entry.Type)
	} else {
		candidate.Type = alerts.TypePayrollPending
		candidate.Message = fmt.Sprintf("Payroll pending for %s, awaiting payment of $%s", subject, entry.Amount.StringFixed(2))
	}
	raised, err := s.raiseUnlessDuplicate(ctx, candidate, alerts.EmployeeWindow{EmployeeID: employee.ID, Employee: name, Window: s.dedupWindow})
	if err != nil {
		return "", err
	}
	if !raised {
		return "suppressed duplicate " + candidate.Type, nil
	}
	return candidate.Type, nil
}

// SaveBatch validates every row up front, then writes them in order. It stops at the first
// row whose entry cannot be persisted; rows before it stay committed.
func (s *Service) SaveBatch(ctx context.Context, rows []WorksheetRow, status string) (BatchResult, error) {
	if !validStatus(status) {
		return BatchResult{SucceededThrough: -1}, statusError(status)
	}
	verr := &ValidationError{}
	for i, item := range rows {
		var rowErr *ValidationError
		if err := Validate(item.Row); errors.As(err, &rowErr) {
			verr.Issues = append(verr.Issues, rowErr.prefixed(fmt.Sprintf("rows[%d].", i))...)
		}
	}
	if err := verr.orNil(); err != nil {
		return BatchResult{SucceededThrough: -1}, err
	}

	batch := BatchResult{SucceededThrough: -1, GrossTotal: decimal.Zero}
	partial := false
	for i, item := range rows {
		result, err := s.saveRow(ctx, item.Row, status)
		if err != nil && result.Entry.ID == "" {
			batch.Failed = &RowFailure{Index: i, RowID: item.ID, Error: err.Error()}
			for j := i + 1; j < len(rows); j++ {
				batch.NotAttempted = append(batch.NotAttempted, j)
			}
			return batch, fmt.Errorf("%w: row %d not written, succeeded through row %d: %v", ErrPartialWrite, i, batch.SucceededThrough, err)
		}
		if err != nil {
			partial = true
		}
		batch.Results = append(batch.Results, result)
		batch.SucceededThrough = i
		batch.GrossTotal = batch.GrossTotal.Add(result.Entry.Amount)
		batch.Warnings = append(batch.Warnings, result.Warnings...)
	}
	if partial {
		return batch, fmt.Errorf("%w: some rows have failed side effects", ErrPartialWrite)
	}
	return batch, nil
}

// SaveWorksheet saves the worksheet's rows and drops the ones that were written, leaving any
// unwritten rows staged for retry.
func (s *Service) SaveWorksheet(ctx context.Context, ws *Worksheet, status string) (BatchResult, error) {
	rows := ws.Rows()
	if len(rows) == 0 {
		return BatchResult{SucceededThrough: -1}, ErrEmptyWorksheet
	}
	batch, err := s.SaveBatch(ctx, rows, status)
	if batch.SucceededThrough >= 0 {
		ws.MarkPersisted()
		ids := make([]string, 0, batch.SucceededThrough+1)
		for _, item := range rows[:batch.SucceededThrough+1] {
			ids = append(ids, item.ID)
		}
		ws.DropRows(ids)
	}
	return batch, err
}

// FinalizePeriod pays every worksheet row and archives one summary document for the batch.
func (s *Service) FinalizePeriod(ctx context.Context, ws *Worksheet, period Period) (BatchResult, error) {
	if period.End.Before(period.Start) {
		return BatchResult{SucceededThrough: -1}, &ValidationError{Issues: []FieldIssue{{Field: "periodEnd", Message: "must not be before periodStart"}}}
	}
	batch, err := s.SaveWorksheet(ctx, ws, StatusPaid)
	if batch.SucceededThrough < 0 {
		return batch, err
	}
	entries := batch.Entries()
	ref, warning := s.archiveDocument(ctx, archive.Document{
		Category:     archive.CategorySummary,
		PayeeName:    "period",
		ReferenceKey: period.Start.Format(DateLayout) + "_" + period.End.Format(DateLayout),
		FileName:     fmt.Sprintf("payroll-summary-%s-%s.pdf", period.Start.Format(DateLayout), period.End.Format(DateLayout)),
	}, func() ([]byte, error) { return renderBatchSummary(period, entries, batch.GrossTotal) })
	if warning != "" {
		batch.Warnings = append(batch.Warnings, warning)
	}
	batch.SummaryRef = ref
	return batch, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
