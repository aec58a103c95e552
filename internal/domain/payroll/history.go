package payroll

import (
	"context"
	"fmt"
	"strings"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/platform/archive"
)

var knownEntryTypes = map[string]bool{
	EntryTypeJob:           true,
	EntryTypeHours:         true,
	EntryTypeCustom:        true,
	EntryTypeCheck:         true,
	EntryTypeCash:          true,
	EntryTypeDirectDeposit: true,
}

func (s *Service) Query(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, statusError(filter.Status)
	}
	if filter.DateStart != nil && filter.DateEnd != nil && filter.DateEnd.Before(*filter.DateStart) {
		return nil, &ValidationError{Issues: []FieldIssue{{Field: "dateEnd", Message: "must not be before dateStart"}}}
	}
	return s.deps.History.QueryEntries(ctx, filter)
}

func (s *Service) GetEntry(ctx context.Context, id string) (HistoryEntry, error) {
	return s.deps.History.GetEntry(ctx, id)
}

func validatePatch(patch HistoryPatch) error {
	verr := &ValidationError{}
	if patch.Amount == nil && patch.Type == nil && patch.Description == nil {
		verr.add("patch", "at least one of amount, type or description is required")
	}
	if patch.Amount != nil && patch.Amount.IsNegative() {
		verr.add("amount", "must not be negative")
	}
	if patch.Type != nil && !knownEntryTypes[strings.TrimSpace(*patch.Type)] {
		verr.add("type", "unknown entry type")
	}
	return verr.orNil()
}

// Update edits amount, type or description in place and archives an audit document of the
// change. Status, date and employee are never touched.
func (s *Service) Update(ctx context.Context, id string, patch HistoryPatch) (WriteResult, HistoryEntry, error) {
	if err := validatePatch(patch); err != nil {
		return WriteResult{}, HistoryEntry{}, err
	}
	if patch.Amount != nil {
		rounded := patch.Amount.Round(2)
		patch.Amount = &rounded
	}
	if patch.Type != nil {
		trimmed := strings.TrimSpace(*patch.Type)
		patch.Type = &trimmed
	}
	before, err := s.deps.History.GetEntry(ctx, id)
	if err != nil {
		return WriteResult{}, HistoryEntry{}, err
	}
	updated, err := s.deps.History.UpdateEntry(ctx, id, patch)
	if err != nil {
		return WriteResult{}, before, fmt.Errorf("update history entry: %w", err)
	}
	result := WriteResult{Entry: updated, Steps: []StepResult{{Step: StepPersistEntry, OK: true, Detail: updated.ID}}}

	changes := diffEntries(before, updated)
	ref, warning := s.archiveDocument(ctx, archive.Document{
		Category:     archive.CategoryAudit,
		PayeeName:    firstNonEmpty(updated.Employee, "unassigned"),
		ReferenceKey: updated.ID,
		FileName:     fmt.Sprintf("history-edit-%s-%d.pdf", updated.ID, s.Now().Unix()),
	}, func() ([]byte, error) { return renderAuditDocument(before, updated, changes, s.Now()) })
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	if ref != "" {
		if err := s.deps.History.SetDocumentRef(ctx, updated.ID, ref); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("audit document archived at %s but not linked: %v", ref, err))
		} else {
			result.Entry.DocumentRef = ref
		}
	}
	s.notify(HistoryUpdated, result.Entry)
	return result, before, nil
}

type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func diffEntries(before, after HistoryEntry) []FieldChange {
	var changes []FieldChange
	if !before.Amount.Equal(after.Amount) {
		changes = append(changes, FieldChange{Field: "amount", From: before.Amount.StringFixed(2), To: after.Amount.StringFixed(2)})
	}
	if before.Type != after.Type {
		changes = append(changes, FieldChange{Field: "type", From: before.Type, To: after.Type})
	}
	if before.Description != after.Description {
		changes = append(changes, FieldChange{Field: "description", From: before.Description, To: after.Description})
	}
	return changes
}

// Delete removes an entry after the caller confirmed it. The job's paid flag is left alone;
// deleting a Paid job entry raises a reconcile alert instead, and ReopenJob is the separate
// operator action that clears the flag.
func (s *Service) Delete(ctx context.Context, id string, confirmed bool) (DeleteResult, error) {
	if !confirmed {
		return DeleteResult{}, ErrConfirmationRequired
	}
	entry, err := s.deps.History.GetEntry(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := s.deps.History.DeleteEntry(ctx, id); err != nil {
		return DeleteResult{}, fmt.Errorf("delete history entry: %w", err)
	}
	result := DeleteResult{Entry: entry}
	s.notify(HistoryDeleted, entry)

	if entry.Status == StatusPaid && entry.Type == EntryTypeJob && entry.JobRef != "" {
		candidate := alerts.Candidate{
			Type:       alerts.TypePayrollReconcile,
			Message:    fmt.Sprintf("Paid history entry for job %s was deleted; the job is still marked paid", entry.JobRef),
			Source:     alerts.SourcePayroll,
			RecordType: alerts.RecordTypeJob,
			RecordKey:  entry.JobRef,
			Payload: map[string]any{
				alerts.PayloadJobRef:   entry.JobRef,
				alerts.PayloadEntryID:  entry.ID,
				alerts.PayloadEmployee: entry.Employee,
				alerts.PayloadAmount:   entry.Amount.StringFixed(2),
			},
		}
		raised, err := s.raiseUnlessDuplicate(ctx, candidate, alerts.SameRecord{RecordType: alerts.RecordTypeJob, RecordKey: entry.JobRef})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("reconcile alert not raised: %v", err))
		}
		result.ReconcileAlert = raised
	}
	return result, nil
}

// ReopenJob flips a job back to unpaid and clears its reconcile alerts.
func (s *Service) ReopenJob(ctx context.Context, jobID string) (CompletedJob, error) {
	job, err := s.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return CompletedJob{}, err
	}
	if !job.Paid {
		return job, nil
	}
	if err := s.deps.Jobs.MarkJobUnpaid(ctx, jobID); err != nil {
		return CompletedJob{}, fmt.Errorf("mark job unpaid: %w", err)
	}
	job.Paid = false
	if s.deps.Alerts != nil {
		if _, err := s.deps.Alerts.DismissByKey(ctx, alerts.RecordTypeJob, jobID); err != nil {
			return job, fmt.Errorf("%w: job reopened but reconcile alert not dismissed: %v", ErrPartialWrite, err)
		}
	}
	return job, nil
}
