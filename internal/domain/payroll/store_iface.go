package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"detailpay/internal/domain/accounting"
	"detailpay/internal/domain/alerts"
	"detailpay/internal/platform/archive"
)

type HistoryStore interface {
	CreateEntry(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	GetEntry(ctx context.Context, id string) (HistoryEntry, error)
	QueryEntries(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
	UpdateEntry(ctx context.Context, id string, patch HistoryPatch) (HistoryEntry, error)
	SetDocumentRef(ctx context.Context, id, ref string) error
	DeleteEntry(ctx context.Context, id string) error
	HasPaidBetween(ctx context.Context, start, end time.Time) (bool, error)
	HasPaidForEmployeeSince(ctx context.Context, employee string, since time.Time) (bool, error)
	PendingTotal(ctx context.Context, employee string) (decimal.Decimal, error)
}

type JobStore interface {
	GetJob(ctx context.Context, id string) (CompletedJob, error)
	CreateJob(ctx context.Context, job CompletedJob) (CompletedJob, error)
	ListUnpaidJobs(ctx context.Context, employee string) ([]CompletedJob, error)
	MarkJobPaid(ctx context.Context, id string) error
	MarkJobUnpaid(ctx context.Context, id string) error
}

type EmployeeDirectory interface {
	ListEmployees(ctx context.Context) ([]EmployeeRecord, error)
	GetEmployee(ctx context.Context, id string) (EmployeeRecord, error)
	FindEmployeeByName(ctx context.Context, name string) (EmployeeRecord, error)
	CreateEmployee(ctx context.Context, employee EmployeeRecord) (EmployeeRecord, error)
	// AdvanceLastPaid never moves lastPaid backwards and returns the stored value.
	AdvanceLastPaid(ctx context.Context, id string, date time.Time) (time.Time, error)
}

type AdjustmentStore interface {
	AddAdjustment(ctx context.Context, employeeID string, amount decimal.Decimal, reference string) (Adjustment, error)
	AdjustmentTotal(ctx context.Context, employeeID string) (decimal.Decimal, error)
}

type AlertSink interface {
	Raise(ctx context.Context, candidate alerts.Candidate) (alerts.Alert, error)
	ListUnread(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error)
	DismissByKey(ctx context.Context, recordType, recordKey string) (int64, error)
}

type DocumentArchive interface {
	Archive(ctx context.Context, doc archive.Document) (string, error)
}

type ExpenseSink interface {
	RecordExpense(ctx context.Context, expense accounting.Expense) (accounting.Expense, error)
}

// Cache is the optimistic key-value mirror. It is never read for financial totals.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Recorder interface {
	LedgerWrite(entryType, status string)
	LedgerStepFailed(step string)
	AlertSuppressed(alertType string)
}

type noopRecorder struct{}

func (noopRecorder) LedgerWrite(string, string) {}
func (noopRecorder) LedgerStepFailed(string)    {}
func (noopRecorder) AlertSuppressed(string)     {}
