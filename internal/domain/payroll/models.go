package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayRow is a worksheet candidate payment. Only JobRow, HourlyRow and CustomRow implement it.
type PayRow interface {
	Kind() RowKind
	payRow()
}

type JobRow struct {
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	Employee    string
	EmployeeRef string
	JobRef      string
}

type HourlyRow struct {
	EmployeeName string
	EmployeeRef  string
	Hours        decimal.Decimal
	Rate         decimal.Decimal
	Bonus        decimal.Decimal
	JobPay       decimal.Decimal
}

type CustomRow struct {
	Amount      decimal.Decimal
	PaymentType PaymentType
	OtherReason string
	Employee    string
	EmployeeRef string
	Date        time.Time
}

func (JobRow) Kind() RowKind    { return KindJob }
func (HourlyRow) Kind() RowKind { return KindHourly }
func (CustomRow) Kind() RowKind { return KindCustom }

func (JobRow) payRow()    {}
func (HourlyRow) payRow() {}
func (CustomRow) payRow() {}

type HistoryEntry struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Employee    string          `json:"employee,omitempty"`
	JobRef      string          `json:"jobRef,omitempty"`
	DocumentRef string          `json:"documentRef,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CompletedJob struct {
	JobID        string          `json:"jobId"`
	Employee     string          `json:"employee"`
	Service      string          `json:"service"`
	Vehicle      string          `json:"vehicle"`
	Customer     string          `json:"customer"`
	FinishedAt   time.Time       `json:"finishedAt"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Status       string          `json:"status"`
	Paid         bool            `json:"paid"`
}

type EmployeeRecord struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Email        string                     `json:"email"`
	FlatRate     decimal.Decimal            `json:"flatRate"`
	Bonuses      decimal.Decimal            `json:"bonuses"`
	PaymentByJob bool                       `json:"paymentByJob"`
	JobRates     map[string]decimal.Decimal `json:"jobRates,omitempty"`
	LastPaid     *time.Time                 `json:"lastPaid,omitempty"`
}

// HistoryFilter fields are optional and combined with AND.
type HistoryFilter struct {
	Employee  string
	Type      string
	Status    string
	DateStart *time.Time
	DateEnd   *time.Time
	Text      string
}

// HistoryPatch touches only amount, type and description.
type HistoryPatch struct {
	Amount      *decimal.Decimal
	Type        *string
	Description *string
}

type PaymentRequest struct {
	PayeeType   PayeeType
	PayeeName   string
	EmployeeRef string
	Amount      decimal.Decimal
	Date        time.Time
	Method      PaymentMethod
	Memo        string
	CheckNumber string
}

type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Label() string {
	return p.Start.Format(DateLayout) + " to " + p.End.Format(DateLayout)
}

type StepResult struct {
	Step   string `json:"step"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WriteResult reports every remote call of a ledger write. Entry is set once the history
// entry itself was committed.
type WriteResult struct {
	Entry    HistoryEntry `json:"entry"`
	Steps    []StepResult `json:"steps"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (r WriteResult) Partial() bool {
	for _, step := range r.Steps {
		if !step.OK {
			return true
		}
	}
	return false
}

func (r WriteResult) FailedSteps() []string {
	var out []string
	for _, step := range r.Steps {
		if !step.OK {
			out = append(out, step.Step)
		}
	}
	return out
}

type RowFailure struct {
	Index int    `json:"index"`
	RowID string `json:"rowId,omitempty"`
	Error string `json:"error"`
}

// BatchResult describes a saveBatch run. SucceededThrough is the index of the last row whose
// entry was committed, or -1 when none was.
type BatchResult struct {
	Results          []WriteResult   `json:"results"`
	SucceededThrough int             `json:"succeededThrough"`
	Failed           *RowFailure     `json:"failed,omitempty"`
	NotAttempted     []int           `json:"notAttempted,omitempty"`
	GrossTotal       decimal.Decimal `json:"grossTotal"`
	SummaryRef       string          `json:"summaryRef,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

func (b BatchResult) Entries() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(b.Results))
	for _, r := range b.Results {
		out = append(out, r.Entry)
	}
	return out
}

type DeleteResult struct {
	Entry          HistoryEntry `json:"entry"`
	ReconcileAlert bool         `json:"reconcileAlert"`
	Warnings       []string     `json:"warnings,omitempty"`
}

type OverdueEmployee struct {
	Employee    EmployeeRecord  `json:"employee"`
	AmountDue   decimal.Decimal `json:"amountDue"`
	AlertRaised bool            `json:"alertRaised"`
}

const (
	HistoryCreated = "created"
	HistoryUpdated = "updated"
	HistoryDeleted = "deleted"
)

type HistoryEvent struct {
	Kind  string       `json:"kind"`
	Entry HistoryEntry `json:"entry"`
	At    time.Time    `json:"at"`
}

type Adjustment struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	CreatedAt  time.Time       `json:"createdAt"`
}
