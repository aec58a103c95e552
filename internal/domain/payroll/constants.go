package payroll

import "time"

const (
	StatusPaid    = "Paid"
	StatusPending = "Pending"
)

// History entry types. Manual payments use the method's entry type.
const (
	EntryTypeJob           = "job"
	EntryTypeHours         = "hours"
	EntryTypeCustom        = "custom"
	EntryTypeCheck         = "check"
	EntryTypeCash          = "cash"
	EntryTypeDirectDeposit = "direct_deposit"
)

type RowKind string

const (
	KindJob    RowKind = "job"
	KindHourly RowKind = "hourly"
	KindCustom RowKind = "custom"
)

type PaymentType string

const (
	PaymentBonus         PaymentType = "Bonus"
	PaymentCommission    PaymentType = "Commission"
	PaymentTip           PaymentType = "Tip"
	PaymentReimbursement PaymentType = "Reimbursement"
	PaymentOvertimePay   PaymentType = "OvertimePay"
	PaymentHolidayPay    PaymentType = "HolidayPay"
	PaymentGift          PaymentType = "Gift"
	PaymentAdvance       PaymentType = "Advance"
	PaymentOther         PaymentType = "Other"
)

var paymentTypes = map[PaymentType]bool{
	PaymentBonus:         true,
	PaymentCommission:    true,
	PaymentTip:           true,
	PaymentReimbursement: true,
	PaymentOvertimePay:   true,
	PaymentHolidayPay:    true,
	PaymentGift:          true,
	PaymentAdvance:       true,
	PaymentOther:         true,
}

func (p PaymentType) Valid() bool {
	return paymentTypes[p]
}

type PayeeType string

const (
	PayeeEmployee PayeeType = "Employee"
	PayeeCustomer PayeeType = "Customer"
	PayeeOther    PayeeType = "Other"
)

type PaymentMethod string

const (
	MethodCheck         PaymentMethod = "Check"
	MethodCash          PaymentMethod = "Cash"
	MethodDirectDeposit PaymentMethod = "DirectDeposit"
)

func (m PaymentMethod) EntryType() (string, bool) {
	switch m {
	case MethodCheck:
		return EntryTypeCheck, true
	case MethodCash:
		return EntryTypeCash, true
	case MethodDirectDeposit:
		return EntryTypeDirectDeposit, true
	}
	return "", false
}

const JobStatusCompleted = "completed"

// Steps of a multi-call ledger write, reported back in WriteResult.
const (
	StepPersistEntry     = "persist_entry"
	StepMarkJobPaid      = "mark_job_paid"
	StepAdvanceLastPaid  = "advance_last_paid"
	StepRaiseAlert       = "raise_alert"
	StepRecordExpense    = "record_expense"
	StepAddAdjustment    = "add_adjustment"
	StepDismissDueAlerts = "dismiss_due_alerts"
)

const (
	DateLayout         = "2006-01-02"
	DefaultGracePeriod = 7 * 24 * time.Hour
	DefaultDedupWindow = 24 * time.Hour
)

// JobPricing picks the amount a staged job row starts with.
type JobPricing string

const (
	// PriceByRevenue stages the job at its total revenue.
	PriceByRevenue JobPricing = "revenue"
	// PriceByRate stages the job at the employee's rate for the service when the employee is
	// paid by job, falling back to revenue.
	PriceByRate JobPricing = "rate"
)

func (p JobPricing) Valid() bool {
	return p == PriceByRevenue || p == PriceByRate
}
