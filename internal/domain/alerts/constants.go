package alerts

const (
	TypePayrollPaid      = "payroll_paid"
	TypePayrollPending   = "payroll_pending"
	TypePayrollDue       = "payroll_due"
	TypeWeeklyPayrollDue = "weekly_payroll_due"
	TypePayrollReconcile = "payroll_reconcile"
)

const (
	RecordTypeEmployee = "employee"
	// RecordTypeEmployeeDue keys overdue alerts so settling a debt dismisses only those.
	RecordTypeEmployeeDue = "employee_payroll_due"
	RecordTypePeriod      = "pay_period"
	RecordTypeJob         = "completed_job"
)

const SourcePayroll = "payroll"

// Payload keys shared by raisers and the period de-duplication rule.
const (
	PayloadPeriodStart = "periodStart"
	PayloadPeriodEnd   = "periodEnd"
	PayloadEmployee    = "employee"
	PayloadAmount      = "amount"
	PayloadJobRef      = "jobRef"
	PayloadEntryID     = "entryId"
)
