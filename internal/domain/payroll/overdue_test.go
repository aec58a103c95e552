package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/domain/payroll/payrolltest"
)

var lastWeek = payroll.Period{Start: date(2026, 3, 2), End: date(2026, 3, 8)}

func TestPeriodOverdueScanRaisesOneAlertPerPeriod(t *testing.T) {
	env := payrolltest.NewEnv(now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		overdue, err := env.Service.PeriodOverdueScan(ctx, lastWeek)
		require.NoError(t, err)
		assert.True(t, overdue)
	}
	raised := env.Alerts.OfType(alerts.TypeWeeklyPayrollDue)
	require.Len(t, raised, 1)
	assert.Equal(t, "Weekly payroll due for 2026-03-02 to 2026-03-08: no payments recorded", raised[0].Message)
	assert.Equal(t, "2026-03-02", raised[0].Payload[alerts.PayloadPeriodStart])

	other := payroll.Period{Start: date(2026, 2, 23), End: date(2026, 3, 1)}
	_, err := env.Service.PeriodOverdueScan(ctx, other)
	require.NoError(t, err)
	assert.Len(t, env.Alerts.OfType(alerts.TypeWeeklyPayrollDue), 2, "each period gets its own alert")
}

func TestPeriodOverdueScanSkipsPaidAndOpenPeriods(t *testing.T) {
	env := payrolltest.NewEnv(now)
	ctx := context.Background()

	_, err := env.Service.SaveRow(ctx, payroll.JobRow{Amount: dec("50"), Date: date(2026, 3, 4)}, payroll.StatusPaid)
	require.NoError(t, err)
	overdue, err := env.Service.PeriodOverdueScan(ctx, lastWeek)
	require.NoError(t, err)
	assert.False(t, overdue)

	current := payroll.Period{Start: date(2026, 3, 9), End: date(2026, 3, 15)}
	overdue, err = env.Service.PeriodOverdueScan(ctx, current)
	require.NoError(t, err)
	assert.False(t, overdue, "a period that has not ended is never overdue")
	assert.Empty(t, env.Alerts.OfType(alerts.TypeWeeklyPayrollDue))
}

func TestPeriodOverdueScanPendingDoesNotCount(t *testing.T) {
	env := payrolltest.NewEnv(now)
	_, err := env.Service.SaveRow(context.Background(), payroll.JobRow{Amount: dec("50"), Date: date(2026, 3, 4)}, payroll.StatusPending)
	require.NoError(t, err)
	overdue, err := env.Service.PeriodOverdueScan(context.Background(), lastWeek)
	require.NoError(t, err)
	assert.True(t, overdue)
}

func TestEmployeeOverdueScanDeduplicatesWithinWindow(t *testing.T) {
	env := payrolltest.NewEnv(now)
	ctx := context.Background()
	lastPaid := date(2026, 2, 20)
	env.Directory.Put(payroll.EmployeeRecord{Name: "Jane", LastPaid: &lastPaid})
	env.Jobs.Put(payroll.CompletedJob{JobID: "j1", Employee: "Jane", TotalRevenue: dec("120")})

	first, err := env.Service.EmployeeOverdueScan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].AlertRaised)
	assert.True(t, first[0].AmountDue.Equal(dec("120")))

	env.Clock.Advance(2 * time.Hour)
	second, err := env.Service.EmployeeOverdueScan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, second[0].AlertRaised)
	assert.Len(t, env.Alerts.OfType(alerts.TypePayrollDue), 1)

	env.Clock.Advance(23 * time.Hour)
	_, err = env.Service.EmployeeOverdueScan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, env.Alerts.OfType(alerts.TypePayrollDue), 2)
}

func TestEmployeeOverdueScanAlertsEveryEmployee(t *testing.T) {
	env := payrolltest.NewEnv(now)
	lastPaid := date(2026, 2, 20)
	env.Directory.Put(payroll.EmployeeRecord{Name: "Alice", LastPaid: &lastPaid})
	env.Directory.Put(payroll.EmployeeRecord{Name: "Ed", LastPaid: &lastPaid})

	overdue, err := env.Service.EmployeeOverdueScan(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	for _, o := range overdue {
		assert.True(t, o.AlertRaised, o.Employee.Name)
	}
	assert.Len(t, env.Alerts.OfType(alerts.TypePayrollDue), 2)
}

func TestEmployeeOverdueScanSelection(t *testing.T) {
	env := payrolltest.NewEnv(now)
	ctx := context.Background()
	recent := date(2026, 3, 8)
	stale := date(2026, 2, 1)
	env.Directory.Put(payroll.EmployeeRecord{Name: "Recent", LastPaid: &recent})
	env.Directory.Put(payroll.EmployeeRecord{Name: "NeverPaidIdle"})
	env.Directory.Put(payroll.EmployeeRecord{Name: "NeverPaidBusy"})
	env.Directory.Put(payroll.EmployeeRecord{Name: "StaleButPaid", LastPaid: &stale})
	env.Jobs.Put(payroll.CompletedJob{JobID: "j1", Employee: "NeverPaidBusy", TotalRevenue: dec("60")})

	// Paid history inside the grace window keeps a stale lastPaid from being flagged.
	_, err := env.History.CreateEntry(ctx, payroll.HistoryEntry{Date: date(2026, 3, 7), Type: payroll.EntryTypeCustom, Amount: dec("10"), Status: payroll.StatusPaid, Employee: "StaleButPaid"})
	require.NoError(t, err)

	overdue, err := env.Service.EmployeeOverdueScan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "NeverPaidBusy", overdue[0].Employee.Name)

	raised := env.Alerts.OfType(alerts.TypePayrollDue)
	require.Len(t, raised, 1)
	assert.Contains(t, raised[0].Message, "last paid never")
	assert.Equal(t, overdue[0].Employee.ID, raised[0].RecordKey)
}

func TestPreviousPeriod(t *testing.T) {
	monday := payroll.PreviousPeriod(now, time.Monday)
	assert.Equal(t, lastWeek, monday)

	sunday := payroll.PreviousPeriod(now, time.Sunday)
	assert.Equal(t, date(2026, 3, 1), sunday.Start)
	assert.Equal(t, date(2026, 3, 7), sunday.End)

	onStartDay := payroll.PreviousPeriod(date(2026, 3, 9), time.Monday)
	assert.Equal(t, lastWeek, onStartDay)
}

func TestEstimateAmountDue(t *testing.T) {
	env := payrolltest.NewEnv(now)
	ctx := context.Background()
	jane := env.Directory.Put(payroll.EmployeeRecord{Name: "Jane"})
	env.Jobs.Put(payroll.CompletedJob{JobID: "j1", Employee: "Jane", TotalRevenue: dec("100")})
	_, err := env.Service.SaveRow(ctx, payroll.CustomRow{Amount: dec("20"), PaymentType: payroll.PaymentBonus, Employee: "Jane"}, payroll.StatusPending)
	require.NoError(t, err)

	_, due, err := env.Service.AmountDue(ctx, jane.ID)
	require.NoError(t, err)
	assert.True(t, due.Equal(dec("120")), "got %s", due)

	_, err = env.Adjustments.AddAdjustment(ctx, jane.ID, dec("150"), "manual")
	require.NoError(t, err)
	_, due, err = env.Service.AmountDue(ctx, jane.ID)
	require.NoError(t, err)
	assert.True(t, due.IsZero(), "estimates never go negative")
}
