package payroll

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

func TestWorksheetGrossTotal(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	hourly := ws.AddHourlyRow()
	job := ws.AddJobRow()

	_, err := ws.ReplaceRow(hourly.ID, HourlyRow{EmployeeName: "Jane", Hours: d("8"), Rate: d("20"), Bonus: d("15")})
	require.NoError(t, err)
	_, err = ws.ReplaceRow(job.ID, JobRow{Amount: d("150")})
	require.NoError(t, err)

	assert.True(t, ws.GrossTotal().Equal(d("325")), "got %s", ws.GrossTotal())

	_, err = ws.RemoveRow(0)
	require.NoError(t, err)
	assert.True(t, ws.GrossTotal().Equal(d("150")), "total must follow row mutations")
}

func TestWorksheetUndoQuickAdd(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	job := CompletedJob{JobID: "job_123", Service: "Wash", Vehicle: "Civic", Customer: "Ann", TotalRevenue: d("80.00"), Status: JobStatusCompleted}

	row, token, err := ws.AddFromCompletedJob(job)
	require.NoError(t, err)
	jobRow := row.Row.(JobRow)
	assert.True(t, jobRow.Amount.Equal(d("80.00")))
	assert.Equal(t, "Wash - Civic - Ann", jobRow.Description)
	assert.Equal(t, "job_123", jobRow.JobRef)

	removed, err := ws.Undo(token)
	require.NoError(t, err)
	assert.Equal(t, row.ID, removed.ID)
	assert.Equal(t, 0, ws.Len())
	assert.True(t, ws.GrossTotal().IsZero())

	_, err = ws.Undo(token)
	assert.ErrorIs(t, err, ErrUndoExpired)
}

func TestWorksheetUndoRemovesOnlyItsRow(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	ws.AddHourlyRow()
	_, token, err := ws.AddFromCompletedJob(CompletedJob{JobID: "j1", TotalRevenue: d("50")})
	require.NoError(t, err)
	ws.AddCustomRow()

	_, err = ws.Undo(token)
	require.NoError(t, err)
	rows := ws.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, KindHourly, rows[0].Row.Kind())
	assert.Equal(t, KindCustom, rows[1].Row.Kind())
}

func TestWorksheetUndoExpiresOnPersist(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	_, token, err := ws.AddFromCompletedJob(CompletedJob{JobID: "j1", TotalRevenue: d("50")})
	require.NoError(t, err)
	ws.MarkPersisted()
	_, err = ws.Undo(token)
	assert.ErrorIs(t, err, ErrUndoExpired)
	assert.Equal(t, 1, ws.Len())
}

func TestWorksheetStagingGuards(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	_, _, err := ws.AddFromCompletedJob(CompletedJob{JobID: "paid", Paid: true})
	assert.ErrorIs(t, err, ErrJobAlreadyPaid)

	_, _, err = ws.AddFromCompletedJob(CompletedJob{JobID: "j1", TotalRevenue: d("10")})
	require.NoError(t, err)
	_, _, err = ws.AddFromCompletedJob(CompletedJob{JobID: "j1", TotalRevenue: d("10")})
	assert.ErrorIs(t, err, ErrJobAlreadyStaged)

	_, _, err = ws.AddFromCompletedJob(CompletedJob{JobID: "j2", Status: "in_progress"})
	assert.ErrorIs(t, err, ErrJobNotCompleted)

	other := ws.AddJobRow()
	_, err = ws.ReplaceRow(other.ID, JobRow{JobRef: "j1"})
	assert.ErrorIs(t, err, ErrJobAlreadyStaged)
}

func TestWorksheetDefaults(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	job := ws.AddJobRow().Row.(JobRow)
	assert.Equal(t, DateOnly(fixedNow()), job.Date)

	custom := ws.AddCustomRow().Row.(CustomRow)
	assert.Equal(t, PaymentBonus, custom.PaymentType)

	employee := EmployeeRecord{ID: "emp-1", Name: "Jane", FlatRate: d("22"), Bonuses: d("15")}
	hourly := ws.AddHourlyRowFor(employee).Row.(HourlyRow)
	assert.Equal(t, "Jane", hourly.EmployeeName)
	assert.True(t, hourly.Rate.Equal(d("22")))
	assert.True(t, hourly.Bonus.Equal(d("15")))
}

func TestWorksheetRemoveMissingRow(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	_, err := ws.RemoveRow(3)
	assert.True(t, errors.Is(err, ErrRowNotFound))
	_, err = ws.RemoveRowByID("nope")
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestWorksheetDropRowsKeepsOrder(t *testing.T) {
	ws := NewWorksheet(fixedNow)
	a := ws.AddJobRow()
	b := ws.AddHourlyRow()
	c := ws.AddCustomRow()
	ws.DropRows([]string{a.ID, c.ID})
	rows := ws.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0].ID)
}
