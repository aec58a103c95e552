package payroll

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WorksheetRow struct {
	ID  string
	Row PayRow
}

// Worksheet is the unsaved staging area for one pay period. It never calls a store; rows only
// become history through the ledger writer.
type Worksheet struct {
	mu   sync.Mutex
	rows []WorksheetRow
	undo map[string]string
	now  func() time.Time
}

func NewWorksheet(now func() time.Time) *Worksheet {
	if now == nil {
		now = time.Now
	}
	return &Worksheet{undo: map[string]string{}, now: now}
}

func (w *Worksheet) append(row PayRow) WorksheetRow {
	item := WorksheetRow{ID: uuid.NewString(), Row: row}
	w.rows = append(w.rows, item)
	return item
}

func (w *Worksheet) AddJobRow() WorksheetRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(JobRow{Date: DateOnly(w.now())})
}

func (w *Worksheet) AddHourlyRow() WorksheetRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(HourlyRow{})
}

func (w *Worksheet) AddCustomRow() WorksheetRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(CustomRow{PaymentType: PaymentBonus, Date: DateOnly(w.now())})
}

// AddHourlyRowFor pre-fills rate and standing bonus from the employee's pay terms.
func (w *Worksheet) AddHourlyRowFor(employee EmployeeRecord) WorksheetRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(HourlyRow{
		EmployeeName: employee.Name,
		EmployeeRef:  employee.ID,
		Rate:         employee.FlatRate,
		Bonus:        employee.Bonuses,
	})
}

// AddFromCompletedJob stages a job at its revenue and returns an undo token that stays valid
// until the next persistence action.
func (w *Worksheet) AddFromCompletedJob(job CompletedJob) (WorksheetRow, string, error) {
	return w.addJob(job, job.TotalRevenue, "")
}

// AddFromCompletedJobFor stages a job linked to the assigned employee.
func (w *Worksheet) AddFromCompletedJobFor(job CompletedJob, employee EmployeeRecord, pricing JobPricing) (WorksheetRow, string, error) {
	amount := job.TotalRevenue
	if pricing == PriceByRate {
		amount = JobPayFor(employee, job)
	}
	return w.addJob(job, amount, employee.ID)
}

func (w *Worksheet) addJob(job CompletedJob, amount decimal.Decimal, employeeRef string) (WorksheetRow, string, error) {
	if job.Paid {
		return WorksheetRow{}, "", ErrJobAlreadyPaid
	}
	if job.Status != "" && !strings.EqualFold(job.Status, JobStatusCompleted) {
		return WorksheetRow{}, "", ErrJobNotCompleted
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stagedLocked(job.JobID, "") {
		return WorksheetRow{}, "", ErrJobAlreadyStaged
	}
	item := w.append(JobRow{
		Amount:      amount,
		Description: JobDescription(job),
		Date:        DateOnly(job.FinishedAt),
		Employee:    job.Employee,
		EmployeeRef: employeeRef,
		JobRef:      job.JobID,
	})
	token := uuid.NewString()
	w.undo[token] = item.ID
	return item, token, nil
}

// Undo removes exactly the row a quick-add created.
func (w *Worksheet) Undo(token string) (WorksheetRow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rowID, ok := w.undo[token]
	if !ok {
		return WorksheetRow{}, ErrUndoExpired
	}
	delete(w.undo, token)
	idx := w.indexLocked(rowID)
	if idx < 0 {
		return WorksheetRow{}, ErrUndoExpired
	}
	return w.removeLocked(idx), nil
}

func (w *Worksheet) RemoveRow(index int) (WorksheetRow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.rows) {
		return WorksheetRow{}, ErrRowNotFound
	}
	return w.removeLocked(index), nil
}

func (w *Worksheet) RemoveRowByID(id string) (WorksheetRow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexLocked(id)
	if idx < 0 {
		return WorksheetRow{}, ErrRowNotFound
	}
	return w.removeLocked(idx), nil
}

// ReplaceRow swaps a row's content in place, keeping its id and position.
func (w *Worksheet) ReplaceRow(id string, row PayRow) (WorksheetRow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexLocked(id)
	if idx < 0 {
		return WorksheetRow{}, ErrRowNotFound
	}
	if job, ok := row.(JobRow); ok && job.JobRef != "" && w.stagedLocked(job.JobRef, id) {
		return WorksheetRow{}, ErrJobAlreadyStaged
	}
	w.rows[idx].Row = row
	return w.rows[idx], nil
}

func (w *Worksheet) Rows() []WorksheetRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WorksheetRow, len(w.rows))
	copy(out, w.rows)
	return out
}

func (w *Worksheet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

// GrossTotal is recomputed from the rows on every call.
func (w *Worksheet) GrossTotal() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := decimal.Zero
	for _, item := range w.rows {
		total = total.Add(Pay(item.Row))
	}
	return total
}

// MarkPersisted invalidates every outstanding undo token.
func (w *Worksheet) MarkPersisted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.undo = map[string]string{}
}

// DropRows removes rows that were written to the ledger.
func (w *Worksheet) DropRows(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.rows[:0]
	for _, item := range w.rows {
		if !drop[item.ID] {
			kept = append(kept, item)
		}
	}
	w.rows = kept
}

func (w *Worksheet) indexLocked(id string) int {
	for i, item := range w.rows {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (w *Worksheet) removeLocked(idx int) WorksheetRow {
	item := w.rows[idx]
	w.rows = append(w.rows[:idx], w.rows[idx+1:]...)
	return item
}

func (w *Worksheet) stagedLocked(jobRef, exceptRowID string) bool {
	if jobRef == "" {
		return false
	}
	for _, item := range w.rows {
		if item.ID == exceptRowID {
			continue
		}
		if job, ok := item.Row.(JobRow); ok && job.JobRef == jobRef {
			return true
		}
	}
	return false
}
