// Package payrolltest provides in-memory collaborators for the payroll service.
package payrolltest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"detailpay/internal/domain/accounting"
	"detailpay/internal/domain/alerts"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/platform/archive"
)

// Faults lets a test make a named method fail.
type Faults struct {
	mu   sync.Mutex
	errs map[string]error
}

func (f *Faults) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	f.errs[method] = err
}

func (f *Faults) Clear(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, method)
}

func (f *Faults) err(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

type History struct {
	Faults
	mu      sync.Mutex
	seq     int
	entries []payroll.HistoryEntry
	// FailAfter makes CreateEntry fail once this many entries were created; zero disables it.
	FailAfter int
	created   int
}

func (h *History) CreateEntry(_ context.Context, e payroll.HistoryEntry) (payroll.HistoryEntry, error) {
	if err := h.err("CreateEntry"); err != nil {
		return payroll.HistoryEntry{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailAfter > 0 && h.created >= h.FailAfter {
		return payroll.HistoryEntry{}, errors.New("history store unavailable")
	}
	h.seq++
	h.created++
	e.ID = fmt.Sprintf("entry-%d", h.seq)
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	h.entries = append(h.entries, e)
	return e, nil
}

func (h *History) GetEntry(_ context.Context, id string) (payroll.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return payroll.HistoryEntry{}, payroll.ErrEntryNotFound
}

func (h *History) QueryEntries(_ context.Context, filter payroll.HistoryFilter) ([]payroll.HistoryEntry, error) {
	if err := h.err("QueryEntries"); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []payroll.HistoryEntry
	for _, e := range h.entries {
		if payroll.MatchesFilter(e, filter) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (h *History) UpdateEntry(_ context.Context, id string, patch payroll.HistoryPatch) (payroll.HistoryEntry, error) {
	if err := h.err("UpdateEntry"); err != nil {
		return payroll.HistoryEntry{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.entries {
		if h.entries[i].ID != id {
			continue
		}
		if patch.Amount != nil {
			h.entries[i].Amount = *patch.Amount
		}
		if patch.Type != nil {
			h.entries[i].Type = *patch.Type
		}
		if patch.Description != nil {
			h.entries[i].Description = *patch.Description
		}
		h.entries[i].UpdatedAt = time.Now().UTC()
		return h.entries[i], nil
	}
	return payroll.HistoryEntry{}, payroll.ErrEntryNotFound
}

func (h *History) SetDocumentRef(_ context.Context, id, ref string) error {
	if err := h.err("SetDocumentRef"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.entries {
		if h.entries[i].ID == id {
			h.entries[i].DocumentRef = ref
			return nil
		}
	}
	return payroll.ErrEntryNotFound
}

func (h *History) DeleteEntry(_ context.Context, id string) error {
	if err := h.err("DeleteEntry"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.entries {
		if h.entries[i].ID == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return nil
		}
	}
	return payroll.ErrEntryNotFound
}

func (h *History) HasPaidBetween(_ context.Context, start, end time.Time) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		d := payroll.DateOnly(e.Date)
		if e.Status == payroll.StatusPaid && !d.Before(payroll.DateOnly(start)) && !d.After(payroll.DateOnly(end)) {
			return true, nil
		}
	}
	return false, nil
}

func (h *History) HasPaidForEmployeeSince(_ context.Context, employee string, since time.Time) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.Status == payroll.StatusPaid && strings.EqualFold(e.Employee, employee) && !payroll.DateOnly(e.Date).Before(payroll.DateOnly(since)) {
			return true, nil
		}
	}
	return false, nil
}

func (h *History) PendingTotal(_ context.Context, employee string) (decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := decimal.Zero
	for _, e := range h.entries {
		if e.Status == payroll.StatusPending && strings.EqualFold(e.Employee, employee) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (h *History) All() []payroll.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]payroll.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

type Jobs struct {
	Faults
	mu   sync.Mutex
	jobs map[string]payroll.CompletedJob
}

func (j *Jobs) Put(job payroll.CompletedJob) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.jobs == nil {
		j.jobs = map[string]payroll.CompletedJob{}
	}
	if job.Status == "" {
		job.Status = payroll.JobStatusCompleted
	}
	j.jobs[job.JobID] = job
}

func (j *Jobs) GetJob(_ context.Context, id string) (payroll.CompletedJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return payroll.CompletedJob{}, payroll.ErrJobNotFound
	}
	return job, nil
}

func (j *Jobs) CreateJob(_ context.Context, job payroll.CompletedJob) (payroll.CompletedJob, error) {
	if err := j.err("CreateJob"); err != nil {
		return payroll.CompletedJob{}, err
	}
	j.Put(job)
	return job, nil
}

func (j *Jobs) ListUnpaidJobs(_ context.Context, employee string) ([]payroll.CompletedJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []payroll.CompletedJob
	for _, job := range j.jobs {
		if job.Paid || job.Status != payroll.JobStatusCompleted {
			continue
		}
		if employee != "" && !strings.EqualFold(job.Employee, employee) {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobID < out[b].JobID })
	return out, nil
}

func (j *Jobs) setPaid(id string, paid bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return payroll.ErrJobNotFound
	}
	job.Paid = paid
	j.jobs[id] = job
	return nil
}

func (j *Jobs) MarkJobPaid(_ context.Context, id string) error {
	if err := j.err("MarkJobPaid"); err != nil {
		return err
	}
	return j.setPaid(id, true)
}

func (j *Jobs) MarkJobUnpaid(_ context.Context, id string) error {
	if err := j.err("MarkJobUnpaid"); err != nil {
		return err
	}
	return j.setPaid(id, false)
}

type Directory struct {
	Faults
	mu        sync.Mutex
	employees []payroll.EmployeeRecord
}

func (d *Directory) Put(e payroll.EmployeeRecord) payroll.EmployeeRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.ID == "" {
		e.ID = fmt.Sprintf("emp-%d", len(d.employees)+1)
	}
	d.employees = append(d.employees, e)
	return e
}

func (d *Directory) ListEmployees(_ context.Context) ([]payroll.EmployeeRecord, error) {
	if err := d.err("ListEmployees"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]payroll.EmployeeRecord, len(d.employees))
	copy(out, d.employees)
	return out, nil
}

func (d *Directory) GetEmployee(_ context.Context, id string) (payroll.EmployeeRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.employees {
		if e.ID == id {
			return e, nil
		}
	}
	return payroll.EmployeeRecord{}, payroll.ErrEmployeeNotFound
}

func (d *Directory) FindEmployeeByName(_ context.Context, name string) (payroll.EmployeeRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.employees {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			return e, nil
		}
	}
	return payroll.EmployeeRecord{}, payroll.ErrEmployeeNotFound
}

func (d *Directory) CreateEmployee(ctx context.Context, e payroll.EmployeeRecord) (payroll.EmployeeRecord, error) {
	if _, err := d.FindEmployeeByName(ctx, e.Name); err == nil {
		return payroll.EmployeeRecord{}, payroll.ErrDuplicateEmployee
	}
	return d.Put(e), nil
}

func (d *Directory) AdvanceLastPaid(_ context.Context, id string, date time.Time) (time.Time, error) {
	if err := d.err("AdvanceLastPaid"); err != nil {
		return time.Time{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.employees {
		if d.employees[i].ID != id {
			continue
		}
		current := d.employees[i].LastPaid
		if current == nil || date.After(*current) {
			next := date
			d.employees[i].LastPaid = &next
		}
		return *d.employees[i].LastPaid, nil
	}
	return time.Time{}, payroll.ErrEmployeeNotFound
}

type Adjustments struct {
	Faults
	mu    sync.Mutex
	items []payroll.Adjustment
}

func (a *Adjustments) AddAdjustment(_ context.Context, employeeID string, amount decimal.Decimal, reference string) (payroll.Adjustment, error) {
	if err := a.err("AddAdjustment"); err != nil {
		return payroll.Adjustment{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	adj := payroll.Adjustment{ID: fmt.Sprintf("adj-%d", len(a.items)+1), EmployeeID: employeeID, Amount: amount, Reference: reference, CreatedAt: time.Now().UTC()}
	a.items = append(a.items, adj)
	return adj, nil
}

func (a *Adjustments) AdjustmentTotal(_ context.Context, employeeID string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := decimal.Zero
	for _, adj := range a.items {
		if adj.EmployeeID == employeeID {
			total = total.Add(adj.Amount)
		}
	}
	return total, nil
}

// Alerts is an in-memory alert sink whose timestamps follow Now.
type Alerts struct {
	Faults
	mu    sync.Mutex
	items []alerts.Alert
	Now   func() time.Time
}

func (a *Alerts) Raise(_ context.Context, c alerts.Candidate) (alerts.Alert, error) {
	if err := a.err("Raise"); err != nil {
		return alerts.Alert{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now().UTC()
	if a.Now != nil {
		now = a.Now()
	}
	alert := alerts.Alert{
		ID:         fmt.Sprintf("alert-%d", len(a.items)+1),
		Type:       c.Type,
		Message:    c.Message,
		Source:     c.Source,
		Payload:    c.Payload,
		RecordType: c.RecordType,
		RecordKey:  c.RecordKey,
		Timestamp:  now,
	}
	a.items = append(a.items, alert)
	return alert, nil
}

func (a *Alerts) ListUnread(_ context.Context, f alerts.Filter) ([]alerts.Alert, error) {
	if err := a.err("ListUnread"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []alerts.Alert
	for _, alert := range a.items {
		if alert.Read {
			continue
		}
		if f.Type != "" && alert.Type != f.Type {
			continue
		}
		if f.RecordType != "" && alert.RecordType != f.RecordType {
			continue
		}
		if f.RecordKey != "" && alert.RecordKey != f.RecordKey {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

func (a *Alerts) DismissByKey(_ context.Context, recordType, recordKey string) (int64, error) {
	if err := a.err("DismissByKey"); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for i := range a.items {
		if !a.items[i].Read && a.items[i].RecordType == recordType && a.items[i].RecordKey == recordKey {
			a.items[i].Read = true
			n++
		}
	}
	return n, nil
}

func (a *Alerts) MarkRead(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.items {
		if a.items[i].ID == id {
			a.items[i].Read = true
			return nil
		}
	}
	return alerts.ErrNotFound
}

// OfType returns every alert of the given type, read or not.
func (a *Alerts) OfType(alertType string) []alerts.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []alerts.Alert
	for _, alert := range a.items {
		if alert.Type == alertType {
			out = append(out, alert)
		}
	}
	return out
}

type Archive struct {
	Faults
	mu   sync.Mutex
	Docs []archive.Document
}

func (a *Archive) Archive(_ context.Context, doc archive.Document) (string, error) {
	if err := a.err("Archive"); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Docs = append(a.Docs, doc)
	return fmt.Sprintf("mem://%s/%s", doc.Category, doc.FileName), nil
}

func (a *Archive) Count(category string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, doc := range a.Docs {
		if doc.Category == category {
			n++
		}
	}
	return n
}

type Expenses struct {
	Faults
	mu    sync.Mutex
	Items []accounting.Expense
}

func (e *Expenses) RecordExpense(_ context.Context, expense accounting.Expense) (accounting.Expense, error) {
	if err := e.err("RecordExpense"); err != nil {
		return accounting.Expense{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	expense.ID = fmt.Sprintf("exp-%d", len(e.Items)+1)
	e.Items = append(e.Items, expense)
	return expense, nil
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env bundles every fake with a service wired to them.
type Env struct {
	Clock       *Clock
	History     *History
	Jobs        *Jobs
	Directory   *Directory
	Adjustments *Adjustments
	Alerts      *Alerts
	Archive     *Archive
	Expenses    *Expenses
	Cache       *Cache
	Service     *payroll.Service
}

func NewEnv(now time.Time, opts ...payroll.Option) *Env {
	clock := NewClock(now)
	env := &Env{
		Clock:       clock,
		History:     &History{},
		Jobs:        &Jobs{},
		Directory:   &Directory{},
		Adjustments: &Adjustments{},
		Alerts:      &Alerts{Now: clock.Now},
		Archive:     &Archive{},
		Expenses:    &Expenses{},
		Cache:       NewCache(),
	}
	opts = append([]payroll.Option{payroll.WithClock(clock.Now)}, opts...)
	env.Service = payroll.NewService(env.Deps(), opts...)
	return env
}

func (e *Env) Deps() payroll.Deps {
	return payroll.Deps{
		History:     e.History,
		Jobs:        e.Jobs,
		Employees:   e.Directory,
		Adjustments: e.Adjustments,
		Alerts:      e.Alerts,
		Documents:   e.Archive,
		Expenses:    e.Expenses,
		Cache:       e.Cache,
	}
}
