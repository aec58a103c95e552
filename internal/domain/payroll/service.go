package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/platform/archive"
)

type Deps struct {
	History     HistoryStore
	Jobs        JobStore
	Employees   EmployeeDirectory
	Adjustments AdjustmentStore
	Alerts      AlertSink
	Documents   DocumentArchive
	Expenses    ExpenseSink
	Cache       Cache
}

type Service struct {
	deps        Deps
	now         func() time.Time
	dedupWindow time.Duration
	recorder    Recorder

	subMu   sync.RWMutex
	subs    map[int]func(HistoryEvent)
	nextSub int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDedupWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.dedupWindow = window
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:        deps,
		now:         time.Now,
		dedupWindow: DefaultDedupWindow,
		recorder:    noopRecorder{},
		subs:        map[int]func(HistoryEvent){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) today() time.Time {
	return DateOnly(s.Now())
}

// NewWorksheet returns an empty worksheet sharing the service clock.
func (s *Service) NewWorksheet() *Worksheet {
	return NewWorksheet(s.Now)
}

// OnHistoryChanged registers cb for every committed create, update or delete. The returned
// function removes the subscription.
func (s *Service) OnHistoryChanged(cb func(HistoryEvent)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = cb
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Service) notify(kind string, entry HistoryEntry) {
	evt := HistoryEvent{Kind: kind, Entry: entry, At: s.Now()}
	s.subMu.RLock()
	callbacks := make([]func(HistoryEvent), 0, len(s.subs))
	for _, cb := range s.subs {
		callbacks = append(callbacks, cb)
	}
	s.subMu.RUnlock()
	for _, cb := range callbacks {
		cb(evt)
	}
}

type stepRecorder struct {
	svc    *Service
	result *WriteResult
}

func (r stepRecorder) run(step string, fn func() (string, error)) bool {
	detail, err := fn()
	if err != nil {
		r.svc.recorder.LedgerStepFailed(step)
		slog.Warn("payroll step failed", "step", step, "entryId", r.result.Entry.ID, "err", err)
		r.result.Steps = append(r.result.Steps, StepResult{Step: step, Error: err.Error()})
		return false
	}
	r.result.Steps = append(r.result.Steps, StepResult{Step: step, OK: true, Detail: detail})
	return true
}

func partialError(result WriteResult) error {
	if !result.Partial() {
		return nil
	}
	return fmt.Errorf("%w: %s failed", ErrPartialWrite, strings.Join(result.FailedSteps(), ", "))
}

// raiseUnlessDuplicate re-reads unread alerts at call time and writes the candidate only when
// rule finds nothing covering it.
func (s *Service) raiseUnlessDuplicate(ctx context.Context, candidate alerts.Candidate, rule alerts.Rule) (bool, error) {
	if s.deps.Alerts == nil {
		return false, nil
	}
	existing, err := s.deps.Alerts.ListUnread(ctx, alerts.Filter{Type: candidate.Type})
	if err != nil {
		return false, fmt.Errorf("list alerts: %w", err)
	}
	if !alerts.ShouldCreate(existing, candidate, rule, s.Now()) {
		s.recorder.AlertSuppressed(candidate.Type)
		return false, nil
	}
	if _, err := s.deps.Alerts.Raise(ctx, candidate); err != nil {
		return false, fmt.Errorf("raise alert: %w", err)
	}
	return true, nil
}

// archiveDocument is best-effort: failures come back as a warning, never an error.
func (s *Service) archiveDocument(ctx context.Context, doc archive.Document, render func() ([]byte, error)) (string, string) {
	if s.deps.Documents == nil {
		return "", ""
	}
	body, err := render()
	if err != nil {
		slog.Warn("payroll document render failed", "category", doc.Category, "err", err)
		return "", fmt.Sprintf("document could not be generated: %v", err)
	}
	doc.Body = body
	if doc.ContentType == "" {
		doc.ContentType = archive.ContentTypePDF
	}
	ref, err := s.deps.Documents.Archive(ctx, doc)
	if err != nil {
		slog.Warn("payroll document archive failed", "category", doc.Category, "err", err)
		return "", fmt.Sprintf("document could not be archived: %v", err)
	}
	return ref, ""
}

// resolveEmployee looks an employee up by id, falling back to the display name.
func (s *Service) resolveEmployee(ctx context.Context, ref, name string) (EmployeeRecord, error) {
	if s.deps.Employees == nil {
		return EmployeeRecord{}, ErrEmployeeNotFound
	}
	if ref != "" {
		return s.deps.Employees.GetEmployee(ctx, ref)
	}
	if strings.TrimSpace(name) == "" {
		return EmployeeRecord{}, ErrEmployeeNotFound
	}
	return s.deps.Employees.FindEmployeeByName(ctx, name)
}

func (s *Service) advanceLastPaid(ctx context.Context, employee EmployeeRecord, date time.Time) (string, error) {
	stored, err := s.deps.Employees.AdvanceLastPaid(ctx, employee.ID, DateOnly(date))
	if err != nil {
		return "", err
	}
	s.mirror(ctx, lastPaidKey(employee.ID), stored.Format(DateLayout))
	return "lastPaid " + stored.Format(DateLayout), nil
}

func (s *Service) mirror(ctx context.Context, key string, value any) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Set(ctx, key, value); err != nil {
		slog.Warn("payroll cache mirror failed", "key", key, "err", err)
	}
}

func lastPaidKey(employeeID string) string   { return "employees:" + employeeID + ":lastPaid" }
func adjustmentKey(employeeID string) string { return "adjustments:" + employeeID }
func employeeKey(employeeID string) string   { return "employees:" + employeeID }

// EmployeeForDefaults serves the cached employee snapshot used to pre-fill new rows, and
// refreshes it from the directory on a miss.
func (s *Service) EmployeeForDefaults(ctx context.Context, id string) (EmployeeRecord, error) {
	if s.deps.Cache != nil {
		var cached EmployeeRecord
		found, err := s.deps.Cache.Get(ctx, employeeKey(id), &cached)
		if err != nil {
			slog.Warn("payroll cache read failed", "key", employeeKey(id), "err", err)
		}
		if found && err == nil {
			return cached, nil
		}
	}
	employee, err := s.deps.Employees.GetEmployee(ctx, id)
	if err != nil {
		return EmployeeRecord{}, err
	}
	s.mirror(ctx, employeeKey(id), employee)
	return employee, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]EmployeeRecord, error) {
	return s.deps.Employees.ListEmployees(ctx)
}

func (s *Service) CreateEmployee(ctx context.Context, employee EmployeeRecord) (EmployeeRecord, error) {
	verr := &ValidationError{}
	employee.Name = strings.TrimSpace(employee.Name)
	if employee.Name == "" {
		verr.add("name", "is required")
	}
	if employee.FlatRate.IsNegative() {
		verr.add("flatRate", "must not be negative")
	}
	if employee.Bonuses.IsNegative() {
		verr.add("bonuses", "must not be negative")
	}
	for name, rate := range employee.JobRates {
		if rate.IsNegative() {
			verr.add("jobRates."+name, "must not be negative")
		}
	}
	if err := verr.orNil(); err != nil {
		return EmployeeRecord{}, err
	}
	created, err := s.deps.Employees.CreateEmployee(ctx, employee)
	if err != nil {
		return EmployeeRecord{}, err
	}
	s.mirror(ctx, employeeKey(created.ID), created)
	return created, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (CompletedJob, error) {
	return s.deps.Jobs.GetJob(ctx, id)
}

func (s *Service) ListUnpaidJobs(ctx context.Context, employee string) ([]CompletedJob, error) {
	return s.deps.Jobs.ListUnpaidJobs(ctx, employee)
}

func (s *Service) RecordJob(ctx context.Context, job CompletedJob) (CompletedJob, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(job.JobID) == "" {
		verr.add("jobId", "is required")
	}
	if job.TotalRevenue.IsNegative() {
		verr.add("totalRevenue", "must not be negative")
	}
	if err := verr.orNil(); err != nil {
		return CompletedJob{}, err
	}
	if job.Status == "" {
		job.Status = JobStatusCompleted
	}
	if job.FinishedAt.IsZero() {
		job.FinishedAt = s.Now()
	}
	job.Paid = false
	return s.deps.Jobs.CreateJob(ctx, job)
}

// StageCompletedJob adds a job to the worksheet at its revenue, or at the assigned employee's
// job rate with PriceByRate. The row is linked to the employee when they are in the directory.
func (s *Service) StageCompletedJob(ctx context.Context, ws *Worksheet, jobID string, pricing JobPricing) (WorksheetRow, string, error) {
	if pricing == "" {
		pricing = PriceByRevenue
	}
	if !pricing.Valid() {
		return WorksheetRow{}, "", &ValidationError{Issues: []FieldIssue{{Field: "priceBy", Message: "must be revenue or rate"}}}
	}
	job, err := s.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return WorksheetRow{}, "", err
	}
	if strings.TrimSpace(job.Employee) != "" {
		employee, err := s.resolveEmployee(ctx, "", job.Employee)
		switch {
		case err == nil:
			return ws.AddFromCompletedJobFor(job, employee, pricing)
		case !errors.Is(err, ErrEmployeeNotFound):
			return WorksheetRow{}, "", err
		}
	}
	return ws.AddFromCompletedJob(job)
}
