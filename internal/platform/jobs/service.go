package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"detailpay/internal/domain/payroll"
	"detailpay/internal/platform/config"
)

const (
	JobEmployeeOverdue = "payroll_employee_overdue"
	JobPeriodOverdue   = "payroll_period_overdue"
)

// Scanner is the part of the payroll service the schedulers drive.
type Scanner interface {
	Now() time.Time
	EmployeeOverdueScan(ctx context.Context, grace time.Duration) ([]payroll.OverdueEmployee, error)
	PeriodOverdueScan(ctx context.Context, period payroll.Period) (bool, error)
}

// RunLog persists one row per job execution.
type RunLog interface {
	Start(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	Runs    RunLog
	Cfg     config.Config
	Payroll Scanner
	queue   chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(runs RunLog, cfg config.Config, scanner Scanner) *Service {
	return &Service{
		Runs:    runs,
		Cfg:     cfg,
		Payroll: scanner,
		queue:   make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.OverdueScanInterval > 0 {
		go s.schedule(ctx, s.Cfg.OverdueScanInterval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.Runs != nil {
		id, err := s.Runs.Start(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Runs.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobEmployeeOverdue, s.EmployeeOverdue)
			s.Enqueue(JobPeriodOverdue, s.PeriodOverdue)
		}
	}
}

// EmployeeOverdue runs the per-employee scan with the configured grace period.
func (s *Service) EmployeeOverdue(ctx context.Context) (any, error) {
	flagged, err := s.Payroll.EmployeeOverdueScan(ctx, s.Cfg.OverdueGracePeriod)
	names := make([]string, 0, len(flagged))
	raised := 0
	for _, item := range flagged {
		names = append(names, item.Employee.Name)
		if item.AlertRaised {
			raised++
		}
	}
	return map[string]any{"overdue": names, "alertsRaised": raised}, err
}

// PeriodOverdue checks the last full pay period.
func (s *Service) PeriodOverdue(ctx context.Context) (any, error) {
	period := payroll.PreviousPeriod(s.Payroll.Now(), s.Cfg.PayPeriodStartDay)
	overdue, err := s.Payroll.PeriodOverdueScan(ctx, period)
	return map[string]any{
		"periodStart": period.Start.Format(payroll.DateLayout),
		"periodEnd":   period.End.Format(payroll.DateLayout),
		"overdue":     overdue,
	}, err
}

type PGRunLog struct {
	DB *pgxpool.Pool
}

func NewRunLog(db *pgxpool.Pool) *PGRunLog {
	return &PGRunLog{DB: db}
}

func (l *PGRunLog) Start(ctx context.Context, jobType string) (string, error) {
	var runID string
	err := l.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, jobType, "running").Scan(&runID)
	return runID, err
}

func (l *PGRunLog) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := l.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
