package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the Postgres-backed history ledger, completed-job store, employee directory and
// adjustment bucket.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const historyColumns = `id, entry_date, type, description, amount, status, employee,
    COALESCE(job_ref, ''), COALESCE(document_ref, ''), created_at, updated_at`

func scanEntry(row pgx.Row) (HistoryEntry, error) {
	var e HistoryEntry
	err := row.Scan(&e.ID, &e.Date, &e.Type, &e.Description, &e.Amount, &e.Status, &e.Employee, &e.JobRef, &e.DocumentRef, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func (s *Store) CreateEntry(ctx context.Context, e HistoryEntry) (HistoryEntry, error) {
	return scanEntry(s.DB.QueryRow(ctx, `
    INSERT INTO payroll_history (entry_date, type, description, amount, status, employee, job_ref, document_ref)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING `+historyColumns,
		e.Date, e.Type, e.Description, e.Amount, e.Status, e.Employee, nullIfEmpty(e.JobRef), nullIfEmpty(e.DocumentRef)))
}

func (s *Store) GetEntry(ctx context.Context, id string) (HistoryEntry, error) {
	e, err := scanEntry(s.DB.QueryRow(ctx, `SELECT `+historyColumns+` FROM payroll_history WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return HistoryEntry{}, ErrEntryNotFound
	}
	return e, err
}

func buildHistoryQuery(filter HistoryFilter) (string, []any) {
	query := `SELECT ` + historyColumns + ` FROM payroll_history WHERE 1=1`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	if v := strings.TrimSpace(filter.Employee); v != "" {
		add(" AND lower(employee) = lower($%d)", v)
	}
	if v := strings.TrimSpace(filter.Type); v != "" {
		add(" AND lower(type) = lower($%d)", v)
	}
	if filter.Status != "" {
		add(" AND status = $%d", filter.Status)
	}
	if filter.DateStart != nil {
		add(" AND entry_date >= $%d", DateOnly(*filter.DateStart))
	}
	if filter.DateEnd != nil {
		add(" AND entry_date <= $%d", DateOnly(*filter.DateEnd))
	}
	if v := strings.TrimSpace(filter.Text); v != "" {
		args = append(args, "%"+escapeLike(v)+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (description ILIKE $%d OR type ILIKE $%d)", n, n)
	}
	query += " ORDER BY entry_date DESC, created_at DESC"
	return query, args
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func (s *Store) QueryEntries(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	query, args := buildHistoryQuery(filter)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEntry(ctx context.Context, id string, patch HistoryPatch) (HistoryEntry, error) {
	var amount, entryType, description any
	if patch.Amount != nil {
		amount = *patch.Amount
	}
	if patch.Type != nil {
		entryType = *patch.Type
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	e, err := scanEntry(s.DB.QueryRow(ctx, `
    UPDATE payroll_history
    SET amount = COALESCE($2::numeric, amount),
        type = COALESCE($3::text, type),
        description = COALESCE($4::text, description),
        updated_at = now()
    WHERE id::text = $1
    RETURNING `+historyColumns, id, amount, entryType, description))
	if errors.Is(err, pgx.ErrNoRows) {
		return HistoryEntry{}, ErrEntryNotFound
	}
	return e, err
}

func (s *Store) SetDocumentRef(ctx context.Context, id, ref string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE payroll_history SET document_ref = $2, updated_at = now() WHERE id::text = $1`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM payroll_history WHERE id::text = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *Store) HasPaidBetween(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM payroll_history
      WHERE status = $1 AND entry_date BETWEEN $2 AND $3
    )
  `, StatusPaid, DateOnly(start), DateOnly(end)).Scan(&exists)
	return exists, err
}

func (s *Store) HasPaidForEmployeeSince(ctx context.Context, employee string, since time.Time) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM payroll_history
      WHERE status = $1 AND lower(employee) = lower($2) AND entry_date >= $3
    )
  `, StatusPaid, employee, DateOnly(since)).Scan(&exists)
	return exists, err
}

func (s *Store) PendingTotal(ctx context.Context, employee string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(amount), 0)
    FROM payroll_history
    WHERE status = $1 AND lower(employee) = lower($2)
  `, StatusPending, employee).Scan(&total)
	return total, err
}

const jobColumns = `id, employee, service, vehicle, customer, finished_at, total_revenue, status, paid`

func scanJob(row pgx.Row) (CompletedJob, error) {
	var j CompletedJob
	err := row.Scan(&j.JobID, &j.Employee, &j.Service, &j.Vehicle, &j.Customer, &j.FinishedAt, &j.TotalRevenue, &j.Status, &j.Paid)
	return j, err
}

func (s *Store) GetJob(ctx context.Context, id string) (CompletedJob, error) {
	j, err := scanJob(s.DB.QueryRow(ctx, `SELECT `+jobColumns+` FROM completed_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CompletedJob{}, ErrJobNotFound
	}
	return j, err
}

func (s *Store) CreateJob(ctx context.Context, job CompletedJob) (CompletedJob, error) {
	return scanJob(s.DB.QueryRow(ctx, `
    INSERT INTO completed_jobs (id, employee, service, vehicle, customer, finished_at, total_revenue, status, paid)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING `+jobColumns,
		job.JobID, job.Employee, job.Service, job.Vehicle, job.Customer, job.FinishedAt, job.TotalRevenue, job.Status, job.Paid))
}

func (s *Store) ListUnpaidJobs(ctx context.Context, employee string) ([]CompletedJob, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+jobColumns+`
    FROM completed_jobs
    WHERE paid = false AND status = $1 AND ($2 = '' OR lower(employee) = lower($2))
    ORDER BY finished_at
  `, JobStatusCompleted, strings.TrimSpace(employee))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompletedJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) setJobPaid(ctx context.Context, id string, paid bool) error {
	tag, err := s.DB.Exec(ctx, `UPDATE completed_jobs SET paid = $2 WHERE id = $1`, id, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Store) MarkJobPaid(ctx context.Context, id string) error {
	return s.setJobPaid(ctx, id, true)
}

func (s *Store) MarkJobUnpaid(ctx context.Context, id string) error {
	return s.setJobPaid(ctx, id, false)
}

const employeeColumns = `id, name, email, flat_rate, bonuses, payment_by_job, last_paid`

func scanEmployee(row pgx.Row) (EmployeeRecord, error) {
	var e EmployeeRecord
	var flatRate, bonuses decimal.NullDecimal
	var lastPaid *time.Time
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &flatRate, &bonuses, &e.PaymentByJob, &lastPaid); err != nil {
		return EmployeeRecord{}, err
	}
	e.FlatRate = flatRate.Decimal
	e.Bonuses = bonuses.Decimal
	e.LastPaid = lastPaid
	return e, nil
}

func (s *Store) jobRates(ctx context.Context, employeeIDs []string) (map[string]map[string]decimal.Decimal, error) {
	out := map[string]map[string]decimal.Decimal{}
	if len(employeeIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT employee_id::text, name, rate
    FROM employee_job_rates
    WHERE employee_id::text = ANY($1)
  `, employeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var employeeID, name string
		var rate decimal.Decimal
		if err := rows.Scan(&employeeID, &name, &rate); err != nil {
			return nil, err
		}
		if out[employeeID] == nil {
			out[employeeID] = map[string]decimal.Decimal{}
		}
		out[employeeID][name] = rate
	}
	return out, rows.Err()
}

func (s *Store) ListEmployees(ctx context.Context) ([]EmployeeRecord, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var out []EmployeeRecord
	var ids []string
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rates, err := s.jobRates(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].JobRates = rates[out[i].ID]
	}
	return out, nil
}

func (s *Store) loadEmployee(ctx context.Context, where string, arg string) (EmployeeRecord, error) {
	e, err := scanEmployee(s.DB.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return EmployeeRecord{}, ErrEmployeeNotFound
	}
	if err != nil {
		return EmployeeRecord{}, err
	}
	rates, err := s.jobRates(ctx, []string{e.ID})
	if err != nil {
		return EmployeeRecord{}, err
	}
	e.JobRates = rates[e.ID]
	return e, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (EmployeeRecord, error) {
	return s.loadEmployee(ctx, "id::text = $1", id)
}

func (s *Store) FindEmployeeByName(ctx context.Context, name string) (EmployeeRecord, error) {
	return s.loadEmployee(ctx, "lower(name) = lower($1)", strings.TrimSpace(name))
}

func (s *Store) CreateEmployee(ctx context.Context, e EmployeeRecord) (EmployeeRecord, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return EmployeeRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var flatRate, bonuses any
	if !e.FlatRate.IsZero() {
		flatRate = e.FlatRate
	}
	if !e.Bonuses.IsZero() {
		bonuses = e.Bonuses
	}
	created, err := scanEmployee(tx.QueryRow(ctx, `
    INSERT INTO employees (name, email, flat_rate, bonuses, payment_by_job, last_paid)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING `+employeeColumns, e.Name, e.Email, flatRate, bonuses, e.PaymentByJob, e.LastPaid))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return EmployeeRecord{}, ErrDuplicateEmployee
		}
		return EmployeeRecord{}, err
	}
	for name, rate := range e.JobRates {
		if _, err := tx.Exec(ctx, `
      INSERT INTO employee_job_rates (employee_id, name, rate)
      VALUES ($1,$2,$3)
    `, created.ID, name, rate); err != nil {
			return EmployeeRecord{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return EmployeeRecord{}, err
	}
	created.JobRates = e.JobRates
	return created, nil
}

func (s *Store) AdvanceLastPaid(ctx context.Context, id string, date time.Time) (time.Time, error) {
	var stored time.Time
	err := s.DB.QueryRow(ctx, `
    UPDATE employees
    SET last_paid = GREATEST(COALESCE(last_paid, $2::date), $2::date)
    WHERE id::text = $1
    RETURNING last_paid
  `, id, DateOnly(date)).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrEmployeeNotFound
	}
	return stored, err
}

func (s *Store) AddAdjustment(ctx context.Context, employeeID string, amount decimal.Decimal, reference string) (Adjustment, error) {
	adj := Adjustment{EmployeeID: employeeID, Amount: amount, Reference: reference}
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employee_adjustments (employee_id, amount, reference)
    VALUES ($1::uuid,$2,$3)
    RETURNING id, created_at
  `, employeeID, amount, reference).Scan(&adj.ID, &adj.CreatedAt)
	return adj, err
}

func (s *Store) AdjustmentTotal(ctx context.Context, employeeID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(amount), 0)
    FROM employee_adjustments
    WHERE employee_id::text = $1
  `, employeeID).Scan(&total)
	return total, err
}
