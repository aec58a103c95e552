package payrollhandler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"detailpay/internal/domain/audit"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

type employeePayload struct {
	Name         string                     `json:"name" validate:"required,max=200"`
	Email        string                     `json:"email" validate:"omitempty,email"`
	FlatRate     decimal.Decimal            `json:"flatRate"`
	Bonuses      decimal.Decimal            `json:"bonuses"`
	PaymentByJob bool                       `json:"paymentByJob"`
	JobRates     map[string]decimal.Decimal `json:"jobRates"`
}

type jobPayload struct {
	JobID        string          `json:"jobId" validate:"required"`
	Employee     string          `json:"employee"`
	Service      string          `json:"service"`
	Vehicle      string          `json:"vehicle"`
	Customer     string          `json:"customer"`
	FinishedAt   *time.Time      `json:"finishedAt"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

type amountDueResponse struct {
	Employee  payroll.EmployeeRecord `json:"employee"`
	AmountDue decimal.Decimal        `json:"amountDue"`
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Payroll.ListEmployees(r.Context())
	if err != nil {
		failService(w, r, err, "employees_list_failed", "failed to list employees")
		return
	}
	api.Success(w, employees, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var payload employeePayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	created, err := h.Payroll.CreateEmployee(r.Context(), payroll.EmployeeRecord{
		Name:         payload.Name,
		Email:        payload.Email,
		FlatRate:     payload.FlatRate,
		Bonuses:      payload.Bonuses,
		PaymentByJob: payload.PaymentByJob,
		JobRates:     payload.JobRates,
	})
	if err != nil {
		failService(w, r, err, "employee_create_failed", "failed to create employee")
		return
	}
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAmountDue(w http.ResponseWriter, r *http.Request) {
	employee, due, err := h.Payroll.AmountDue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failService(w, r, err, "amount_due_failed", "failed to estimate amount due")
		return
	}
	api.Success(w, amountDueResponse{Employee: employee, AmountDue: due}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListUnpaidJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Payroll.ListUnpaidJobs(r.Context(), r.URL.Query().Get("employee"))
	if err != nil {
		failService(w, r, err, "jobs_list_failed", "failed to list unpaid jobs")
		return
	}
	api.Success(w, jobs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRecordJob(w http.ResponseWriter, r *http.Request) {
	var payload jobPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	job := payroll.CompletedJob{
		JobID:        payload.JobID,
		Employee:     payload.Employee,
		Service:      payload.Service,
		Vehicle:      payload.Vehicle,
		Customer:     payload.Customer,
		TotalRevenue: payload.TotalRevenue,
	}
	if payload.FinishedAt != nil {
		job.FinishedAt = *payload.FinishedAt
	}
	created, err := h.Payroll.RecordJob(r.Context(), job)
	if err != nil {
		failService(w, r, err, "job_record_failed", "failed to record job")
		return
	}
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReopenJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	before, err := h.Payroll.GetJob(r.Context(), jobID)
	if err != nil {
		failService(w, r, err, "job_reopen_failed", "failed to reopen job")
		return
	}
	job, err := h.Payroll.ReopenJob(r.Context(), jobID)
	if err != nil && job.JobID == "" {
		failService(w, r, err, "job_reopen_failed", "failed to reopen job")
		return
	}
	h.audit(r, audit.ActionJobReopen, "completed_job", jobID, before, job)
	respondWrite(w, r, http.StatusOK, job, err)
}
