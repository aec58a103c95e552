package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"detailpay/internal/domain/audit"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/platform/jobs"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

const (
	endpointFinalize = "payroll.finalize"
	endpointPayment  = "payroll.payment"
)

type saveRowPayload struct {
	Status string          `json:"status" validate:"required,oneof=Paid Pending"`
	Row    json.RawMessage `json:"row" validate:"required"`
}

type createHistoryPayload struct {
	Status string            `json:"status" validate:"required,oneof=Paid Pending"`
	Rows   []json.RawMessage `json:"rows" validate:"required,min=1"`
}

type finalizePayload struct {
	PeriodStart string `json:"periodStart" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"periodEnd" validate:"required,datetime=2006-01-02"`
}

type updatePayload struct {
	ID          string           `json:"id" validate:"required"`
	Amount      *decimal.Decimal `json:"amount"`
	Type        *string          `json:"type"`
	Description *string          `json:"description"`
}

type deletePayload struct {
	ID      string `json:"id" validate:"required"`
	Confirm bool   `json:"confirm"`
}

type paymentPayload struct {
	PayeeType   string          `json:"payeeType" validate:"required,oneof=Employee Customer Other"`
	PayeeName   string          `json:"payeeName" validate:"max=200"`
	EmployeeRef string          `json:"employeeRef"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Method      string          `json:"method" validate:"required,oneof=Check Cash DirectDeposit"`
	Memo        string          `json:"memo" validate:"max=500"`
	CheckNumber string          `json:"checkNumber" validate:"max=50"`
}

type periodPayload struct {
	PeriodStart string `json:"periodStart" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"periodEnd" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) handleSaveRow(w http.ResponseWriter, r *http.Request) {
	var payload saveRowPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	row, err := payroll.DecodeRow(payload.Row)
	if err != nil {
		failRowDecode(w, r, err)
		return
	}
	if !h.requirePayFor(w, r, payload.Status) {
		return
	}
	result, err := h.Payroll.SaveRow(r.Context(), row, payload.Status)
	if err != nil && result.Entry.ID == "" {
		failService(w, r, err, "payroll_save_failed", "failed to save payroll row")
		return
	}
	respondWrite(w, r, http.StatusCreated, result, err)
}

func (h *Handler) handleCreateHistory(w http.ResponseWriter, r *http.Request) {
	var payload createHistoryPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	rows, err := payroll.DecodeRows(payload.Rows)
	if err != nil {
		failRowDecode(w, r, err)
		return
	}
	if !h.requirePayFor(w, r, payload.Status) {
		return
	}
	items := make([]payroll.WorksheetRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, payroll.WorksheetRow{Row: row})
	}
	batch, err := h.Payroll.SaveBatch(r.Context(), items, payload.Status)
	respondBatch(w, r, batch, err, "payroll_history_create_failed")
}

func historyFilter(r *http.Request) (payroll.HistoryFilter, []shared.ValidationIssue) {
	q := shared.CheckQuery(r)
	filter := payroll.HistoryFilter{
		Employee:  q.String("employee"),
		Type:      q.String("type"),
		Status:    q.OneOf("status", payroll.StatusPaid, payroll.StatusPending),
		Text:      q.String("q"),
		DateStart: q.Date("dateStart"),
		DateEnd:   q.Date("dateEnd"),
	}
	q.Ordered("dateStart", filter.DateStart, "dateEnd", filter.DateEnd)
	return filter, q.Issues()
}

func (h *Handler) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	filter, issues := historyFilter(r)
	if len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	entries, err := h.Payroll.Query(r.Context(), filter)
	if err != nil {
		failService(w, r, err, "payroll_history_failed", "failed to query history")
		return
	}
	if entries == nil {
		entries = []payroll.HistoryEntry{}
	}
	api.Success(w, entries, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateHistory(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	result, before, err := h.Payroll.Update(r.Context(), payload.ID, payroll.HistoryPatch{
		Amount:      payload.Amount,
		Type:        payload.Type,
		Description: payload.Description,
	})
	if err != nil && result.Entry.ID == "" {
		failService(w, r, err, "payroll_history_update_failed", "failed to update history entry")
		return
	}
	h.audit(r, audit.ActionHistoryUpdate, "payroll_history", payload.ID, before, result.Entry)
	respondWrite(w, r, http.StatusOK, result, err)
}

func (h *Handler) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	var payload deletePayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	result, err := h.Payroll.Delete(r.Context(), payload.ID, payload.Confirm)
	if err != nil {
		failService(w, r, err, "payroll_history_delete_failed", "failed to delete history entry")
		return
	}
	h.audit(r, audit.ActionHistoryDelete, "payroll_history", payload.ID, result.Entry, nil)
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

// readBody buffers the request so it can be hashed for idempotency and decoded afterwards.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// replayIdempotent answers from a stored response when the key was already used. It returns
// true when the request has been handled.
func (h *Handler) replayIdempotent(w http.ResponseWriter, r *http.Request, endpoint, key, hash string) bool {
	if key == "" || h.Idempotency == nil {
		return false
	}
	user, _ := middleware.GetUser(r.Context())
	stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, endpoint, key, hash)
	if errors.Is(err, middleware.ErrIdempotencyConflict) {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different request", middleware.GetRequestID(r.Context()))
		return true
	}
	if err != nil {
		slog.Warn("idempotency check failed", "endpoint", endpoint, "err", err)
		return false
	}
	if found {
		api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
		return true
	}
	return false
}

func (h *Handler) saveIdempotent(r *http.Request, endpoint, key, hash string, response any) {
	if key == "" || h.Idempotency == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		slog.Warn("idempotency marshal failed", "endpoint", endpoint, "err", err)
		return
	}
	user, _ := middleware.GetUser(r.Context())
	if err := h.Idempotency.Save(r.Context(), user.UserID, endpoint, key, hash, payload); err != nil {
		slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
	}
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "body", Reason: err.Error()}})
		return
	}
	key := r.Header.Get("Idempotency-Key")
	hash := middleware.RequestHash(body)
	if h.replayIdempotent(w, r, endpointFinalize, key, hash) {
		return
	}

	var payload finalizePayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	start, _ := time.Parse(payroll.DateLayout, payload.PeriodStart)
	end, _ := time.Parse(payroll.DateLayout, payload.PeriodEnd)
	period := payroll.Period{Start: start, End: end}

	batch, err := h.Payroll.FinalizePeriod(r.Context(), h.worksheet(r), period)
	if err != nil && batch.SucceededThrough < 0 {
		respondBatch(w, r, batch, err, "payroll_finalize_failed")
		return
	}
	h.audit(r, audit.ActionPeriodFinal, "pay_period", period.Label(), nil, map[string]any{
		"entries":    len(batch.Results),
		"grossTotal": batch.GrossTotal,
		"summaryRef": batch.SummaryRef,
	})
	out := writeOutcome{Result: batch}
	if err != nil {
		out.Partial = true
		out.Message = err.Error()
	}
	h.saveIdempotent(r, endpointFinalize, key, hash, out)
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleIssuePayment(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "body", Reason: err.Error()}})
		return
	}
	key := r.Header.Get("Idempotency-Key")
	hash := middleware.RequestHash(body)
	if h.replayIdempotent(w, r, endpointPayment, key, hash) {
		return
	}

	var payload paymentPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	var date time.Time
	if payload.Date != "" {
		date, _ = time.Parse(payroll.DateLayout, payload.Date)
	}
	result, err := h.Payroll.IssuePayment(r.Context(), payroll.PaymentRequest{
		PayeeType:   payroll.PayeeType(payload.PayeeType),
		PayeeName:   payload.PayeeName,
		EmployeeRef: payload.EmployeeRef,
		Amount:      payload.Amount,
		Date:        date,
		Method:      payroll.PaymentMethod(payload.Method),
		Memo:        payload.Memo,
		CheckNumber: payload.CheckNumber,
	})
	if err != nil && result.Entry.ID == "" {
		failService(w, r, err, "payroll_payment_failed", "failed to issue payment")
		return
	}
	h.audit(r, audit.ActionPaymentIssue, "payroll_history", result.Entry.ID, nil, result.Entry)
	out := writeOutcome{Result: result}
	if err != nil {
		out.Partial = true
		out.Message = err.Error()
	}
	h.saveIdempotent(r, endpointPayment, key, hash, out)
	api.Created(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleEmployeeOverdue(w http.ResponseWriter, r *http.Request) {
	details, err := h.Jobs.RunNow(r.Context(), jobs.JobEmployeeOverdue, h.Jobs.EmployeeOverdue)
	if err != nil {
		failService(w, r, err, "payroll_overdue_failed", "employee overdue scan failed")
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}

// handlePeriodOverdue checks the last full pay period unless the body names one.
func (h *Handler) handlePeriodOverdue(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "body", Reason: err.Error()}})
		return
	}
	run := h.Jobs.PeriodOverdue
	if len(bytes.TrimSpace(body)) > 0 {
		var payload periodPayload
		if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
			return
		}
		start, _ := time.Parse(payroll.DateLayout, payload.PeriodStart)
		end, _ := time.Parse(payroll.DateLayout, payload.PeriodEnd)
		if end.Before(start) {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "periodEnd", Reason: "must be on or after periodStart"}})
			return
		}
		period := payroll.Period{Start: start, End: end}
		run = func(ctx context.Context) (any, error) {
			overdue, err := h.Payroll.PeriodOverdueScan(ctx, period)
			return map[string]any{
				"periodStart": payload.PeriodStart,
				"periodEnd":   payload.PeriodEnd,
				"overdue":     overdue,
			}, err
		}
	}
	details, err := h.Jobs.RunNow(r.Context(), jobs.JobPeriodOverdue, run)
	if err != nil {
		failService(w, r, err, "payroll_overdue_failed", "period overdue scan failed")
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}
