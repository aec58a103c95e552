package payrollhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"detailpay/internal/domain/auth"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/platform/jobs"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

// Auditor records who changed ledger data.
type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

type Handler struct {
	Payroll     *payroll.Service
	Jobs        *jobs.Service
	Perms       middleware.PermissionStore
	Audit       Auditor
	Idempotency middleware.Idempotency

	sheets   *worksheets
	events   *eventHub
	upgrader websocket.Upgrader
	unsub    func()
}

func NewHandler(svc *payroll.Service, runner *jobs.Service, perms middleware.PermissionStore, auditor Auditor, idem middleware.Idempotency, allowedOrigins []string) *Handler {
	h := &Handler{
		Payroll:     svc,
		Jobs:        runner,
		Perms:       perms,
		Audit:       auditor,
		Idempotency: idem,
		sheets:      newWorksheets(svc.NewWorksheet),
		events:      newEventHub(),
		upgrader:    newUpgrader(allowedOrigins),
	}
	h.unsub = svc.OnHistoryChanged(h.events.broadcast)
	return h
}

// Close detaches the event stream from the payroll service and drops open sockets.
func (h *Handler) Close() {
	if h.unsub != nil {
		h.unsub()
	}
	h.events.closeAll()
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/employees", h.handleListEmployees)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/employees", h.handleCreateEmployee)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/employees/{id}/amount-due", h.handleAmountDue)

		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/jobs/unpaid", h.handleListUnpaidJobs)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/jobs", h.handleRecordJob)
		r.With(middleware.RequirePermission(auth.PermPayrollPay, h.Perms)).Post("/jobs/{jobID}/reopen", h.handleReopenJob)

		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Get("/worksheet", h.handleGetWorksheet)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/worksheet/rows", h.handleAddRow)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/worksheet/jobs/{jobID}", h.handleStageJob)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/worksheet/undo", h.handleUndo)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Put("/worksheet/rows/{rowID}", h.handleReplaceRow)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Delete("/worksheet/rows/{rowID}", h.handleRemoveRow)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/worksheet/save", h.handleSaveWorksheet)
		r.With(middleware.RequirePermission(auth.PermPayrollPay, h.Perms)).Post("/worksheet/finalize", h.handleFinalize)

		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/save", h.handleSaveRow)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/history", h.handleCreateHistory)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/history", h.handleQueryHistory)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/history/export", h.handleExportHistory)
		r.With(middleware.RequirePermission(auth.PermPayrollEdit, h.Perms)).Post("/history/update", h.handleUpdateHistory)
		r.With(middleware.RequirePermission(auth.PermPayrollEdit, h.Perms)).Post("/history/delete", h.handleDeleteHistory)

		r.With(middleware.RequirePermission(auth.PermPayrollPay, h.Perms)).Post("/payments", h.handleIssuePayment)

		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/overdue/employees", h.handleEmployeeOverdue)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/overdue/period", h.handlePeriodOverdue)

		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/events", h.handleEvents)
	})
}

// writeOutcome is the response body of every ledger write.
type writeOutcome struct {
	Result  any    `json:"result"`
	Partial bool   `json:"partial"`
	Message string `json:"message,omitempty"`
}

// respondWrite reports a committed write; a partial write still answers 200 with the failed
// steps in the result.
func respondWrite(w http.ResponseWriter, r *http.Request, status int, result any, err error) {
	out := writeOutcome{Result: result}
	if err != nil {
		out.Partial = true
		out.Message = err.Error()
	}
	api.WriteJSON(w, status, api.Envelope{Success: true, Data: out, RequestID: middleware.GetRequestID(r.Context())})
}

// failService maps payroll errors onto the JSON envelope.
func failService(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	var verr *payroll.ValidationError
	switch {
	case errors.As(err, &verr):
		issues := make([]shared.ValidationIssue, 0, len(verr.Issues))
		for _, issue := range verr.Issues {
			issues = append(issues, shared.ValidationIssue{Field: issue.Field, Reason: issue.Message})
		}
		shared.FailValidation(w, requestID, issues)
	case errors.Is(err, payroll.ErrEntryNotFound),
		errors.Is(err, payroll.ErrJobNotFound),
		errors.Is(err, payroll.ErrEmployeeNotFound),
		errors.Is(err, payroll.ErrRowNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, payroll.ErrConfirmationRequired):
		api.Fail(w, http.StatusBadRequest, "confirmation_required", err.Error(), requestID)
	case errors.Is(err, payroll.ErrEmptyWorksheet):
		api.Fail(w, http.StatusBadRequest, "empty_worksheet", err.Error(), requestID)
	case errors.Is(err, payroll.ErrJobAlreadyPaid),
		errors.Is(err, payroll.ErrJobAlreadyStaged),
		errors.Is(err, payroll.ErrJobNotCompleted),
		errors.Is(err, payroll.ErrDuplicateEmployee):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), requestID)
	case errors.Is(err, payroll.ErrUndoExpired):
		api.Fail(w, http.StatusGone, "undo_expired", err.Error(), requestID)
	default:
		slog.Error("payroll request failed", "code", code, "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}

// requirePayFor rejects Paid writes from callers without payroll.pay.
func (h *Handler) requirePayFor(w http.ResponseWriter, r *http.Request, status string) bool {
	if status != payroll.StatusPaid {
		return true
	}
	user, _ := middleware.GetUser(r.Context())
	allowed, err := h.Perms.HasPermission(r.Context(), user.RoleID, auth.PermPayrollPay)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", middleware.GetRequestID(r.Context()))
		return false
	}
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "paying requires payroll.pay", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) audit(r *http.Request, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	user, _ := middleware.GetUser(r.Context())
	if err := h.Audit.Record(r.Context(), user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}
