package payrollhandler

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"detailpay/internal/domain/payroll"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

// worksheets keeps one open worksheet per signed-in user for the life of the process.
type worksheets struct {
	mu     sync.Mutex
	byUser map[string]*payroll.Worksheet
	create func() *payroll.Worksheet
}

func newWorksheets(create func() *payroll.Worksheet) *worksheets {
	return &worksheets{byUser: map[string]*payroll.Worksheet{}, create: create}
}

func (s *worksheets) get(userID string) *payroll.Worksheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.byUser[userID]
	if !ok {
		ws = s.create()
		s.byUser[userID] = ws
	}
	return ws
}

func (h *Handler) worksheet(r *http.Request) *payroll.Worksheet {
	user, _ := middleware.GetUser(r.Context())
	return h.sheets.get(user.UserID)
}

type worksheetView struct {
	Rows       []payroll.WorksheetRow `json:"rows"`
	GrossTotal decimal.Decimal        `json:"grossTotal"`
}

func viewOf(ws *payroll.Worksheet) worksheetView {
	rows := ws.Rows()
	if rows == nil {
		rows = []payroll.WorksheetRow{}
	}
	return worksheetView{Rows: rows, GrossTotal: ws.GrossTotal()}
}

type addRowPayload struct {
	Kind       string `json:"kind" validate:"required,oneof=job hourly custom"`
	EmployeeID string `json:"employeeId"`
}

type stagedJobResponse struct {
	Row       payroll.WorksheetRow `json:"row"`
	UndoToken string               `json:"undoToken"`
	Worksheet worksheetView        `json:"worksheet"`
}

type undoPayload struct {
	Token string `json:"token" validate:"required"`
}

type saveWorksheetPayload struct {
	Status string `json:"status" validate:"required,oneof=Paid Pending"`
}

func (h *Handler) handleGetWorksheet(w http.ResponseWriter, r *http.Request) {
	api.Success(w, viewOf(h.worksheet(r)), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddRow(w http.ResponseWriter, r *http.Request) {
	var payload addRowPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	ws := h.worksheet(r)
	var row payroll.WorksheetRow
	switch payroll.RowKind(payload.Kind) {
	case payroll.KindJob:
		row = ws.AddJobRow()
	case payroll.KindCustom:
		row = ws.AddCustomRow()
	case payroll.KindHourly:
		if payload.EmployeeID == "" {
			row = ws.AddHourlyRow()
			break
		}
		employee, err := h.Payroll.EmployeeForDefaults(r.Context(), payload.EmployeeID)
		if err != nil {
			failService(w, r, err, "worksheet_add_failed", "failed to load employee defaults")
			return
		}
		row = ws.AddHourlyRowFor(employee)
	}
	api.Created(w, row, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStageJob(w http.ResponseWriter, r *http.Request) {
	ws := h.worksheet(r)
	row, token, err := h.Payroll.StageCompletedJob(r.Context(), ws, chi.URLParam(r, "jobID"), payroll.JobPricing(r.URL.Query().Get("priceBy")))
	if err != nil {
		failService(w, r, err, "worksheet_stage_failed", "failed to stage job")
		return
	}
	api.Created(w, stagedJobResponse{Row: row, UndoToken: token, Worksheet: viewOf(ws)}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	var payload undoPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	ws := h.worksheet(r)
	if _, err := ws.Undo(payload.Token); err != nil {
		failService(w, r, err, "worksheet_undo_failed", "failed to undo")
		return
	}
	api.Success(w, viewOf(ws), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReplaceRow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "body", Reason: err.Error()}})
		return
	}
	row, err := payroll.DecodeRow(body)
	if err != nil {
		failRowDecode(w, r, err)
		return
	}
	replaced, err := h.worksheet(r).ReplaceRow(chi.URLParam(r, "rowID"), row)
	if err != nil {
		failService(w, r, err, "worksheet_replace_failed", "failed to replace row")
		return
	}
	api.Success(w, replaced, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	ws := h.worksheet(r)
	if _, err := ws.RemoveRowByID(chi.URLParam(r, "rowID")); err != nil {
		failService(w, r, err, "worksheet_remove_failed", "failed to remove row")
		return
	}
	api.Success(w, viewOf(ws), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveWorksheet(w http.ResponseWriter, r *http.Request) {
	var payload saveWorksheetPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	if !h.requirePayFor(w, r, payload.Status) {
		return
	}
	batch, err := h.Payroll.SaveWorksheet(r.Context(), h.worksheet(r), payload.Status)
	respondBatch(w, r, batch, err, "worksheet_save_failed")
}

// respondBatch answers 200 once any row was committed, even when later rows were not.
func respondBatch(w http.ResponseWriter, r *http.Request, batch payroll.BatchResult, err error, code string) {
	if err != nil && batch.SucceededThrough < 0 {
		if batch.Failed != nil {
			api.FailWithDetails(w, http.StatusBadGateway, code, err.Error(), map[string]any{"failed": batch.Failed, "notAttempted": batch.NotAttempted}, middleware.GetRequestID(r.Context()))
			return
		}
		failService(w, r, err, code, "failed to save rows")
		return
	}
	respondWrite(w, r, http.StatusOK, batch, err)
}

// failRowDecode reports malformed JSON as a body issue and everything else as field issues.
func failRowDecode(w http.ResponseWriter, r *http.Request, err error) {
	var verr *payroll.ValidationError
	if errors.As(err, &verr) {
		failService(w, r, err, "invalid_row", "invalid row")
		return
	}
	shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "body", Reason: err.Error()}})
}
