package payrollhandler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xuri/excelize/v2"

	"detailpay/internal/domain/payroll"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

const historySheet = "History"

var historyHeader = []any{"Date", "Type", "Description", "Employee", "Amount", "Status", "Job", "Document"}

// historyWorkbook streams entries into a single-sheet workbook with a total row.
func historyWorkbook(entries []payroll.HistoryEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return nil, err
	}
	sw, err := f.NewStreamWriter(historySheet)
	if err != nil {
		return nil, err
	}
	if err := sw.SetRow("A1", historyHeader); err != nil {
		return nil, err
	}
	rowNum := 2
	for _, e := range entries {
		amount, _ := e.Amount.Round(2).Float64()
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := sw.SetRow(cell, []any{
			e.Date.Format(payroll.DateLayout),
			e.Type,
			e.Description,
			e.Employee,
			amount,
			e.Status,
			e.JobRef,
			e.DocumentRef,
		}); err != nil {
			return nil, err
		}
		rowNum++
	}
	if len(entries) > 0 {
		cell, _ := excelize.CoordinatesToCellName(4, rowNum)
		formula := fmt.Sprintf("SUM(E2:E%d)", rowNum-1)
		if err := sw.SetRow(cell, []any{"Total", excelize.Cell{Formula: formula}}); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}
	return f, nil
}

func (h *Handler) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	filter, issues := historyFilter(r)
	if len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	entries, err := h.Payroll.Query(r.Context(), filter)
	if err != nil {
		failService(w, r, err, "payroll_export_failed", "failed to query history")
		return
	}
	f, err := historyWorkbook(entries)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payroll_export_failed", "failed to build workbook", middleware.GetRequestID(r.Context()))
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("close workbook failed", "err", err)
		}
	}()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=payroll-history.xlsx")
	if err := f.Write(w); err != nil {
		slog.Warn("payroll export write failed", "err", err)
	}
}
