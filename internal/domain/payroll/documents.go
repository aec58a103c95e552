package payroll

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

func newDocument(title string) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, title)
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	return pdf
}

func line(pdf *gofpdf.Fpdf, format string, args ...any) {
	pdf.Cell(0, 8, fmt.Sprintf(format, args...))
	pdf.Ln(7)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPayStub(entry HistoryEntry) ([]byte, error) {
	pdf := newDocument("Pay Stub")
	line(pdf, "Employee: %s", firstNonEmpty(entry.Employee, "-"))
	line(pdf, "Date: %s", entry.Date.Format(DateLayout))
	line(pdf, "Type: %s", entry.Type)
	line(pdf, "Description: %s", entry.Description)
	if entry.JobRef != "" {
		line(pdf, "Job: %s", entry.JobRef)
	}
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 12)
	line(pdf, "Amount paid: $%s", entry.Amount.StringFixed(2))
	pdf.SetFont("Helvetica", "", 10)
	line(pdf, "Reference: %s", entry.ID)
	return output(pdf)
}

func renderPaymentDocument(req PaymentRequest) ([]byte, error) {
	title := "Payment Receipt"
	if req.Method == MethodCheck {
		title = "Check"
	}
	pdf := newDocument(title)
	if req.CheckNumber != "" {
		line(pdf, "Check number: %s", req.CheckNumber)
	}
	line(pdf, "Date: %s", req.Date.Format(DateLayout))
	line(pdf, "Pay to the order of: %s", req.PayeeName)
	pdf.SetFont("Helvetica", "B", 12)
	line(pdf, "Amount: $%s", req.Amount.StringFixed(2))
	pdf.SetFont("Helvetica", "", 12)
	line(pdf, "Method: %s", req.Method)
	if req.Memo != "" {
		line(pdf, "Memo: %s", req.Memo)
	}
	return output(pdf)
}

func renderBatchSummary(period Period, entries []HistoryEntry, gross decimal.Decimal) ([]byte, error) {
	pdf := newDocument("Payroll Summary")
	line(pdf, "Period: %s", period.Label())
	line(pdf, "Entries: %d", len(entries))
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 10)
	widths := []float64{25, 45, 25, 65, 25}
	for i, header := range []string{"Date", "Employee", "Type", "Description", "Amount"} {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, entry := range entries {
		pdf.CellFormat(widths[0], 6, entry.Date.Format(DateLayout), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, truncate(entry.Employee, 24), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, entry.Type, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, truncate(entry.Description, 38), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[4], 6, entry.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 12)
	line(pdf, "Gross total: $%s", gross.StringFixed(2))
	return output(pdf)
}

func renderAuditDocument(before, after HistoryEntry, changes []FieldChange, at time.Time) ([]byte, error) {
	pdf := newDocument("History Entry Change")
	line(pdf, "Entry: %s", after.ID)
	line(pdf, "Employee: %s", firstNonEmpty(after.Employee, "-"))
	line(pdf, "Entry date: %s", after.Date.Format(DateLayout))
	line(pdf, "Status: %s", after.Status)
	line(pdf, "Changed at: %s", at.Format(time.RFC3339))
	pdf.Ln(3)
	if len(changes) == 0 {
		line(pdf, "No field values changed.")
	}
	for _, change := range changes {
		line(pdf, "%s: %q -> %q", change.Field, change.From, change.To)
	}
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "", 9)
	line(pdf, "Previous document: %s", firstNonEmpty(before.DocumentRef, "-"))
	return output(pdf)
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "~"
}
