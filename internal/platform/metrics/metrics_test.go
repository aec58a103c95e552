package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCountsLedgerAndAlerts(t *testing.T) {
	c := New()
	c.LedgerWrite("job", "Paid")
	c.LedgerWrite("job", "Paid")
	c.LedgerStepFailed("mark_job_paid")
	c.AlertRaised("weekly_payroll_due")
	c.AlertSuppressed("weekly_payroll_due")

	if got := testutil.ToFloat64(c.ledgerWrites.WithLabelValues("job", "Paid")); got != 2 {
		t.Fatalf("expected 2 ledger writes, got %v", got)
	}
	if got := testutil.ToFloat64(c.alertsSkipped.WithLabelValues("weekly_payroll_due")); got != 1 {
		t.Fatalf("expected 1 suppressed alert, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.RecordRequest(http.MethodGet, "/api/v1/payroll/history", http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "detailpay_http_requests_total") {
		t.Fatal("expected request counter in exposition")
	}
}
