package alertshandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/domain/auth"
	"detailpay/internal/domain/payroll/payrolltest"
	"detailpay/internal/transport/http/middleware"
)

type allowAll struct{ allowed bool }

func (a allowAll) HasPermission(context.Context, string, string) (bool, error) {
	return a.allowed, nil
}

func setup(t *testing.T, allowed bool) (*payrolltest.Alerts, http.Handler) {
	t.Helper()
	inbox := &payrolltest.Alerts{Now: func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", RoleID: "r1"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(inbox, allowAll{allowed: allowed}).RegisterRoutes(r)
	return inbox, r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestListFiltersUnreadAlerts(t *testing.T) {
	inbox, h := setup(t, true)
	ctx := context.Background()
	_, err := inbox.Raise(ctx, alerts.Candidate{Type: alerts.TypePayrollDue, Message: "due", RecordType: alerts.RecordTypeEmployee, RecordKey: "e1"})
	require.NoError(t, err)
	_, err = inbox.Raise(ctx, alerts.Candidate{Type: alerts.TypePayrollPaid, Message: "paid"})
	require.NoError(t, err)

	rec := serve(h, http.MethodGet, "/alerts?type="+alerts.TypePayrollDue, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	var body struct {
		Data []alerts.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "due", body.Data[0].Message)
}

func TestMarkReadAndDismiss(t *testing.T) {
	inbox, h := setup(t, true)
	ctx := context.Background()
	first, err := inbox.Raise(ctx, alerts.Candidate{Type: alerts.TypePayrollDue, Message: "due", RecordType: alerts.RecordTypeEmployee, RecordKey: "e1"})
	require.NoError(t, err)
	_, err = inbox.Raise(ctx, alerts.Candidate{Type: alerts.TypePayrollReconcile, Message: "reconcile", RecordType: alerts.RecordTypeJob, RecordKey: "j1"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/alerts/"+first.ID+"/read", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/alerts/nope/read", "").Code)

	rec := serve(h, http.MethodPost, "/alerts/dismiss", `{"recordType":"completed_job","recordKey":"j1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dismissed":1}`, extractData(t, rec))

	unread, err := inbox.ListUnread(ctx, alerts.Filter{})
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/alerts/dismiss", `{"recordType":"completed_job"}`).Code)
}

func TestAlertsRequirePermission(t *testing.T) {
	_, h := setup(t, false)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/alerts", "").Code)
}

func extractData(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return string(body.Data)
}
