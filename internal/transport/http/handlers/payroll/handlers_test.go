package payrollhandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/domain/audit"
	"detailpay/internal/domain/auth"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/domain/payroll/payrolltest"
	"detailpay/internal/platform/config"
	"detailpay/internal/platform/jobs"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const roleClerk = "clerk"

type fakePerms map[string][]string

func (p fakePerms) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	for _, granted := range p[roleID] {
		if granted == permission {
			return true, nil
		}
	}
	return false, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *fakeAudit) Record(_ context.Context, _, action, _, _, _, _ string, _, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type harness struct {
	env     *payrolltest.Env
	handler *Handler
	audit   *fakeAudit
	router  http.Handler
}

// newHarness signs requests in as the role named by X-Test-Role, admin by default.
func newHarness(t *testing.T) *harness {
	t.Helper()
	env := payrolltest.NewEnv(now)
	perms := fakePerms{
		auth.RoleAdmin: auth.RolePermissions[auth.RoleAdmin],
		roleClerk:      {auth.PermPayrollRead, auth.PermPayrollWrite},
	}
	runner := jobs.New(nil, config.Config{OverdueGracePeriod: 7 * 24 * time.Hour, PayPeriodStartDay: time.Monday}, env.Service)
	rec := &fakeAudit{}
	h := NewHandler(env.Service, runner, perms, rec, middleware.NewMemoryIdempotency(), []string{"http://localhost:5173"})
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			role := req.Header.Get("X-Test-Role")
			if role == "" {
				role = auth.RoleAdmin
			}
			user := auth.UserContext{UserID: "user-" + role, RoleID: role, RoleName: role}
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
		})
	})
	h.RegisterRoutes(r)
	return &harness{env: env, handler: h, audit: rec, router: r}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.Error      `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestStageJobPricesByRevenueUnlessRateRequested(t *testing.T) {
	h := newHarness(t)
	h.env.Directory.Put(payroll.EmployeeRecord{Name: "Jane", PaymentByJob: true, JobRates: map[string]decimal.Decimal{"Wash": decimal.RequireFromString("25")}})
	h.env.Jobs.Put(payroll.CompletedJob{JobID: "j1", Employee: "Jane", Service: "Wash", TotalRevenue: decimal.RequireFromString("80"), FinishedAt: now})
	h.env.Jobs.Put(payroll.CompletedJob{JobID: "j2", Employee: "Jane", Service: "Wash", TotalRevenue: decimal.RequireFromString("80"), FinishedAt: now})

	stagedAmount := func(path string) string {
		rec, env := h.do(t, http.MethodPost, path, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var staged struct {
			Row struct {
				Amount decimal.Decimal `json:"amount"`
			} `json:"row"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &staged))
		return staged.Row.Amount.StringFixed(2)
	}
	assert.Equal(t, "80.00", stagedAmount("/payroll/worksheet/jobs/j1"))
	assert.Equal(t, "25.00", stagedAmount("/payroll/worksheet/jobs/j2?priceBy=rate"))

	rec, env := h.do(t, http.MethodPost, "/payroll/worksheet/jobs/j1?priceBy=margin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestWorksheetStageUndoAndSave(t *testing.T) {
	h := newHarness(t)
	h.env.Directory.Put(payroll.EmployeeRecord{Name: "Jane"})
	h.env.Jobs.Put(payroll.CompletedJob{JobID: "j1", Employee: "Jane", Service: "Full detail", TotalRevenue: decimal.RequireFromString("120"), FinishedAt: now})

	rec, env := h.do(t, http.MethodPost, "/payroll/worksheet/jobs/j1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var staged struct {
		UndoToken string `json:"undoToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &staged))
	require.NotEmpty(t, staged.UndoToken)

	rec, env = h.do(t, http.MethodPost, "/payroll/worksheet/jobs/j1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Code)

	rec, _ = h.do(t, http.MethodPost, "/payroll/worksheet/undo", `{"token":"`+staged.UndoToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = h.do(t, http.MethodPost, "/payroll/worksheet/undo", `{"token":"`+staged.UndoToken+`"}`)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "undo_expired", env.Error.Code)

	rec, _ = h.do(t, http.MethodPost, "/payroll/worksheet/jobs/j1", "", "X-Test-Role", roleClerk)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/payroll/worksheet/save", `{"status":"Paid"}`, "X-Test-Role", roleClerk)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = h.do(t, http.MethodPost, "/payroll/worksheet/save", `{"status":"Pending"}`, "X-Test-Role", roleClerk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Partial bool `json:"partial"`
		Result  struct {
			SucceededThrough int `json:"succeededThrough"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.False(t, out.Partial)
	assert.Equal(t, 0, out.Result.SucceededThrough)
	require.Len(t, h.env.History.All(), 1)
	assert.Equal(t, payroll.StatusPending, h.env.History.All()[0].Status)

	rec, env = h.do(t, http.MethodGet, "/payroll/worksheet", "", "X-Test-Role", roleClerk)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows":[],"grossTotal":"0"}`, string(env.Data))
}

func TestWorksheetsArePerUser(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/payroll/worksheet/rows", `{"kind":"custom"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, env := h.do(t, http.MethodGet, "/payroll/worksheet", "", "X-Test-Role", roleClerk)
	var view worksheetView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Empty(t, view.Rows)
}

func TestQuickSavePaidRequiresPayPermission(t *testing.T) {
	h := newHarness(t)
	h.env.Directory.Put(payroll.EmployeeRecord{Name: "Jane"})
	body := `{"status":"Paid","row":{"kind":"custom","amount":"40","paymentType":"Tip","employee":"Jane"}}`

	rec, _ := h.do(t, http.MethodPost, "/payroll/save", body, "X-Test-Role", roleClerk)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.env.History.All())

	rec, env := h.do(t, http.MethodPost, "/payroll/save", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Result payroll.WriteResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, payroll.StatusPaid, out.Result.Entry.Status)
	assert.True(t, out.Result.Entry.Amount.Equal(decimal.RequireFromString("40")))
}

func TestQuickSaveReportsRowIssues(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodPost, "/payroll/save", `{"status":"Pending","row":{"kind":"custom","amount":"10","paymentType":"Other"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details, "fields")
	assert.Empty(t, h.env.History.All())
}

func TestPaymentValidationListsFields(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodPost, "/payroll/payments", `{"payeeType":"Employee","amount":"5"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, err := json.Marshal(env.Error.Details["fields"])
	require.NoError(t, err)
	assert.Contains(t, string(fields), `"field":"method"`)
}

func TestPaymentIdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t)
	h.env.Directory.Put(payroll.EmployeeRecord{Name: "Jane"})
	body := `{"payeeType":"Employee","payeeName":"Jane","amount":"250","method":"Check","checkNumber":"1042"}`

	rec, first := h.do(t, http.MethodPost, "/payroll/payments", body, "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, second := h.do(t, http.MethodPost, "/payroll/payments", body, "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(first.Data), string(second.Data))
	assert.Len(t, h.env.History.All(), 1)
	assert.Equal(t, []string{audit.ActionPaymentIssue}, h.audit.Actions())

	rec, env := h.do(t, http.MethodPost, "/payroll/payments", strings.Replace(body, "250", "300", 1), "Idempotency-Key", "pay-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_conflict", env.Error.Code)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	result, err := h.env.Service.SaveRow(context.Background(), payroll.CustomRow{Amount: decimal.RequireFromString("15"), PaymentType: payroll.PaymentTip, Employee: "Jane"}, payroll.StatusPending)
	require.NoError(t, err)

	rec, env := h.do(t, http.MethodPost, "/payroll/history/delete", `{"id":"`+result.Entry.ID+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "confirmation_required", env.Error.Code)
	assert.Len(t, h.env.History.All(), 1)

	rec, _ = h.do(t, http.MethodPost, "/payroll/history/delete", `{"id":"`+result.Entry.ID+`","confirm":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.env.History.All())
	assert.Equal(t, []string{audit.ActionHistoryDelete}, h.audit.Actions())

	rec, _ = h.do(t, http.MethodPost, "/payroll/history/delete", `{"id":"`+result.Entry.ID+`","confirm":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEditRequiresEditPermission(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/payroll/history/update", `{"id":"entry-1","amount":"10"}`, "X-Test-Role", roleClerk)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHistoryQueryRejectsBadDates(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodGet, "/payroll/history?dateStart=2026-03-09&dateEnd=2026-03-01", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestHistoryExportWritesWorkbook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, amount := range []string{"100", "25.5"} {
		_, err := h.env.Service.SaveRow(ctx, payroll.CustomRow{Amount: decimal.RequireFromString(amount), PaymentType: payroll.PaymentBonus, Employee: "Jane"}, payroll.StatusPending)
		require.NoError(t, err)
	}

	rec, _ := h.do(t, http.MethodGet, "/payroll/history/export?status=Pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payroll-history.xlsx")

	book, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "Jane", rows[1][3])
	assert.Equal(t, "Total", rows[3][3])
}

func TestFinalizeEmptyWorksheet(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodPost, "/payroll/worksheet/finalize", `{"periodStart":"2026-03-02","periodEnd":"2026-03-08"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_worksheet", env.Error.Code)
}

func TestFinalizePaysWorksheetOnce(t *testing.T) {
	h := newHarness(t)
	h.env.Jobs.Put(payroll.CompletedJob{JobID: "j9", Employee: "Sam", TotalRevenue: decimal.RequireFromString("80"), FinishedAt: now})
	rec, _ := h.do(t, http.MethodPost, "/payroll/worksheet/jobs/j9", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	body := `{"periodStart":"2026-03-02","periodEnd":"2026-03-08"}`
	rec, first := h.do(t, http.MethodPost, "/payroll/worksheet/finalize", body, "Idempotency-Key", "fin-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, second := h.do(t, http.MethodPost, "/payroll/worksheet/finalize", body, "Idempotency-Key", "fin-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(first.Data), string(second.Data))

	require.Len(t, h.env.History.All(), 1)
	job, err := h.env.Jobs.GetJob(context.Background(), "j9")
	require.NoError(t, err)
	assert.True(t, job.Paid)
	assert.Equal(t, []string{audit.ActionPeriodFinal}, h.audit.Actions())
}

func TestPeriodOverdueDefaultsToLastWeek(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodPost, "/payroll/overdue/period", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"periodStart":"2026-03-02","periodEnd":"2026-03-08","overdue":true}`, string(env.Data))
	assert.Len(t, h.env.Alerts.OfType(alerts.TypeWeeklyPayrollDue), 1)

	rec, _ = h.do(t, http.MethodPost, "/payroll/overdue/period", `{"periodStart":"2026-03-08","periodEnd":"2026-03-02"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReopenJobIsAudited(t *testing.T) {
	h := newHarness(t)
	h.env.Jobs.Put(payroll.CompletedJob{JobID: "j3", Paid: true})
	rec, env := h.do(t, http.MethodPost, "/payroll/jobs/j3/reopen", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Result payroll.CompletedJob `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.False(t, out.Result.Paid)
	assert.Equal(t, []string{audit.ActionJobReopen}, h.audit.Actions())

	rec, _ = h.do(t, http.MethodPost, "/payroll/jobs/missing/reopen", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEventsStreamOverWebsocket(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/payroll/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.handler.events.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = h.env.Service.SaveRow(context.Background(), payroll.CustomRow{Amount: decimal.RequireFromString("12"), PaymentType: payroll.PaymentTip, Employee: "Jane"}, payroll.StatusPending)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt payroll.HistoryEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, payroll.HistoryCreated, evt.Kind)
	assert.Equal(t, "Jane", evt.Entry.Employee)
}

func TestHistoryEventsCheckOrigin(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payroll/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://LOCALHOST:5173"}})
	require.NoError(t, err)
	conn.Close()
}

func TestEventHubDropsStalledClient(t *testing.T) {
	hub := newEventHub()
	stalled := hub.add(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*4; i++ {
			hub.broadcast(payroll.HistoryEvent{Kind: payroll.HistoryCreated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a client that never reads")
	}

	assert.Equal(t, 0, hub.count())
	queued := 0
	for range stalled.send {
		queued++
	}
	assert.Equal(t, eventBuffer, queued)

	hub.remove(stalled)
	hub.closeAll()
}
