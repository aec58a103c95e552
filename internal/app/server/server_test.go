package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"detailpay/internal/app/server"
	"detailpay/internal/platform/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestStageAndPayJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := config.Config{
		Addr:               ":0",
		Environment:        "test",
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		DataEncryptionKey:  "0123456789abcdef0123456789abcdef",
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		RunMigrations:      true,
		RunSeed:            true,
		ArchiveBackend:     config.ArchiveBackendLocal,
		ArchiveDir:         t.TempDir(),
		AlertDedupWindow:   24 * time.Hour,
		OverdueGracePeriod: 7 * 24 * time.Hour,
		PayPeriodStartDay:  time.Monday,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 1000,
	}

	app, err := server.New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	var login struct {
		Token string `json:"token"`
	}
	call(t, ts, "", http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": cfg.SeedAdminEmail, "password": cfg.SeedAdminPassword}, http.StatusOK, &login)
	require.NotEmpty(t, login.Token)

	suffix := time.Now().UnixNano()
	name := fmt.Sprintf("Journey %d", suffix)
	call(t, ts, login.Token, http.MethodPost, "/api/v1/payroll/employees",
		map[string]any{"name": name, "flatRate": "20"}, http.StatusCreated, nil)

	jobID := fmt.Sprintf("job-%d", suffix)
	call(t, ts, login.Token, http.MethodPost, "/api/v1/payroll/jobs", map[string]any{
		"jobId":        jobID,
		"employee":     name,
		"service":      "Full Detail",
		"vehicle":      "Civic",
		"customer":     "Pat",
		"totalRevenue": "80.00",
	}, http.StatusCreated, nil)

	var staged struct {
		UndoToken string `json:"undoToken"`
	}
	call(t, ts, login.Token, http.MethodPost, "/api/v1/payroll/worksheet/jobs/"+jobID, nil, http.StatusCreated, &staged)
	require.NotEmpty(t, staged.UndoToken)

	call(t, ts, login.Token, http.MethodPost, "/api/v1/payroll/worksheet/save",
		map[string]string{"status": "Paid"}, http.StatusOK, nil)

	var entries []struct {
		JobRef string `json:"jobRef"`
		Status string `json:"status"`
	}
	call(t, ts, login.Token, http.MethodGet, "/api/v1/payroll/history?employee="+url.QueryEscape(name), nil, http.StatusOK, &entries)
	require.Len(t, entries, 1)
	require.Equal(t, jobID, entries[0].JobRef)
	require.Equal(t, "Paid", entries[0].Status)

	var unpaid []struct {
		JobID string `json:"jobId"`
	}
	call(t, ts, login.Token, http.MethodGet, "/api/v1/payroll/jobs/unpaid?employee="+url.QueryEscape(name), nil, http.StatusOK, &unpaid)
	require.Empty(t, unpaid)
}

func call(t *testing.T, ts *httptest.Server, token, method, path string, body any, want int, out any) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, want, resp.StatusCode, "%s %s: %+v", method, path, env.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}
