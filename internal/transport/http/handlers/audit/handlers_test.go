package audithandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detailpay/internal/domain/audit"
	"detailpay/internal/domain/auth"
	"detailpay/internal/transport/http/middleware"
)

type stubLister struct {
	filter        audit.Filter
	limit, offset int
}

func (s *stubLister) List(_ context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error) {
	s.filter, s.limit, s.offset = filter, limit, offset
	return []audit.Event{{ID: "a1", Action: filter.Action}}, nil
}

type grant string

func (g grant) HasPermission(_ context.Context, _ string, permission string) (bool, error) {
	return permission == string(g), nil
}

func TestListPassesFiltersAndPaging(t *testing.T) {
	lister := &stubLister{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", RoleID: "admin"})))
		})
	})
	NewHandler(lister, grant(auth.PermPayrollEdit)).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit?action=payroll.history.delete&entityId=e1&limit=1000&offset=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, audit.ActionHistoryDelete, lister.filter.Action)
	assert.Equal(t, "e1", lister.filter.EntityID)
	assert.Equal(t, 500, lister.limit)
	assert.Equal(t, 5, lister.offset)
	assert.Contains(t, rec.Body.String(), `"id":"a1"`)
}

func TestListRequiresEditPermission(t *testing.T) {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", RoleID: "employee"})))
		})
	})
	NewHandler(&stubLister{}, grant(auth.PermPayrollRead)).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
