package dbapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
)

func newTestServer(store *mockStore, role string) *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), "user-1", role)))
			return next(c)
		}
	})
	NewHandler(NewService(store, 10), zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_StatusCodes(t *testing.T) {
	filters := url.QueryEscape(`{"status":"pending"}`)
	tests := []struct {
		name   string
		role   string
		method string
		target string
		body   string
		want   int
	}{
		{"read via get", auth.RoleStaff, http.MethodGet, "/api/v1/db?action=read_table&table=invoices&filters=" + filters, "", http.StatusOK},
		{"read via post", auth.RoleStaff, http.MethodPost, "/api/v1/db", `{"action":"count_records","table":"recalls"}`, http.StatusOK},
		{"custom query", auth.RoleAdmin, http.MethodPost, "/api/v1/db", `{"action":"custom_query","query":"DROP TABLE patients"}`, http.StatusForbidden},
		{"write via get", auth.RoleAdmin, http.MethodGet, "/api/v1/db?action=delete_record&table=patients&id=x", "", http.StatusMethodNotAllowed},
		{"staff write", auth.RoleStaff, http.MethodPost, "/api/v1/db", `{"action":"insert_record","table":"patients","data":{"first_name":"A"}}`, http.StatusForbidden},
		{"table not allowed", auth.RoleStaff, http.MethodGet, "/api/v1/db?action=read_table&table=pg_shadow", "", http.StatusBadRequest},
		{"bad limit", auth.RoleStaff, http.MethodGet, "/api/v1/db?action=read_table&table=patients&limit=ten", "", http.StatusBadRequest},
		{"bad filters", auth.RoleStaff, http.MethodGet, "/api/v1/db?action=read_table&table=patients&filters=nope", "", http.StatusBadRequest},
		{"not found", auth.RoleStaff, http.MethodGet, "/api/v1/db?action=get_patient&id=7b1c1c1e-5e0c-4c36-9a44-1d6f8e1f2a3b", "", http.StatusNotFound},
		{"no role", "", http.MethodGet, "/api/v1/db?action=list_tables", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(&mockStore{}, tt.role)
			if rec := do(e, tt.method, tt.target, tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_GetParsesParams(t *testing.T) {
	store := &mockStore{}
	e := newTestServer(store, auth.RoleStaff)
	rec := do(e, http.MethodGet, "/api/v1/db?action=read_table&table=patients&order_by=last_name&ascending=false&limit=5&offset=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := store.last()
	if !strings.Contains(got.sql, `ORDER BY "last_name" DESC`) {
		t.Errorf("unexpected sql: %s", got.sql)
	}
	if got.args[0] != 5 || got.args[1] != 10 {
		t.Errorf("unexpected paging args: %v", got.args)
	}
}
