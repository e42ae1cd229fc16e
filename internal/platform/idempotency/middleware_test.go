package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const completionPath = "/api/v1/appointments/a1/completion"

func newTestServer(store Store, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	tenant := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("tenant_id", c.Request().Header.Get("X-Tenant-ID"))
			return next(c)
		}
	}
	mw := Middleware(store, zerolog.Nop())
	e.POST(completionPath, handler, tenant, mw)
	e.PUT(completionPath, handler, tenant, mw)
	e.GET(completionPath, handler, tenant, mw)
	e.POST("/api/v1/other", handler, tenant, mw)
	return e
}

func do(e *echo.Echo, method, path, key, tenant string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	req.Header.Set("X-Tenant-ID", tenant)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func countingHandler(calls *int, status int) echo.HandlerFunc {
	return func(c echo.Context) error {
		*calls++
		c.Response().Header().Set("X-Call", "handled")
		return c.JSON(status, map[string]int{"call": *calls})
	}
}

func TestMiddleware_NoKeyPassthrough(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	do(e, http.MethodPost, completionPath, "", "smile")
	do(e, http.MethodPost, completionPath, "", "smile")
	if calls != 2 {
		t.Errorf("expected 2 executions without key, got %d", calls)
	}
}

func TestMiddleware_GETPassthrough(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	do(e, http.MethodGet, completionPath, "k1", "smile")
	do(e, http.MethodGet, completionPath, "k1", "smile")
	if calls != 2 {
		t.Errorf("expected GET to bypass idempotency, got %d calls", calls)
	}
}

func TestMiddleware_ReplaysSuccessfulResponse(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	first := do(e, http.MethodPost, completionPath, "visit-key", "smile")
	second := do(e, http.MethodPost, completionPath, "visit-key", "smile")

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get(HeaderReplayed) != "true" {
		t.Error("expected replay header on second response")
	}
	if first.Header().Get(HeaderReplayed) != "" {
		t.Error("did not expect replay header on first response")
	}
	if second.Header().Get("X-Call") != "handled" {
		t.Error("expected handler headers to be replayed")
	}
}

func TestMiddleware_FailedResponseNotCached(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusConflict))

	do(e, http.MethodPost, completionPath, "retry-key", "smile")
	rec := do(e, http.MethodPost, completionPath, "retry-key", "smile")
	if calls != 2 {
		t.Errorf("expected failed response to be re-executed, got %d calls", calls)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestMiddleware_HandlerErrorNotCached(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, func(c echo.Context) error {
		calls++
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	do(e, http.MethodPost, completionPath, "err-key", "smile")
	do(e, http.MethodPost, completionPath, "err-key", "smile")
	if calls != 2 {
		t.Errorf("expected handler to run twice, ran %d", calls)
	}
}

func TestMiddleware_KeyReusedOnOtherPath(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusCreated))

	do(e, http.MethodPost, completionPath, "shared", "smile")
	rec := do(e, http.MethodPost, "/api/v1/other", "shared", "smile")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestMiddleware_KeyReusedWithOtherMethod(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	do(e, http.MethodPost, completionPath, "shared", "smile")
	rec := do(e, http.MethodPut, completionPath, "shared", "smile")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestMiddleware_KeysScopedByTenant(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	do(e, http.MethodPost, completionPath, "same", "smile")
	rec := do(e, http.MethodPost, completionPath, "same", "bright")
	if calls != 2 {
		t.Errorf("expected separate execution per practice, got %d calls", calls)
	}
	if rec.Header().Get(HeaderReplayed) != "" {
		t.Error("did not expect cross-tenant replay")
	}
}

func TestMiddleware_InFlightDuplicateRejected(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	if ok, _ := store.Claim(context.Background(), "smile:busy", time.Minute); !ok {
		t.Fatal("claim failed")
	}
	rec := do(e, http.MethodPost, completionPath, "busy", "smile")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for in-flight key, got %d", rec.Code)
	}
	if calls != 0 {
		t.Errorf("expected handler not to run, ran %d", calls)
	}
}

func TestMiddleware_LegacyHeader(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, completionPath, strings.NewReader(`{}`))
		req.Header.Set(HeaderLegacyKey, "legacy")
		req.Header.Set("X-Tenant-ID", "smile")
		e.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 1 {
		t.Errorf("expected legacy header to be honoured, got %d calls", calls)
	}
}

func TestMiddleware_KeyTooLong(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Stop()
	calls := 0
	e := newTestServer(store, countingHandler(&calls, http.StatusOK))

	rec := do(e, http.MethodPost, completionPath, strings.Repeat("k", 300), "smile")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRecorder_DefaultsTo200(t *testing.T) {
	rec := &recorder{ResponseWriter: httptest.NewRecorder(), body: &bytes.Buffer{}, headers: make(http.Header)}
	if _, err := rec.Write([]byte("ok")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.statusCode != http.StatusOK {
		t.Errorf("expected implicit 200, got %d", rec.statusCode)
	}
	if rec.body.String() != "ok" {
		t.Errorf("body = %q", rec.body.String())
	}
}
