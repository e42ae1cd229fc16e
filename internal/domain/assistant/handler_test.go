package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/internal/platform/validate"
)

func newTestServer(role string) *echo.Echo {
	e := echo.New()
	e.Validator = validate.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), "user-1", role)))
			return next(c)
		}
	})
	NewHandler(NewService(nil, zerolog.Nop())).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func postChat(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Chat(t *testing.T) {
	rec := postChat(newTestServer(auth.RoleStaff), `{"message":"My face is swollen and I have a fever","mode":"triage"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Urgency != UrgencyMedium || resp.Mode != ModeTriage || !resp.Fallback {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_Validation(t *testing.T) {
	e := newTestServer(auth.RoleDentist)
	for _, body := range []string{`{}`, `{"message":"hi","mode":"surgeon"}`, `not json`} {
		if rec := postChat(e, body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}
