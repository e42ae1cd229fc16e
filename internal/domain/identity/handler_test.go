package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentdesk/dentdesk/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	e.Validator = validate.New()
	return h, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost,
		`{"first_name":"Ana","last_name":"Lopes","date_of_birth":"1990-04-12","email":"ana@example.com"}`), rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.DateOfBirth == nil || p.DateOfBirth.Year() != 1990 {
		t.Errorf("expected date_of_birth to be parsed, got %v", p.DateOfBirth)
	}
}

func TestHandler_CreatePatient_ValidationError(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"first_name":"Ana","date_of_birth":"12/04/1990"}`), httptest.NewRecorder())

	err := h.CreatePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	p := &Patient{FirstName: "Ana", LastName: "Lopes"}
	h.svc.CreatePatient(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, e := newTestHandler()
	p := &Patient{FirstName: "Ana", LastName: "Lopes"}
	h.svc.CreatePatient(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"first_name":"Ana","last_name":"Lopes-Silva","phone":"+32 470 12 34 56"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.LastName != "Lopes-Silva" || strVal(p.Phone) == "" {
		t.Errorf("expected update to apply, got %+v", p)
	}
}

func TestHandler_ListPatients_SearchByName(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	h.svc.CreatePatient(ctx, &Patient{FirstName: "Ana", LastName: "Lopes"})
	h.svc.CreatePatient(ctx, &Patient{FirstName: "Bram", LastName: "De Vries"})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?name=ana", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 match, got %d", body.Total)
	}
}

func TestHandler_CreateDentist_AndLink(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"first_name":"Marie","last_name":"Dubois","specialty":"endodontics"}`), rec)
	if err := h.CreateDentist(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d Dentist
	json.Unmarshal(rec.Body.Bytes(), &d)

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPut, `{"user_id":"auth0|marie"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.LinkDentistUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	uid, _ := h.svc.LinkedUserID(context.Background(), d.ID)
	if uid != "auth0|marie" {
		t.Errorf("expected linked user, got %q", uid)
	}
}

func TestHandler_LinkDentistUser_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"user_id":"x"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.LinkDentistUser(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
