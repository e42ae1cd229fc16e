package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

func jsonContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","dentist_id":"` + uuid.New().String() +
		`","start_time":"2024-03-01T09:00:00Z","end_time":"2024-03-01T09:45:00Z","reason":"cleaning"}`
	c, rec := jsonContext(e, http.MethodPost, body)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateAppointment_EndBeforeStart(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","dentist_id":"` + uuid.New().String() +
		`","start_time":"2024-03-01T09:00:00Z","end_time":"2024-03-01T08:00:00Z"}`
	c, _ := jsonContext(e, http.MethodPost, body)

	err := h.CreateAppointment(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetAppointment_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetAppointment(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_UpdateAppointmentStatus(t *testing.T) {
	h, e := newTestHandler()
	a := newAppointment(time.Now())
	h.svc.CreateAppointment(context.Background(), a)

	c, rec := jsonContext(e, http.MethodPatch, `{"status":"confirmed"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.UpdateAppointmentStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Appointment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", got.Status)
	}
}

func TestHandler_UpdateAppointmentStatus_Conflict(t *testing.T) {
	h, e := newTestHandler()
	a := newAppointment(time.Now())
	h.svc.CreateAppointment(context.Background(), a)
	h.svc.UpdateAppointmentStatus(context.Background(), a.ID, StatusCompleted)

	c, _ := jsonContext(e, http.MethodPatch, `{"status":"cancelled"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.UpdateAppointmentStatus(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_ListAppointments_BadFilter(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?dentist_id=nope", nil), httptest.NewRecorder())
	err := h.ListAppointments(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListAppointments_ByDate(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	h.svc.CreateAppointment(ctx, newAppointment(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
	h.svc.CreateAppointment(ctx, newAppointment(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=2024-03-01&to=2024-03-02", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 appointment, got %d", body.Total)
	}
}

func TestHandler_CreateRecall(t *testing.T) {
	h, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, `{"patient_id":"`+uuid.New().String()+`","interval_label":"6m"}`)
	if err := h.CreateRecall(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateRecall_BadInterval(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, `{"patient_id":"`+uuid.New().String()+`","interval_label":"5y"}`)
	if err := h.CreateRecall(c); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHandler_ListRecalls_RequiresPatient(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := h.ListRecalls(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
