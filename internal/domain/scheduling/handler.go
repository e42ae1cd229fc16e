package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/internal/platform/validate"
	"github.com/dentdesk/dentdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/:id", h.GetAppointment)
	g.POST("/appointments", h.CreateAppointment)
	g.PATCH("/appointments/:id/status", h.UpdateAppointmentStatus)

	g.GET("/recalls", h.ListRecalls)
	g.GET("/recalls/due", h.ListDueRecalls)
	g.POST("/recalls", h.CreateRecall)
	g.PATCH("/recalls/:id/status", h.UpdateRecallStatus)
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// -- Appointment --

type appointmentRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	DentistID uuid.UUID `json:"dentist_id" validate:"required"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Status    string    `json:"status" validate:"omitempty,oneof=scheduled confirmed"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req appointmentRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a := Appointment{
		PatientID: req.PatientID,
		DentistID: req.DentistID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    req.Status,
	}
	if req.Reason != "" {
		a.Reason = &req.Reason
	}
	if req.Notes != "" {
		a.Notes = &req.Notes
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f AppointmentFilter
	var err error
	if v := c.QueryParam("patient_id"); v != "" {
		if f.PatientID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}
	if v := c.QueryParam("dentist_id"); v != "" {
		if f.DentistID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid dentist_id")
		}
	}
	if v := c.QueryParam("from"); v != "" {
		if f.From, err = parseTime(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if f.To, err = parseTime(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	f.Status = c.QueryParam("status")

	items, total, err := h.svc.SearchAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Status string `json:"status" validate:"required"`
	}
	if err := validate.BindAndValidate(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.svc.GetAppointment(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	a, err := h.svc.UpdateAppointmentStatus(ctx, id, body.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

// -- Recall --

type recallRequest struct {
	PatientID     uuid.UUID  `json:"patient_id" validate:"required"`
	DentistID     *uuid.UUID `json:"dentist_id"`
	IntervalLabel string     `json:"interval_label" validate:"required,oneof=1w 2w 1m 3m 6m 12m"`
	DueDate       string     `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Reason        string     `json:"reason"`
}

func (h *Handler) CreateRecall(c echo.Context) error {
	var req recallRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	r := Recall{PatientID: req.PatientID, DentistID: req.DentistID, IntervalLabel: req.IntervalLabel}
	if req.DueDate != "" {
		r.DueDate, _ = time.Parse("2006-01-02", req.DueDate)
	}
	if req.Reason != "" {
		r.Reason = &req.Reason
	}
	if err := h.svc.CreateRecall(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListRecalls(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	items, total, err := h.svc.ListRecallsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListDueRecalls(c echo.Context) error {
	pg := pagination.FromContext(c)
	var before time.Time
	if v := c.QueryParam("before"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid before")
		}
		before = t
	}
	items, total, err := h.svc.ListDueRecalls(c.Request().Context(), before, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateRecallStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if _, err := h.svc.GetRecall(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "recall not found")
	}
	if err := h.svc.UpdateRecallStatus(ctx, id, body.Status); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
