package clinical

import (
	"net/http"

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
	read := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	read.GET("/patients/:id/treatments", h.ListTreatments)
	read.GET("/patients/:id/notes", h.ListNotes)
	read.GET("/patients/:id/prescriptions", h.ListPrescriptions)
	read.GET("/appointments/:id/record", h.GetVisitRecord)

	write := api.Group("", auth.RequireRole(auth.RoleDentist))
	write.POST("/clinical-notes", h.CreateNote)
	write.POST("/prescriptions", h.CreatePrescription)
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListTreatments(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTreatmentsByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListNotes(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListNotesByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPrescriptionsByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetVisitRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetVisitRecord(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

type noteRequest struct {
	AppointmentID *uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID  `json:"patient_id" validate:"required"`
	DentistID     *uuid.UUID `json:"dentist_id"`
	NoteType      string     `json:"note_type"`
	Content       string     `json:"content" validate:"required"`
}

func (h *Handler) CreateNote(c echo.Context) error {
	var req noteRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	n := ClinicalNote{
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		DentistID:     req.DentistID,
		NoteType:      req.NoteType,
		Content:       req.Content,
	}
	if err := h.svc.CreateNote(c.Request().Context(), &n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}
