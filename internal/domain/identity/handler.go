package identity

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
	staff := api.Group("", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/:id", h.GetPatient)
	staff.GET("/dentists", h.ListDentists)
	staff.GET("/dentists/:id", h.GetDentist)
	staff.POST("/patients", h.CreatePatient)
	staff.PUT("/patients/:id", h.UpdatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/patients/:id", h.DeletePatient)
	admin.POST("/dentists", h.CreateDentist)
	admin.PUT("/dentists/:id/user", h.LinkDentistUser)
}

type patientRequest struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	Phone       string `json:"phone" validate:"omitempty,max=50"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
}

func (r patientRequest) apply(p *Patient) {
	p.FirstName = r.FirstName
	p.LastName = r.LastName
	p.Email = strPtr(r.Email)
	p.Phone = strPtr(r.Phone)
	p.Address = strPtr(r.Address)
	p.Notes = strPtr(r.Notes)
	p.DateOfBirth = nil
	if r.DateOfBirth != "" {
		if dob, err := time.Parse("2006-01-02", r.DateOfBirth); err == nil {
			p.DateOfBirth = &dob
		}
	}
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	var p Patient
	req.apply(&p)
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req patientRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	req.apply(p)
	if err := h.svc.UpdatePatient(c.Request().Context(), p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListPatients lists patients; ?name= and ?email= narrow the result.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	if v := c.QueryParam("name"); v != "" {
		params["name"] = v
	}
	if v := c.QueryParam("email"); v != "" {
		params["email"] = v
	}
	items, total, err := h.svc.SearchPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Dentist --

type dentistRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Specialty string `json:"specialty" validate:"omitempty,max=100"`
	UserID    string `json:"user_id"`
}

func (h *Handler) CreateDentist(c echo.Context) error {
	var req dentistRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	d := Dentist{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     strPtr(req.Email),
		Specialty: strPtr(req.Specialty),
		UserID:    strPtr(req.UserID),
	}
	if err := h.svc.CreateDentist(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDentist(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDentist(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dentist not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDentists(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDentists(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) LinkDentistUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.LinkUser(c.Request().Context(), id, body.UserID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dentist not found")
	}
	return c.NoContent(http.StatusNoContent)
}
