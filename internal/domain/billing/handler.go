package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	g := api.Group("/invoices", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	g.GET("", h.ListInvoices)
	g.POST("", h.CreateInvoice)
	g.GET("/:id", h.GetInvoice)
	g.PATCH("/:id/status", h.UpdateStatus)
}

type itemRequest struct {
	ProcedureKey   *string `json:"procedure_key"`
	Description    string  `json:"description" validate:"required"`
	Tooth          *string `json:"tooth"`
	Quantity       int     `json:"quantity" validate:"min=1"`
	UnitPriceCents int64   `json:"unit_price_cents" validate:"min=0"`
}

type invoiceRequest struct {
	AppointmentID    *uuid.UUID      `json:"appointment_id"`
	PatientID        uuid.UUID       `json:"patient_id" validate:"required"`
	DentistID        *uuid.UUID      `json:"dentist_id"`
	TotalAmountCents *int64          `json:"total_amount_cents" validate:"omitempty,min=0"`
	AdjustmentType   string          `json:"adjustment_type"`
	AdjustmentValue  decimal.Decimal `json:"adjustment_value"`
	Items            []itemRequest   `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req invoiceRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	inv := &Invoice{
		AppointmentID:   req.AppointmentID,
		PatientID:       req.PatientID,
		DentistID:       req.DentistID,
		AdjustmentType:  req.AdjustmentType,
		AdjustmentValue: req.AdjustmentValue,
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		inv.CreatedBy = &uid
	}
	for _, it := range req.Items {
		inv.Items = append(inv.Items, &InvoiceItem{
			ProcedureKey:   it.ProcedureKey,
			Description:    it.Description,
			Tooth:          it.Tooth,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	if req.TotalAmountCents != nil {
		inv.TotalAmountCents = *req.TotalAmountCents
	} else {
		subtotal, err := PrepareItems(inv.Items)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		inv.TotalAmountCents = subtotal
	}
	if err := h.svc.CreateInvoice(c.Request().Context(), inv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := InvoiceFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("appointment_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
		f.AppointmentID = &id
	}
	items, total, err := h.svc.ListInvoices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid void"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	inv, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, inv)
}
