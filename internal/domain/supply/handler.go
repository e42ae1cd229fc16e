package supply

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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
	g := api.Group("/inventory", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	g.GET("", h.ListItems)
	g.POST("", h.CreateItem)
	g.GET("/low-stock", h.LowStock)
	g.GET("/:id", h.GetItem)
	g.PUT("/:id", h.UpdateItem)
	g.POST("/:id/adjustments", h.Adjust)
	g.GET("/:id/adjustments", h.ListAdjustments)
}

type itemRequest struct {
	Name              string  `json:"name" validate:"required,max=255"`
	SKU               *string `json:"sku"`
	Unit              string  `json:"unit"`
	Quantity          int     `json:"quantity" validate:"min=0"`
	LowStockThreshold int     `json:"low_stock_threshold" validate:"min=0"`
}

func (h *Handler) CreateItem(c echo.Context) error {
	var req itemRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	item := &InventoryItem{
		Name:              req.Name,
		SKU:               req.SKU,
		Unit:              req.Unit,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
	}
	if err := h.svc.CreateItem(c.Request().Context(), item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "inventory item not found")
	}
	return c.JSON(http.StatusOK, item)
}

// UpdateItem edits descriptive fields. Quantity only changes through
// adjustments.
func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req itemRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	item, err := h.svc.GetItem(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "inventory item not found")
	}
	item.Name = req.Name
	item.SKU = req.SKU
	if req.Unit != "" {
		item.Unit = req.Unit
	}
	item.LowStockThreshold = req.LowStockThreshold
	if err := h.svc.UpdateItem(ctx, item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListItems(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStock(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

type adjustRequest struct {
	Change int    `json:"change" validate:"required"`
	Reason string `json:"reason" validate:"required,oneof=manual restock correction"`
}

func (h *Handler) Adjust(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req adjustRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	change, err := h.svc.AdjustStock(ctx, AdjustRequest{
		ItemID:    id,
		Change:    req.Change,
		Reason:    req.Reason,
		CreatedBy: auth.UserIDFromContext(ctx),
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, change)
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "inventory item not found")
	case errors.Is(err, ErrInsufficientStock):
		return echo.NewHTTPError(http.StatusConflict, "adjustment would make quantity negative")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) ListAdjustments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAdjustments(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
