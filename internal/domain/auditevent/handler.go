package auditevent

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/audit-logs", auth.RequireRole(auth.RoleAdmin))
	read.GET("", h.ListAuditLogs)
	read.GET("/:id", h.GetAuditLog)
}

func (h *Handler) GetAuditLog(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAuditLog(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "audit log not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAuditLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		UserID:     c.QueryParam("user_id"),
		Action:     c.QueryParam("action"),
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
		f.Since = &t
	}
	items, total, err := h.svc.SearchAuditLogs(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
