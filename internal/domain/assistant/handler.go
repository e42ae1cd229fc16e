package assistant

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/assistant", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	g.POST("/chat", h.Chat)
}

func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.Chat(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
