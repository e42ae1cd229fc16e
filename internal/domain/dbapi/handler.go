package dbapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/db", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	g.GET("", h.Get)
	g.POST("", h.Post)
}

func (h *Handler) Get(c echo.Context) error {
	req := Request{
		Action:  c.QueryParam("action"),
		Table:   c.QueryParam("table"),
		ID:      c.QueryParam("id"),
		OrderBy: c.QueryParam("order_by"),
		Search:  c.QueryParam("search"),
		Query:   c.QueryParam("query"),
	}
	if v := c.QueryParam("ascending"); v != "" {
		asc, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "ascending must be a boolean")
		}
		req.Ascending = &asc
	}
	var err error
	if req.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}
	if req.Offset, err = intParam(c, "offset"); err != nil {
		return err
	}
	if v := c.QueryParam("filters"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Filters); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "filters must be a JSON object")
		}
	}
	return h.execute(c, http.MethodGet, req)
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return n, nil
}

func (h *Handler) Post(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.execute(c, http.MethodPost, req)
}

func (h *Handler) execute(c echo.Context, method string, req Request) error {
	res, err := h.svc.Execute(c.Request().Context(), method, req)
	if err == nil {
		return c.JSON(http.StatusOK, res)
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ErrCustomQueryDisabled), errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrMethodNotAllowed):
		return echo.NewHTTPError(http.StatusMethodNotAllowed, err.Error())
	case errors.Is(err, ErrUnknownAction), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrTableNotAllowed), errors.Is(err, ErrInvalidColumn):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23"):
		return echo.NewHTTPError(http.StatusConflict, pgErr.Message)
	case errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22"):
		return echo.NewHTTPError(http.StatusBadRequest, pgErr.Message)
	}
	h.logger.Error().Err(err).Str("action", req.Action).Str("table", req.Table).Msg("database api action failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "database action failed")
}
