package completion

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/internal/platform/idempotency"
	"github.com/dentdesk/dentdesk/internal/platform/validate"
)

type Handler struct {
	svc    *Service
	store  idempotency.Store
	logger zerolog.Logger
}

// NewHandler wires the completion routes. With a store, saves honour the
// Idempotency-Key header.
func NewHandler(svc *Service, store idempotency.Store, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments/:id/completion", auth.RequireRole(auth.RoleDentist))
	g.POST("/preview", h.Preview)
	if h.store != nil {
		g.POST("", h.Complete, idempotency.Middleware(h.store, h.logger))
	} else {
		g.POST("", h.Complete)
	}
}

func (h *Handler) bind(c echo.Context) (SaveRequest, error) {
	var req SaveRequest
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := validate.BindAndValidate(c, &req); err != nil {
		return req, err
	}
	req.AppointmentID = id
	req.ActorID = auth.UserIDFromContext(c.Request().Context())
	return req, nil
}

func (h *Handler) Preview(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Preview(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Complete(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Complete(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err, out)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) fail(c echo.Context, err error, out *Outcome) error {
	var stockErr *StockError
	switch {
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"message":     err.Error(),
			"stock_risks": stockErr.Risks,
			"outcome":     out,
		})
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrVisitInProgress), errors.Is(err, ErrAppointmentCompleted), errors.Is(err, ErrAppointmentClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	h.logger.Error().Err(err).Str("appointment_id", c.Param("id")).Msg("visit completion failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to save visit")
}
