package dataimport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/imports", auth.RequireRole(auth.RoleDentist, auth.RoleStaff))
	g.POST("/preview", h.Preview)
	g.POST("/patients", h.ImportPatients)
}

func readUpload(c echo.Context) (*Table, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
	}
	defer f.Close()

	t, err := ReadFile(fh.Filename, f)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return t, nil
}

func (h *Handler) Preview(c echo.Context) error {
	t, err := readUpload(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.Preview(t))
}

// ImportPatients takes the file plus an optional "mapping" form field
// holding a JSON object of field -> header name.
func (h *Handler) ImportPatients(c echo.Context) error {
	t, err := readUpload(c)
	if err != nil {
		return err
	}
	var m Mapping
	if raw := c.FormValue("mapping"); raw != "" {
		var byHeader map[string]string
		if err := json.Unmarshal([]byte(raw), &byHeader); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "mapping must be a JSON object")
		}
		if m, err = ResolveMapping(t, byHeader); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.svc.ImportPatients(c.Request().Context(), t, m, c.FormValue("dry_run") == "true")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
