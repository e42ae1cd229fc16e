package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/catalog/procedures", h.ListProcedures)
	api.GET("/catalog/procedures/:key", h.GetProcedure)
}

type procedureView struct {
	Procedure
	Supplies []supplyView `json:"supplies"`
}

type supplyView struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

func toView(p Procedure) procedureView {
	v := procedureView{Procedure: p, Supplies: make([]supplyView, 0, len(p.Supplies))}
	for _, s := range p.Supplies {
		name, _ := SupplyName(s.SKU)
		v.Supplies = append(v.Supplies, supplyView{SKU: s.SKU, Name: name, Qty: s.Qty})
	}
	return v
}

func (h *Handler) ListProcedures(c echo.Context) error {
	all := All()
	out := make([]procedureView, 0, len(all))
	for _, p := range all {
		out = append(out, toView(p))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": out, "total": len(out)})
}

func (h *Handler) GetProcedure(c echo.Context) error {
	p, ok := Lookup(c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "procedure not found")
	}
	return c.JSON(http.StatusOK, toView(p))
}
