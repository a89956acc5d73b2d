package api

import (
	"github.com/labstack/echo/v4"

	"github.com/beajinsu/investment/internal/usecase"
	xhttp "github.com/beajinsu/investment/pkg/http"
	xlogger "github.com/beajinsu/investment/pkg/logger"
)

// TablesEchoHandler exposes the dashboard tables over HTTP.
type TablesEchoHandler struct {
	logger    *xlogger.Logger
	dashboard *usecase.Dashboard
}

func NewTablesEchoHandler(logger *xlogger.Logger, dashboard *usecase.Dashboard) *TablesEchoHandler {
	return &TablesEchoHandler{logger: logger, dashboard: dashboard}
}

func (h *TablesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/tables", h.List)
	g.GET("/tables/:name", h.Snapshot)
	g.POST("/tables/:name/sort", h.Sort)
	g.POST("/tables/:name/columns", h.ToggleColumn)
	g.POST("/tables/:name/refresh", h.Refresh)
}

// List returns the available table names.
func (h *TablesEchoHandler) List(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.dashboard.Names())
}

// Snapshot returns the current view-model state for one table.
func (h *TablesEchoHandler) Snapshot(c echo.Context) error {
	entry := h.dashboard.Table(c.Param("name"))
	if entry == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown table %q", c.Param("name")))
	}
	return xhttp.SuccessResponse(c, entry.VM.Snapshot())
}

// SortRequest names the column to sort by.
type SortRequest struct {
	Key string `json:"key" validate:"required"`
}

// Sort applies a click-to-toggle sort and returns the new snapshot.
// Unknown column keys are a no-op, not an error: the table comes back
// unchanged, same as clicking a header that does not exist.
func (h *TablesEchoHandler) Sort(c echo.Context) error {
	entry := h.dashboard.Table(c.Param("name"))
	if entry == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown table %q", c.Param("name")))
	}

	req := &SortRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	return xhttp.SuccessResponse(c, entry.VM.SortBy(req.Key))
}

// ToggleRequest sets one column's visibility.
type ToggleRequest struct {
	Key     string `json:"key" validate:"required"`
	Visible *bool  `json:"visible" validate:"required"`
}

// ToggleColumn flips a column's visibility and returns the snapshot.
func (h *TablesEchoHandler) ToggleColumn(c echo.Context) error {
	entry := h.dashboard.Table(c.Param("name"))
	if entry == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown table %q", c.Param("name")))
	}

	req := &ToggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	return xhttp.SuccessResponse(c, entry.VM.ToggleColumn(req.Key, *req.Visible))
}

// Refresh requests an out-of-band cycle. The call returns right away;
// the refreshed data arrives through the usual change notification.
func (h *TablesEchoHandler) Refresh(c echo.Context) error {
	entry := h.dashboard.Table(c.Param("name"))
	if entry == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown table %q", c.Param("name")))
	}

	entry.Refresher.RefreshNow()
	h.logger.Debug("manual refresh requested", xlogger.String("table", entry.Name))
	return xhttp.SuccessResponse(c, map[string]string{"table": entry.Name, "status": "scheduled"})
}
