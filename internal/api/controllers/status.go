package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/engine"
	"github.com/datallboy/gotrack/internal/progress"
)

type StatusController struct {
	App   *app.Context
	Queue *engine.QueueManager
	Hub   *progress.Hub
}

// Active reports the running batch and the files currently being written.
func (ctrl *StatusController) Active(c *echo.Context) error {
	resp := ActiveResponse{Writing: ctrl.App.Registry.Active()}
	if b := ctrl.Queue.GetActiveItem(); b != nil {
		br := newBatchResponse(b, b.Outcomes())
		resp.Batch = &br
	}
	return c.JSON(http.StatusOK, resp)
}

// Events returns recent progress events, optionally for one batch.
func (ctrl *StatusController) Events(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.Hub.Recent(queryInt(c, "limit", 100), c.QueryParam("batch")))
}
