package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/engine"
	"github.com/datallboy/gotrack/internal/manifest"
)

type BatchController struct {
	App    *app.Context
	Queue  *engine.QueueManager
	Parser *manifest.Parser
}

// Create enqueues the manifest in the request body.
func (ctrl *BatchController) Create(c *echo.Context) error {
	m, err := ctrl.Parser.Parse(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	batch, err := ctrl.Queue.Add(m.Kind, m.DisplayName(), m.Build())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	ctrl.App.Logger.Info("Queued %s %q with %d tracks (%s)", batch.Kind, batch.Name, batch.TotalTracks, batch.ID)
	return c.JSON(http.StatusCreated, newBatchResponse(batch, nil))
}

// List returns the live queue followed by finished batches from history.
func (ctrl *BatchController) List(c *echo.Context) error {
	live := ctrl.Queue.GetAllItems()
	seen := make(map[string]bool, len(live))

	resp := make([]BatchResponse, 0, len(live))
	for _, b := range live {
		seen[b.ID] = true
		resp = append(resp, newBatchResponse(b, b.Outcomes()))
	}

	stored, err := ctrl.App.Store.ListBatches(queryInt(c, "limit", 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	for _, b := range stored {
		if seen[b.ID] {
			continue
		}
		outcomes, err := ctrl.App.Store.ListOutcomes(b.ID, b.TotalTracks)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		// Listings carry the counts only; GET /batches/:id has the outcomes.
		item := newBatchResponse(b, outcomes)
		item.Outcomes = nil
		resp = append(resp, item)
	}

	return c.JSON(http.StatusOK, resp)
}

func (ctrl *BatchController) Get(c *echo.Context) error {
	batch, ok := ctrl.Queue.GetItem(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "batch not found"})
	}

	outcomes := batch.Outcomes()
	if len(outcomes) == 0 && batch.IsFinished() {
		stored, err := ctrl.App.Store.ListOutcomes(batch.ID, batch.TotalTracks)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		outcomes = stored
	}

	return c.JSON(http.StatusOK, newBatchResponse(batch, outcomes))
}

func (ctrl *BatchController) Cancel(c *echo.Context) error {
	id := c.Param("id")
	if ctrl.Queue.Cancel(id) {
		return c.NoContent(http.StatusAccepted)
	}
	if _, ok := ctrl.Queue.GetItem(id); ok {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "batch already finished"})
	}
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "batch not found"})
}

// History lists stored track outcomes, newest first.
func (ctrl *BatchController) History(c *echo.Context) error {
	outcomes, err := ctrl.App.Store.ListOutcomes(c.QueryParam("batch"), queryInt(c, "limit", 100))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if outcomes == nil {
		outcomes = []domain.Outcome{}
	}
	return c.JSON(http.StatusOK, outcomes)
}

func queryInt(c *echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
