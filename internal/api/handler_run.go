package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowctl/internal/coordinator"
	"github.com/lyzr/flowctl/internal/platform/logger"
)

// runHandler implements the start/cancel half of the Coordinator RPC,
// grounded on the teacher's handlers.RunHandler (components-holding
// struct, echo.Context binding, echo.NewHTTPError status mapping).
type runHandler struct {
	manager *coordinator.Manager
	log     *logger.Logger
}

func newRunHandler(manager *coordinator.Manager, log *logger.Logger) *runHandler {
	return &runHandler{manager: manager, log: log}
}

type startRunRequest struct {
	WorkflowVersion string                 `json:"workflowVersion"`
	Input           map[string]interface{} `json:"input"`
}

// start implements `start(runId)` (§6): POST /api/workflows/:id/start
// creates and starts a new root run, returning its runId immediately —
// the run itself proceeds asynchronously; callers follow its progress via
// GET /api/coordinator/:runId/stream.
func (h *runHandler) start(c echo.Context) error {
	workflowID := c.Param("id")

	var req startRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	runID, err := h.manager.StartRun(c.Request().Context(), workflowID, req.WorkflowVersion, req.Input)
	if err != nil {
		h.log.Error("failed to start run", "workflowId", workflowID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.log.Info("run started", "workflowId", workflowID, "runId", runID)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"runId":      runID,
		"workflowId": workflowID,
	})
}

// cancel implements `cancel(runId)` (§6): POST
// /api/coordinator/:runId/cancel cancels a run and, transitively, every
// descendant sub-workflow run.
func (h *runHandler) cancel(c echo.Context) error {
	runID := c.Param("runId")

	co := h.manager.Get(runID)
	if co == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}

	h.manager.CancelRun(c.Request().Context(), runID)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"runId":  runID,
		"status": "cancelling",
	})
}
