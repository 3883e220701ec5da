// Package api exposes the Coordinator RPC named in §6 over HTTP/WebSocket:
// start a run, cancel a run, and stream its trace events. Grounded on the
// teacher's cmd/orchestrator (echo route groups, handler-struct-holding-
// services pattern) and cmd/fanout (gorilla/websocket upgrade, per-run
// broadcast) — collapsed here into one process since the Coordinator
// Manager and Emitter already live in the same binary, rather than
// split across an orchestrator service and a separate fanout relay.
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/flowctl/internal/coordinator"
	"github.com/lyzr/flowctl/internal/emitter"
	"github.com/lyzr/flowctl/internal/platform/logger"
)

// NewRouter builds the echo.Echo serving the engine's HTTP/WebSocket
// surface.
func NewRouter(manager *coordinator.Manager, em *emitter.Emitter, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "flowctl"})
	})

	runs := newRunHandler(manager, log)
	stream := newStreamHandler(em, log)

	workflows := e.Group("/api/workflows")
	workflows.POST("/:id/start", runs.start)

	coordinatorGroup := e.Group("/api/coordinator")
	coordinatorGroup.POST("/:runId/cancel", runs.cancel)
	coordinatorGroup.GET("/:runId/stream", stream.stream)

	return e
}
