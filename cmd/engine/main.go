// Command engine runs the workflow execution engine: the Coordinator/
// Executor core plus the HTTP/WebSocket surface over it, wired together by
// internal/platform/bootstrap the way the teacher's cmd/workflow-runner
// wires its own coordinator/executor/supervisor trio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/flowctl/internal/api"
	"github.com/lyzr/flowctl/internal/platform/bootstrap"
	"github.com/lyzr/flowctl/internal/platform/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("engine starting",
		"port", components.Config.Service.Port,
		"definitionsDir", components.Config.Engine.DefinitionsDir,
	)

	router := api.NewRouter(components.Manager, components.Emitter, components.Logger)
	srv := server.New(components.Config.Service.Name, components.Config.Service.Port, router, components.Logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
