package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lyzr/flowctl/internal/coordinator"
	"github.com/lyzr/flowctl/internal/dispatcher"
	"github.com/lyzr/flowctl/internal/emitter"
	"github.com/lyzr/flowctl/internal/executor"
	"github.com/lyzr/flowctl/internal/platform/config"
	"github.com/lyzr/flowctl/internal/platform/logger"
	"github.com/lyzr/flowctl/internal/resource"
	"github.com/lyzr/flowctl/internal/store"
	"github.com/lyzr/flowctl/internal/supervisor"
)

// Components holds every initialized engine dependency, following the
// teacher's common/bootstrap.Components shape: one struct a service's
// main() can pull what it needs from, plus a Shutdown that tears
// everything down in reverse order.
type Components struct {
	Config *config.Config
	Logger *logger.Logger

	DB    *pgxpool.Pool // nil unless Database.Enabled
	Redis *redis.Client // nil unless Redis.Enabled

	Resources  resource.Service
	RunStore   store.RunStore
	Emitter    *emitter.Emitter
	Dispatcher *dispatcher.Dispatcher
	Executor   *executor.Executor
	Manager    *coordinator.Manager
	Supervisor *supervisor.TimeoutDetector

	cleanupFuncs []func() error
}

// addCleanup registers a cleanup function, run in reverse (LIFO) order by
// Shutdown.
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown tears down every initialized component in reverse of
// construction order. Safe to call even if Setup returned partway through
// (it only runs cleanups that were actually registered).
func (c *Components) Shutdown(_ context.Context) error {
	c.Logger.Info("shutting down components")
	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	c.Logger.Info("shutdown complete")
	return nil
}

// Health reports whether every external dependency Components connected
// to is still reachable.
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}
