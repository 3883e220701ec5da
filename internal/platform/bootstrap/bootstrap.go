// Package bootstrap wires config, logging, storage, and the engine's core
// components (dispatcher, executor, coordinator manager) into one
// Components value, the way the teacher's common/bootstrap.Setup wires a
// service's DB/queue/cache/telemetry behind a single ordered call. Setup's
// stages follow the teacher's: load config, init logger, init storage (DB
// and/or Redis, each optional and independently skippable), then build the
// engine graph on top, registering a cleanup for everything that opened a
// connection.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lyzr/flowctl/internal/condition"
	"github.com/lyzr/flowctl/internal/coordinator"
	"github.com/lyzr/flowctl/internal/dispatcher"
	"github.com/lyzr/flowctl/internal/emitter"
	"github.com/lyzr/flowctl/internal/executor"
	"github.com/lyzr/flowctl/internal/llmbackend"
	"github.com/lyzr/flowctl/internal/model"
	"github.com/lyzr/flowctl/internal/platform/config"
	"github.com/lyzr/flowctl/internal/platform/logger"
	"github.com/lyzr/flowctl/internal/resource/fixture"
	"github.com/lyzr/flowctl/internal/store"
	"github.com/lyzr/flowctl/internal/store/memstore"
	"github.com/lyzr/flowctl/internal/store/pgstore"
	"github.com/lyzr/flowctl/internal/store/redisstore"
	"github.com/lyzr/flowctl/internal/supervisor"
	"github.com/lyzr/flowctl/internal/template"
)

// Setup initializes every engine component for serviceName. This is the
// one entry point cmd/engine (and any future service sharing the same
// core) should call.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Components{cleanupFuncs: make([]func() error, 0)}

	// 1. Load configuration.
	if options.customConfig != nil {
		c.Config = options.customConfig
	} else {
		var err error
		c.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: loading config: %w", err)
		}
	}

	// 2. Initialize logger.
	if options.customLogger != nil {
		c.Logger = options.customLogger
	} else {
		c.Logger = logger.New(c.Config.Service.LogLevel, c.Config.Service.LogFormat)
	}
	c.Logger.Info("initializing service", "service", serviceName, "environment", c.Config.Service.Environment)

	// 3. Postgres (optional).
	if c.Config.Database.Enabled && !options.skipDB {
		c.Logger.Info("connecting to database")
		pool, err := connectPostgres(ctx, c.Config)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connecting to database: %w", err)
		}
		c.DB = pool
		c.addCleanup(func() error {
			c.Logger.Info("closing database connection")
			c.DB.Close()
			return nil
		})
	}

	// 4. Redis (optional).
	if c.Config.Redis.Enabled && !options.skipRedis {
		c.Logger.Info("connecting to redis", "addr", c.Config.Redis.Addr)
		client := redis.NewClient(&redis.Options{Addr: c.Config.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: pinging redis: %w", err)
		}
		c.Redis = client
		c.addCleanup(func() error {
			c.Logger.Info("closing redis connection")
			return c.Redis.Close()
		})
	}

	// 5. Resource service: a fixture.Store loaded from EngineConfig's
	// definitions directory. A real resource service (a remote API, a
	// database-backed catalog) would be swapped in here without touching
	// anything downstream, since everything below only depends on
	// resource.Service.
	resources, err := fixture.Load(c.Config.Engine.DefinitionsDir)
	if err != nil {
		c.Logger.Warn("loading workflow definitions failed, starting with an empty resource store", "dir", c.Config.Engine.DefinitionsDir, "error", err)
		resources = fixture.New()
	}
	c.Resources = resources

	// 6. Run-record store: Postgres if enabled, else Redis if enabled,
	// else an in-memory store sufficient for a single-process dev run.
	c.RunStore = c.buildRunStore()

	// 7. Emitter: local subscriber fan-out, plus Redis PubSub relay when
	// Redis is available.
	c.Emitter = emitter.New(c.Redis, c.Logger)

	// 8. Dispatcher with every kind-specific handler except `workflow`,
	// which needs the Manager built in step 9 — registered once that
	// exists, closing the dispatcher/coordinator wiring loop.
	c.Dispatcher = c.buildDispatcher()

	// 9. Executor and the coordinator Manager sit on top of the
	// resource service, dispatcher, and emitter built above.
	c.Executor = executor.New(c.Resources, c.Dispatcher, condition.New(c.Logger), c.Logger)
	c.Manager = coordinator.NewManager(c.Resources, c.Executor, c.Emitter, c.RunStore, c.Logger)
	c.Dispatcher.Register(model.ActionWorkflow, dispatcher.NewWorkflowHandler(c.Manager))

	// 10. Hanging-run detector, started in the background for the
	// lifetime of the service.
	c.Supervisor = supervisor.NewTimeoutDetector(supervisor.NewManagerLister(c.Manager), c.Logger).
		WithTimeout(c.Config.Engine.HangingRunTimeout)
	supervisorCtx, stopSupervisor := context.WithCancel(ctx)
	go func() {
		if err := c.Supervisor.Start(supervisorCtx); err != nil && err != context.Canceled {
			c.Logger.Error("hanging-run detector stopped", "error", err)
		}
	}()
	c.addCleanup(func() error { stopSupervisor(); return nil })

	c.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", c.DB != nil,
		"redis", c.Redis != nil,
		"runStore", fmt.Sprintf("%T", c.RunStore),
	)
	return c, nil
}

// MustSetup is like Setup but panics on error, for services that can't
// recover from a failed startup.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	c, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("bootstrap: failed to set up service %s: %v", serviceName, err))
	}
	return c
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgstore.Schema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return pool, nil
}

func (c *Components) buildRunStore() store.RunStore {
	switch {
	case c.DB != nil:
		return pgstore.New(c.DB)
	case c.Redis != nil:
		return redisstore.New(c.Redis)
	default:
		return memstore.New()
	}
}

func (c *Components) buildDispatcher() *dispatcher.Dispatcher {
	d := dispatcher.New()

	var artifacts dispatcher.ArtifactStore
	var approvals dispatcher.ApprovalStore
	if c.Redis != nil {
		artifacts = redisstore.NewArtifacts(c.Redis)
		approvals = redisstore.NewApprovals(c.Redis)
	} else {
		artifacts = memstore.NewArtifactBlobs()
		approvals = memstore.NewApprovals()
	}

	var backend llmbackend.Backend
	if c.Config.LLM.Backend == "openai" {
		backend = llmbackend.NewOpenAIBackend(c.Config.LLM.APIKey, c.Config.LLM.BaseURL)
	} else {
		backend = llmbackend.NewMockBackend()
	}

	d.Register(model.ActionLLM, dispatcher.NewLLMHandler(c.Resources, template.NewRaymond(), backend, c.Logger))
	d.Register(model.ActionHTTP, dispatcher.NewHTTPHandler())
	d.Register(model.ActionMCP, dispatcher.NewMCPHandler())
	d.Register(model.ActionHuman, dispatcher.NewHumanHandler(approvals, c.Config.Engine.HumanApprovalTimeout))
	d.Register(model.ActionContext, dispatcher.NewContextHandler())
	d.Register(model.ActionArtifact, dispatcher.NewArtifactHandler(artifacts))
	d.Register(model.ActionVector, dispatcher.NewVectorHandler(dispatcher.NewMemVectorIndex()))
	d.Register(model.ActionMetric, dispatcher.NewMetricHandler(nil))
	d.Register(model.ActionMock, dispatcher.NewMockHandler())
	// model.ActionWorkflow is registered by Setup once the Manager it
	// needs as a SubworkflowStarter exists.

	return d
}
