package bootstrap

import (
	"github.com/lyzr/flowctl/internal/platform/config"
	"github.com/lyzr/flowctl/internal/platform/logger"
)

// Option configures the bootstrap process, mirroring the teacher's
// common/bootstrap functional-options shape.
type Option func(*options)

type options struct {
	skipDB       bool
	skipRedis    bool
	customLogger *logger.Logger
	customConfig *config.Config
}

// WithoutDB skips Postgres initialization even if Database.Enabled is set.
// Useful for tests that want a pgstore-shaped config without a real
// database.
func WithoutDB() Option {
	return func(o *options) { o.skipDB = true }
}

// WithoutRedis skips Redis initialization even if Redis.Enabled is set.
func WithoutRedis() Option {
	return func(o *options) { o.skipRedis = true }
}

// WithCustomLogger uses a caller-supplied logger instead of building one
// from config.
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}

// WithCustomConfig uses a caller-supplied config instead of loading one
// from the environment.
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

func defaultOptions() *options {
	return &options{}
}
