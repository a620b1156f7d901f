package commands

import (
	"context"

	"github.com/laminacfg/lamina/pkg/config"
	"github.com/laminacfg/lamina/pkg/emit"
	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/entity"
	"github.com/laminacfg/lamina/pkg/resolve"
	"github.com/laminacfg/lamina/pkg/schema"
	"github.com/laminacfg/lamina/pkg/stores"
	"github.com/laminacfg/lamina/pkg/telemetry"
	"github.com/laminacfg/lamina/pkg/validate"
)

// runtime bundles everything a command needs to talk to the engine.
type runtime struct {
	cfg     *config.Config
	service *engine.Service
	metrics *telemetry.Metrics
	logger  *telemetry.Logger
}

// buildRuntime loads the config file, wires the engine and seeds it from
// the SQLite store. Callers must Close the runtime when done.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: cfg.Metrics.Namespace,
	})
	if err != nil {
		return nil, err
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	zlog := logger.Zerolog()
	entityStore := entity.NewStore(registry, zlog)
	resolver := resolve.NewResolver(registry, zlog)
	validator := validate.NewValidator(registry, resolver, zlog)
	emitter := emit.NewEmitter(cfg.Output.Root, resolver, validator, zlog)

	service, err := engine.NewService(engine.ServiceOptions{
		Registry:             registry,
		Store:                entityStore,
		Resolver:             resolver,
		Validator:            validator,
		Emitter:              emitter,
		Persistence:          store,
		Metrics:              metrics,
		Logger:               zlog.With().Str("component", "engine").Logger(),
		CacheTTL:             cfg.Cache.TTL,
		CacheCleanupInterval: cfg.Cache.CleanupInterval,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if err := service.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		service: service,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Close releases the runtime's resources.
func (r *runtime) Close() {
	if err := r.service.Close(); err != nil {
		r.logger.WithError(err).Warn("failed to close engine")
	}
}
