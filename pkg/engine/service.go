package engine

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/schema"
	"github.com/laminacfg/lamina/pkg/telemetry"
)

// Seeder is implemented by stores that can be seeded from persistence at
// startup.
type Seeder interface {
	Load(entities []*Entity)
}

// ServiceOptions carries the dependencies for a Service.
type ServiceOptions struct {
	Registry  *schema.Registry
	Store     EntityStore
	Resolver  Resolver
	Validator Validator
	Emitter   Emitter

	// Persistence is optional; without it the engine runs purely in memory.
	Persistence Persistence

	// Metrics is optional; nil disables metric collection.
	Metrics *telemetry.Metrics

	Logger zerolog.Logger

	// CacheTTL bounds how long a cached UI config stays fresh.
	CacheTTL time.Duration

	// CacheCleanupInterval is how often expired cache entries are purged.
	CacheCleanupInterval time.Duration
}

// Service is the engine facade. It owns the mutation path (write-through
// persistence, cache invalidation, metrics) and exposes the read surface
// the API and CLI are built on.
type Service struct {
	registry    *schema.Registry
	store       EntityStore
	resolver    Resolver
	validator   Validator
	emitter     Emitter
	persistence Persistence
	metrics     *telemetry.Metrics
	logger      zerolog.Logger

	uiCache *cache.Cache
}

// NewService wires a Service from its dependencies.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Registry == nil {
		return nil, NewError(KindInvalidArgument, "registry is required")
	}
	if opts.Store == nil {
		return nil, NewError(KindInvalidArgument, "entity store is required")
	}
	if opts.Resolver == nil || opts.Validator == nil || opts.Emitter == nil {
		return nil, NewError(KindInvalidArgument, "resolver, validator and emitter are required")
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cleanup := opts.CacheCleanupInterval
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	return &Service{
		registry:    opts.Registry,
		store:       opts.Store,
		resolver:    opts.Resolver,
		validator:   opts.Validator,
		emitter:     opts.Emitter,
		persistence: opts.Persistence,
		metrics:     metrics,
		logger:      opts.Logger,
		uiCache:     cache.New(ttl, cleanup),
	}, nil
}

// Start seeds the store from persistence. It is a no-op without a
// persistence backend.
func (s *Service) Start(ctx context.Context) error {
	if s.persistence == nil {
		return nil
	}
	entities, err := s.persistence.LoadEntities(ctx)
	if err != nil {
		return NewError(KindInternal, "failed to load persisted entities").WithCause(err)
	}
	if seeder, ok := s.store.(Seeder); ok {
		seeder.Load(entities)
	}
	s.logger.Info().Int("entities", len(entities)).Msg("store seeded from persistence")
	return nil
}

// Close releases the persistence backend.
func (s *Service) Close() error {
	if s.persistence == nil {
		return nil
	}
	return s.persistence.Close()
}

// EntityDefinitions returns the catalog's entity type definitions in id
// order.
func (s *Service) EntityDefinitions() []*schema.EntityTypeDefinition {
	ids := s.registry.TypeIDs()
	out := make([]*schema.EntityTypeDefinition, 0, len(ids))
	for _, id := range ids {
		if def, ok := s.registry.Get(id); ok {
			out = append(out, def)
		}
	}
	return out
}

// CreateEntity adds an entity and persists it.
func (s *Service) CreateEntity(ctx context.Context, namespace, entityType, name string) (*Entity, error) {
	e, err := s.store.Create(ctx, namespace, entityType, name)
	if err != nil {
		s.recordMutation("create", err)
		return nil, err
	}
	if err := s.persist(ctx, e); err != nil {
		s.recordMutation("create", err)
		return nil, err
	}
	s.afterMutation(ctx, e.Namespace)
	s.recordMutation("create", nil)
	return e, nil
}

// GetEntity returns a copy of the entity.
func (s *Service) GetEntity(ctx context.Context, id string) (*Entity, error) {
	return s.store.Get(ctx, id)
}

// UpdateEntity applies a partial patch and persists the result.
func (s *Service) UpdateEntity(ctx context.Context, id string, patch Patch) (*Entity, error) {
	e, err := s.store.Update(ctx, id, patch)
	if err != nil {
		s.recordMutation("update", err)
		return nil, err
	}
	if err := s.persist(ctx, e); err != nil {
		s.recordMutation("update", err)
		return nil, err
	}
	s.afterMutation(ctx, e.Namespace)
	s.recordMutation("update", nil)
	return e, nil
}

// DeleteEntity removes an entity. With cascade the inherit edges of
// dependents are removed first and the updated dependents persisted.
func (s *Service) DeleteEntity(ctx context.Context, id string, cascade bool) ([]*Entity, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		s.recordMutation("delete", err)
		return nil, err
	}
	updated, err := s.store.Delete(ctx, id, cascade)
	if err != nil {
		s.recordMutation("delete", err)
		return nil, err
	}
	if s.persistence != nil {
		if err := s.persistence.DeleteEntity(ctx, id); err != nil {
			s.recordMutation("delete", err)
			return nil, NewError(KindInternal, "failed to persist delete").WithEntity(id).WithCause(err)
		}
		for _, dep := range updated {
			if err := s.persist(ctx, dep); err != nil {
				s.recordMutation("delete", err)
				return nil, err
			}
		}
	}
	s.afterMutation(ctx, e.Namespace)
	s.recordMutation("delete", nil)

	// A cascade edit changes dependents' inheritance; re-run validation so
	// new findings surface immediately instead of on the next read.
	if len(updated) > 0 {
		if result, verr := s.ValidateNamespace(ctx, e.Namespace, ""); verr == nil && !result.Valid {
			s.logger.Warn().
				Str("namespace", e.Namespace).
				Int("errors", len(result.Errors)).
				Msg("cascade delete left validation errors")
		}
	}
	return updated, nil
}

// ListEntities returns a namespace's entities in creation order.
func (s *Service) ListEntities(ctx context.Context, namespace string) ([]*Entity, error) {
	return s.store.List(ctx, namespace)
}

// Children returns the entities inheriting from id.
func (s *Service) Children(ctx context.Context, id string) ([]*Entity, error) {
	return s.store.Children(ctx, id)
}

// Namespaces returns the known namespace names, sorted.
func (s *Service) Namespaces(ctx context.Context) []string {
	return s.store.Namespaces(ctx)
}

// Resolve computes an entity's effective configuration for one environment.
func (s *Service) Resolve(ctx context.Context, entityID, environment string) (*ResolvedConfig, error) {
	timer := telemetry.NewTimer()
	e, err := s.store.Get(ctx, entityID)
	if err != nil {
		s.metrics.RecordResolution("error", timer.Duration())
		return nil, err
	}
	snap, err := s.store.Snapshot(ctx, e.Namespace)
	if err != nil {
		s.metrics.RecordResolution("error", timer.Duration())
		return nil, err
	}
	resolved, err := s.resolver.Resolve(snap, entityID, environment)
	if err != nil {
		s.metrics.RecordResolution("error", timer.Duration())
		s.metrics.RecordError(string(KindOf(err)))
		return nil, err
	}
	s.metrics.RecordResolution("ok", timer.Duration())
	return resolved, nil
}

// ValidateNamespace sweeps a namespace and returns the accumulated
// findings. An empty environment validates the base resolution plus every
// declared override layer.
func (s *Service) ValidateNamespace(ctx context.Context, namespace, environment string) (*ValidationResult, error) {
	timer := telemetry.NewTimer()
	snap, err := s.store.Snapshot(ctx, namespace)
	if err != nil {
		return nil, err
	}
	result := s.validator.Validate(ctx, snap, environment)
	status := "ok"
	if !result.Valid {
		status = "invalid"
	}
	s.metrics.RecordValidation(status, timer.Duration(), len(result.Errors), len(result.Warnings))
	return result, nil
}

// Generate validates a namespace and, when clean, emits its artifacts.
func (s *Service) Generate(ctx context.Context, namespace string) (*GenerateResult, error) {
	timer := telemetry.NewTimer()
	snap, err := s.store.Snapshot(ctx, namespace)
	if err != nil {
		return nil, err
	}
	result, err := s.emitter.Generate(ctx, snap)
	if err != nil {
		status := "error"
		if IsKind(err, KindValidationFailed) {
			status = "invalid"
		}
		s.metrics.RecordGeneration(namespace, status, timer.Duration(), 0)
		s.metrics.RecordError(string(KindOf(err)))
		return nil, err
	}
	s.metrics.RecordGeneration(namespace, "ok", timer.Duration(), result.FilesGenerated)
	return result, nil
}

// UIConfigFor returns the denormalized namespace view the dashboard
// renders, served from cache unless force requests a fresh build.
func (s *Service) UIConfigFor(ctx context.Context, namespace string, force bool) (*UIConfig, error) {
	if !force {
		if cached, ok := s.uiCache.Get(namespace); ok {
			s.metrics.RecordCacheLookup("hit")
			return cached.(*UIConfig), nil
		}
	}
	s.metrics.RecordCacheLookup("miss")

	cfg, err := s.buildUIConfig(ctx, namespace)
	if err != nil {
		return nil, err
	}
	s.uiCache.SetDefault(namespace, cfg)
	return cfg, nil
}

func (s *Service) buildUIConfig(ctx context.Context, namespace string) (*UIConfig, error) {
	snap, err := s.store.Snapshot(ctx, namespace)
	if err != nil {
		return nil, err
	}

	cfg := &UIConfig{
		Namespace:    namespace,
		Entities:     make(map[string][]*ResolvedConfig),
		Environments: snap.Environments(),
		GeneratedAt:  time.Now().UTC(),
	}

	for _, e := range snap.Entities {
		resolved, err := s.resolver.Resolve(snap, e.ID, BaseEnvironment)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings, e.Name+": "+err.Error())
			continue
		}
		cfg.Entities[e.EntityType] = append(cfg.Entities[e.EntityType], resolved)
	}

	result := s.validator.Validate(ctx, snap, "")
	cfg.Warnings = append(cfg.Warnings, result.WarningMessages()...)

	return cfg, nil
}

// persist writes an entity through to the persistence backend.
func (s *Service) persist(ctx context.Context, e *Entity) error {
	if s.persistence == nil {
		return nil
	}
	if err := s.persistence.SaveEntity(ctx, e); err != nil {
		return NewError(KindInternal, "failed to persist entity").WithEntity(e.ID).WithCause(err)
	}
	return nil
}

// afterMutation invalidates the namespace's cached UI config and refreshes
// the entity count gauge.
func (s *Service) afterMutation(ctx context.Context, namespace string) {
	s.uiCache.Delete(namespace)
	if entities, err := s.store.List(ctx, namespace); err == nil {
		s.metrics.SetEntityCount(namespace, float64(len(entities)))
	}
}

func (s *Service) recordMutation(operation string, err error) {
	if err == nil {
		s.metrics.RecordMutation(operation, "ok")
		return
	}
	s.metrics.RecordMutation(operation, "error")
	s.metrics.RecordError(string(KindOf(err)))
}
