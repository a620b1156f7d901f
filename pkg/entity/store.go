// Package entity implements the in-memory entity store. It is the single
// authoritative copy of all configuration entities in the process; the
// optional SQLite persistence layer is written through by the engine facade,
// never read on the hot path.
package entity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/schema"
)

// Store holds all entity instances grouped by namespace. A single RWMutex
// guards the whole working set; it stays small (tens to low hundreds of
// entities), so finer granularity buys nothing.
type Store struct {
	mu       sync.RWMutex
	registry *schema.Registry
	logger   zerolog.Logger

	namespaces map[string]*namespaceState
	location   map[string]string // entity id -> namespace
}

type namespaceState struct {
	order    []string
	entities map[string]*engine.Entity
}

// NewStore creates an empty store backed by the given type catalog.
func NewStore(registry *schema.Registry, logger zerolog.Logger) *Store {
	return &Store{
		registry:   registry,
		logger:     logger.With().Str("component", "entity-store").Logger(),
		namespaces: make(map[string]*namespaceState),
		location:   make(map[string]string),
	}
}

// Create implements engine.EntityStore.
func (s *Store) Create(_ context.Context, namespace, entityType, name string) (*engine.Entity, error) {
	if namespace == "" || name == "" {
		return nil, engine.NewError(engine.KindInvalidArgument, "namespace and name are required")
	}
	if _, ok := s.registry.Get(entityType); !ok {
		return nil, engine.NewErrorf(engine.KindUnknownType, "entity type %q is not in the catalog", entityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		ns = &namespaceState{entities: make(map[string]*engine.Entity)}
		s.namespaces[namespace] = ns
	}

	if id := ns.findByName(entityType, name, ""); id != "" {
		return nil, engine.NewErrorf(engine.KindDuplicateName,
			"name %q already used by a %s entity", name, entityType)
	}

	now := time.Now().UTC()
	e := &engine.Entity{
		ID:         uuid.NewString(),
		Namespace:  namespace,
		EntityType: entityType,
		Name:       name,
		Enabled:    true,
		Fields:     make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ns.entities[e.ID] = e
	ns.order = append(ns.order, e.ID)
	s.location[e.ID] = namespace

	s.logger.Debug().
		Str("namespace", namespace).
		Str("entity_type", entityType).
		Str("entity_id", e.ID).
		Msg("Entity created")

	return e.Clone(), nil
}

// Get implements engine.EntityStore.
func (s *Store) Get(_ context.Context, id string) (*engine.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.lookup(id)
	if e == nil {
		return nil, engine.NewErrorf(engine.KindNotFound, "entity %s does not exist", id).WithEntity(id)
	}
	return e.Clone(), nil
}

// Update implements engine.EntityStore. The patch is applied to a clone and
// swapped in only after every check passes, so a failed call leaves the
// store unchanged.
func (s *Store) Update(_ context.Context, id string, patch engine.Patch) (*engine.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lookup(id)
	if current == nil {
		return nil, engine.NewErrorf(engine.KindNotFound, "entity %s does not exist", id).WithEntity(id)
	}
	if patch.IsZero() {
		return current.Clone(), nil
	}

	next := current.Clone()

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, engine.NewError(engine.KindInvalidArgument, "name must not be empty").WithEntity(id)
		}
		ns := s.namespaces[current.Namespace]
		if other := ns.findByName(current.EntityType, *patch.Name, id); other != "" {
			return nil, engine.NewErrorf(engine.KindDuplicateName,
				"name %q already used by a %s entity", *patch.Name, current.EntityType).WithEntity(id)
		}
		next.Name = *patch.Name
	}
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	for field, value := range patch.Fields {
		if value == nil {
			delete(next.Fields, field)
			continue
		}
		if next.Fields == nil {
			next.Fields = make(map[string]any)
		}
		next.Fields[field] = value
	}
	if patch.Inherit != nil {
		next.Inherit = append([]string(nil), (*patch.Inherit)...)
	}
	for env, layer := range patch.EnvironmentOverrides {
		if layer == nil {
			delete(next.EnvironmentOverrides, env)
			continue
		}
		if next.EnvironmentOverrides == nil {
			next.EnvironmentOverrides = make(map[string]map[string]any)
		}
		copied := make(map[string]any, len(layer))
		for k, v := range layer {
			copied[k] = v
		}
		next.EnvironmentOverrides[env] = copied
	}

	next.UpdatedAt = time.Now().UTC()
	s.namespaces[current.Namespace].entities[id] = next

	s.logger.Debug().
		Str("namespace", next.Namespace).
		Str("entity_id", id).
		Msg("Entity updated")

	return next.Clone(), nil
}

// Delete implements engine.EntityStore.
func (s *Store) Delete(_ context.Context, id string, cascade bool) ([]*engine.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.lookup(id)
	if target == nil {
		return nil, engine.NewErrorf(engine.KindNotFound, "entity %s does not exist", id).WithEntity(id)
	}

	ns := s.namespaces[target.Namespace]
	dependents := ns.children(id)

	if len(dependents) > 0 && !cascade {
		names := make([]string, len(dependents))
		for i, d := range dependents {
			names[i] = d.Name
		}
		sort.Strings(names)
		return nil, engine.NewErrorf(engine.KindReferencedByOthers,
			"entity is inherited by %v; delete the edges first or request cascade", names).WithEntity(id)
	}

	updated := make([]*engine.Entity, 0, len(dependents))
	now := time.Now().UTC()
	for _, d := range dependents {
		kept := d.Inherit[:0:0]
		for _, parent := range d.Inherit {
			if parent != id {
				kept = append(kept, parent)
			}
		}
		d.Inherit = kept
		d.UpdatedAt = now
		updated = append(updated, d.Clone())
	}

	delete(ns.entities, id)
	for i, oid := range ns.order {
		if oid == id {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
	delete(s.location, id)

	s.logger.Debug().
		Str("namespace", target.Namespace).
		Str("entity_id", id).
		Bool("cascade", cascade).
		Int("dependents_updated", len(updated)).
		Msg("Entity deleted")

	return updated, nil
}

// List implements engine.EntityStore.
func (s *Store) List(_ context.Context, namespace string) ([]*engine.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		return []*engine.Entity{}, nil
	}
	out := make([]*engine.Entity, 0, len(ns.order))
	for _, id := range ns.order {
		out = append(out, ns.entities[id].Clone())
	}
	return out, nil
}

// Children implements engine.EntityStore.
func (s *Store) Children(_ context.Context, id string) ([]*engine.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := s.lookup(id)
	if target == nil {
		return nil, engine.NewErrorf(engine.KindNotFound, "entity %s does not exist", id).WithEntity(id)
	}
	dependents := s.namespaces[target.Namespace].children(id)
	out := make([]*engine.Entity, len(dependents))
	for i, d := range dependents {
		out[i] = d.Clone()
	}
	return out, nil
}

// Namespaces implements engine.EntityStore.
func (s *Store) Namespaces(_ context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot implements engine.EntityStore.
func (s *Store) Snapshot(_ context.Context, namespace string) (*engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		return nil, engine.NewErrorf(engine.KindNotFound, "namespace %q does not exist", namespace)
	}
	copies := make([]*engine.Entity, 0, len(ns.order))
	for _, id := range ns.order {
		copies = append(copies, ns.entities[id].Clone())
	}
	return engine.NewSnapshot(namespace, copies), nil
}

// Load seeds the store from persisted entities, preserving creation order.
// It is called once at startup, before the store is shared.
func (s *Store) Load(entities []*engine.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]*engine.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	for _, e := range sorted {
		ns := s.namespaces[e.Namespace]
		if ns == nil {
			ns = &namespaceState{entities: make(map[string]*engine.Entity)}
			s.namespaces[e.Namespace] = ns
		}
		ns.entities[e.ID] = e.Clone()
		ns.order = append(ns.order, e.ID)
		s.location[e.ID] = e.Namespace
	}
	s.logger.Info().Int("entities", len(sorted)).Msg("Store loaded from persistence")
}

// lookup returns the live entity, or nil. Callers hold s.mu.
func (s *Store) lookup(id string) *engine.Entity {
	namespace, ok := s.location[id]
	if !ok {
		return nil
	}
	return s.namespaces[namespace].entities[id]
}

// findByName returns the id of the entity with the given type and name,
// excluding exceptID, or "".
func (ns *namespaceState) findByName(entityType, name, exceptID string) string {
	for _, id := range ns.order {
		e := ns.entities[id]
		if id != exceptID && e.EntityType == entityType && e.Name == name {
			return id
		}
	}
	return ""
}

// children returns live entities whose inherit list names id, in namespace
// order. Callers hold the store lock.
func (ns *namespaceState) children(id string) []*engine.Entity {
	var out []*engine.Entity
	for _, oid := range ns.order {
		e := ns.entities[oid]
		for _, parent := range e.Inherit {
			if parent == id {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
