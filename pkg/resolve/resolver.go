// Package resolve computes an entity's effective configuration by walking
// its inheritance graph and layering environment overrides.
//
// The merge precedence is fixed and load-bearing: ancestors before
// descendant, earlier-listed parent before later-listed parent, environment
// overrides last. Reordering any of it silently changes which value wins
// for shared fields.
package resolve

import (
	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/schema"
)

// Resolver implements engine.Resolver over a type catalog.
type Resolver struct {
	registry *schema.Registry
	logger   zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(registry *schema.Registry, logger zerolog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve implements engine.Resolver.
func (r *Resolver) Resolve(snap *engine.Snapshot, entityID, environment string) (*engine.ResolvedConfig, error) {
	if environment == "" {
		environment = engine.BaseEnvironment
	}

	target, ok := snap.Get(entityID)
	if !ok {
		return nil, engine.NewErrorf(engine.KindNotFound, "entity %s does not exist", entityID).
			WithEntity(entityID)
	}
	def, ok := r.registry.Get(target.EntityType)
	if !ok {
		return nil, engine.NewErrorf(engine.KindUnknownType,
			"entity type %q is not in the catalog", target.EntityType).WithEntity(entityID)
	}

	chain, err := r.linearize(snap, target)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any)
	provenance := make(map[string]engine.Origin)

	// Lowest layer: the type's declared defaults.
	for _, f := range def.Fields {
		if f.Default != nil {
			values[f.Name] = f.Default
			provenance[f.Name] = engine.Origin{Layer: engine.LayerDefault}
		}
	}

	// Inheritance layers in linearization order; a later entry wins over
	// every earlier one for fields they both define.
	chainIDs := make([]string, len(chain))
	for i, link := range chain {
		chainIDs[i] = link.ID
		layer := engine.LayerInherited
		if link.ID == target.ID {
			layer = engine.LayerOwn
		}
		for field, value := range link.Fields {
			values[field] = value
			provenance[field] = engine.Origin{Layer: layer, Source: link.ID}
		}
	}

	// Highest layer: the environment's override set.
	if overrides, ok := target.EnvironmentOverrides[environment]; ok {
		for field, value := range overrides {
			values[field] = value
			provenance[field] = engine.Origin{Layer: engine.LayerOverride, Source: environment}
		}
	}

	return &engine.ResolvedConfig{
		EntityID:    target.ID,
		EntityType:  target.EntityType,
		Name:        target.Name,
		Environment: environment,
		Enabled:     target.Enabled,
		Values:      values,
		Provenance:  provenance,
		Chain:       chainIDs,
	}, nil
}

// linearize flattens the inheritance graph into merge order using a
// depth-first walk: every ancestor is placed before the entities that
// inherit it, and each ancestor contributes once, at its first position in
// the left-to-right traversal. Cycles are detected via the recursion stack
// and reported with the full cycle path.
func (r *Resolver) linearize(snap *engine.Snapshot, target *engine.Entity) ([]*engine.Entity, error) {
	var (
		chain   []*engine.Entity
		path    []string
		done    = make(map[string]bool)
		onStack = make(map[string]bool)
	)

	var visit func(cur *engine.Entity) error
	visit = func(cur *engine.Entity) error {
		if onStack[cur.ID] {
			return engine.NewError(engine.KindCyclicInheritance, "inheritance cycle detected").
				WithEntity(target.ID).
				WithCycle(r.cyclePath(snap, path, cur.ID))
		}
		if done[cur.ID] {
			return nil
		}

		onStack[cur.ID] = true
		path = append(path, cur.ID)

		for _, parentID := range cur.Inherit {
			parent, ok := snap.Get(parentID)
			if !ok {
				return engine.NewErrorf(engine.KindDanglingReference,
					"%q inherits %s, which does not exist", cur.Name, parentID).
					WithEntity(target.ID)
			}
			if parent.EntityType != target.EntityType {
				return engine.NewErrorf(engine.KindDanglingReference,
					"%q inherits %q of type %s; parents must be %s",
					cur.Name, parent.Name, parent.EntityType, target.EntityType).
					WithEntity(target.ID)
			}
			if err := visit(parent); err != nil {
				return err
			}
		}

		onStack[cur.ID] = false
		path = path[:len(path)-1]
		done[cur.ID] = true
		chain = append(chain, cur)
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}
	return chain, nil
}

// cyclePath renders the cycle closing at repeatedID as entity names.
func (r *Resolver) cyclePath(snap *engine.Snapshot, path []string, repeatedID string) []string {
	start := 0
	for i, id := range path {
		if id == repeatedID {
			start = i
			break
		}
	}
	ids := append(append([]string(nil), path[start:]...), repeatedID)
	names := make([]string, len(ids))
	for i, id := range ids {
		if e, ok := snap.Get(id); ok {
			names[i] = e.Name
		} else {
			names[i] = id
		}
	}
	return names
}
