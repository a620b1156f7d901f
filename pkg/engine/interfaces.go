package engine

import "context"

// EntityStore is the mutable entity collection. Every mutation is visible
// to subsequent reads within the process; readers that need consistency
// across multiple entities take a Snapshot.
type EntityStore interface {
	// Create adds an enabled entity with empty own fields; type defaults
	// apply at resolve time. Fails with KindDuplicateName on a name
	// collision within (namespace, entityType) and KindUnknownType for
	// types missing from the catalog.
	Create(ctx context.Context, namespace, entityType, name string) (*Entity, error)

	// Get returns a copy of the entity.
	Get(ctx context.Context, id string) (*Entity, error)

	// Update applies a partial patch atomically. The store state is
	// unchanged when an error is returned.
	Update(ctx context.Context, id string, patch Patch) (*Entity, error)

	// Delete removes an entity. Without cascade it fails with
	// KindReferencedByOthers while other entities inherit the target; with
	// cascade the inherit edge is removed from every dependent first. The
	// updated dependents are returned.
	Delete(ctx context.Context, id string, cascade bool) ([]*Entity, error)

	// List returns copies of a namespace's entities in creation order.
	List(ctx context.Context, namespace string) ([]*Entity, error)

	// Children returns copies of the entities that list id in their
	// inherit list.
	Children(ctx context.Context, id string) ([]*Entity, error)

	// Namespaces returns the known namespace names, sorted.
	Namespaces(ctx context.Context) []string

	// Snapshot freezes one namespace for resolution and validation.
	Snapshot(ctx context.Context, namespace string) (*Snapshot, error)
}

// Resolver computes effective configurations over a snapshot.
type Resolver interface {
	// Resolve merges the entity's inheritance chain and the environment's
	// override layer. Precedence is fixed: ancestors before descendant,
	// earlier-listed parent before later-listed parent, environment
	// overrides last.
	Resolve(snap *Snapshot, entityID, environment string) (*ResolvedConfig, error)
}

// Validator sweeps a snapshot and accumulates findings.
type Validator interface {
	Validate(ctx context.Context, snap *Snapshot, environment string) *ValidationResult
}

// Emitter serializes resolved, validated configurations to disk.
type Emitter interface {
	Generate(ctx context.Context, snap *Snapshot) (*GenerateResult, error)
}

// Persistence is the optional durable backing for the entity store. The
// engine writes through on every mutation and loads once at startup.
type Persistence interface {
	SaveEntity(ctx context.Context, e *Entity) error
	DeleteEntity(ctx context.Context, id string) error
	LoadEntities(ctx context.Context) ([]*Entity, error)
	Close() error
}
