package engine

import (
	"sort"
	"time"
)

// BaseEnvironment is the designated default environment. Every entity
// resolves for it, and generation always emits it even when no entity
// declares overrides.
const BaseEnvironment = "base"

// Entity is a named, typed configuration record. It may inherit from other
// entities of its type within the same namespace and carry per-environment
// override layers.
type Entity struct {
	// ID is generated once at creation and never reused or mutated.
	ID string `json:"id"`

	// Namespace is the owning configuration namespace.
	Namespace string `json:"namespace"`

	// EntityType references a catalog entry, e.g. "storages".
	EntityType string `json:"entityType"`

	// Name is unique within (namespace, entityType). It may be edited.
	Name string `json:"name"`

	// Enabled controls whether the entity is emitted into artifacts.
	// Disabled entities are still validated.
	Enabled bool `json:"enabled"`

	// Fields holds the entity's own raw field values.
	Fields map[string]any `json:"fields"`

	// Inherit is the ordered list of parent entity ids. Later parents win
	// over earlier ones during resolution.
	Inherit []string `json:"inherit,omitempty"`

	// EnvironmentOverrides maps environment name to a partial field layer
	// applied over everything inheritance produced.
	EnvironmentOverrides map[string]map[string]any `json:"environmentOverrides,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy. Snapshots hand clones to readers so a validate
// pass never observes an entity mid-update.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Fields = cloneFieldMap(e.Fields)
	if e.Inherit != nil {
		out.Inherit = append([]string(nil), e.Inherit...)
	}
	if e.EnvironmentOverrides != nil {
		out.EnvironmentOverrides = make(map[string]map[string]any, len(e.EnvironmentOverrides))
		for env, layer := range e.EnvironmentOverrides {
			out.EnvironmentOverrides[env] = cloneFieldMap(layer)
		}
	}
	return &out
}

func cloneFieldMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Patch is a partial entity update. Nil members leave the corresponding
// part of the entity untouched.
type Patch struct {
	// Name renames the entity. Uniqueness within (namespace, entityType)
	// is re-checked.
	Name *string `json:"name,omitempty"`

	// Enabled toggles emission.
	Enabled *bool `json:"enabled,omitempty"`

	// Fields merges field values into the entity; a nil value removes the
	// field.
	Fields map[string]any `json:"fields,omitempty"`

	// Inherit replaces the parent list.
	Inherit *[]string `json:"inherit,omitempty"`

	// EnvironmentOverrides replaces override layers per environment; a nil
	// layer removes that environment.
	EnvironmentOverrides map[string]map[string]any `json:"environmentOverrides,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p *Patch) IsZero() bool {
	return p.Name == nil && p.Enabled == nil && p.Fields == nil &&
		p.Inherit == nil && p.EnvironmentOverrides == nil
}

// Snapshot is a frozen, deep-copied view of one namespace. All resolution
// and validation runs against snapshots, never live store state.
type Snapshot struct {
	Namespace string
	Entities  []*Entity

	byID map[string]*Entity
}

// NewSnapshot builds a snapshot from already-copied entities, preserving
// their order.
func NewSnapshot(namespace string, entities []*Entity) *Snapshot {
	s := &Snapshot{
		Namespace: namespace,
		Entities:  entities,
		byID:      make(map[string]*Entity, len(entities)),
	}
	for _, e := range entities {
		s.byID[e.ID] = e
	}
	return s
}

// Get returns the entity with the given id.
func (s *Snapshot) Get(id string) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Environments returns the sorted union of all override keys across the
// snapshot plus the base environment.
func (s *Snapshot) Environments() []string {
	set := map[string]bool{BaseEnvironment: true}
	for _, e := range s.Entities {
		for env := range e.EnvironmentOverrides {
			set[env] = true
		}
	}
	out := make([]string, 0, len(set))
	for env := range set {
		out = append(out, env)
	}
	sort.Strings(out)
	return out
}

// LayerKind names the resolution layer a field value came from.
type LayerKind string

const (
	// LayerDefault is the entity type's declared default.
	LayerDefault LayerKind = "default"

	// LayerInherited is a value contributed by an ancestor.
	LayerInherited LayerKind = "inherited"

	// LayerOwn is the entity's own field value.
	LayerOwn LayerKind = "own"

	// LayerOverride is an environment override, the highest-priority layer.
	LayerOverride LayerKind = "override"
)

// Origin records which layer contributed a resolved field value.
type Origin struct {
	// Layer is the winning layer kind.
	Layer LayerKind `json:"layer"`

	// Source is the contributing entity id for inherited and own layers,
	// the environment name for overrides, and empty for defaults.
	Source string `json:"source,omitempty"`
}

// ResolvedConfig is an entity's effective configuration for one environment.
type ResolvedConfig struct {
	EntityID    string `json:"entityId"`
	EntityType  string `json:"entityType"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Enabled     bool   `json:"enabled"`

	// Values is the fully merged field mapping.
	Values map[string]any `json:"values"`

	// Provenance maps each field to the layer that won it.
	Provenance map[string]Origin `json:"provenance"`

	// Chain is the inheritance linearization that produced Values,
	// ancestors first, the entity itself last.
	Chain []string `json:"chain"`
}

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation error or warning.
type Finding struct {
	Severity    Severity `json:"severity"`
	Kind        Kind     `json:"kind"`
	EntityID    string   `json:"entityId,omitempty"`
	EntityName  string   `json:"entityName,omitempty"`
	Field       string   `json:"field,omitempty"`
	Environment string   `json:"environment,omitempty"`
	Message     string   `json:"message"`
}

// ValidationResult accumulates findings for a whole namespace. The sweep is
// best-effort: one entity's failure never aborts validation of the rest.
type ValidationResult struct {
	Valid       bool      `json:"valid"`
	Errors      []Finding `json:"errors"`
	Warnings    []Finding `json:"warnings"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// AddError appends an error-severity finding and clears Valid.
func (r *ValidationResult) AddError(f Finding) {
	f.Severity = SeverityError
	r.Errors = append(r.Errors, f)
	r.Valid = false
}

// AddWarning appends a warning-severity finding.
func (r *ValidationResult) AddWarning(f Finding) {
	f.Severity = SeverityWarning
	r.Warnings = append(r.Warnings, f)
}

// ErrorMessages renders the errors as strings for the UI contract.
func (r *ValidationResult) ErrorMessages() []string {
	return renderFindings(r.Errors)
}

// WarningMessages renders the warnings as strings for the UI contract.
func (r *ValidationResult) WarningMessages() []string {
	return renderFindings(r.Warnings)
}

func renderFindings(findings []Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.String()
	}
	return out
}

// String renders a finding as "entity: message".
func (f Finding) String() string {
	switch {
	case f.EntityName != "" && f.Field != "":
		return f.EntityName + "." + f.Field + ": " + f.Message
	case f.EntityName != "":
		return f.EntityName + ": " + f.Message
	default:
		return f.Message
	}
}

// GenerateResult reports a completed emission run.
type GenerateResult struct {
	// FilesGenerated counts artifacts moved into place, manifest included.
	FilesGenerated int `json:"filesGenerated"`

	// Environments lists the environments emitted.
	Environments []string `json:"environments"`

	// OutputDir is the namespace root the artifacts landed in.
	OutputDir string `json:"outputDir"`

	Duration time.Duration `json:"duration"`
}

// UIConfig is the denormalized view of one namespace's resolved entities
// the dashboard renders.
type UIConfig struct {
	Namespace string `json:"namespace"`

	// Entities holds base-environment resolutions grouped by entity type.
	Entities map[string][]*ResolvedConfig `json:"entities"`

	// Environments is every environment referenced in the namespace.
	Environments []string `json:"environments"`

	// Warnings carries non-fatal findings from the underlying resolution.
	Warnings []string `json:"warnings"`

	GeneratedAt time.Time `json:"generatedAt"`
}
