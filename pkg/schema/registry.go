package schema

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Registry holds the immutable entity type catalog.
type Registry struct {
	types map[string]*EntityTypeDefinition
}

type catalogFile struct {
	EntityTypes map[string]*EntityTypeDefinition `yaml:"entityTypes" validate:"required,min=1"`
}

// NewRegistry loads the built-in catalog. It returns an error on any
// malformed definition; callers are expected to treat that as fatal since
// every other component depends on the catalog being present and consistent.
func NewRegistry() (*Registry, error) {
	return NewRegistryFromYAML(builtinCatalog)
}

// NewRegistryFromYAML loads a catalog from raw YAML. Exposed for tests and
// for projects that ship an extended catalog.
func NewRegistryFromYAML(raw []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entity type catalog: %w", err)
	}

	v := validator.New()
	if err := v.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid entity type catalog: %w", err)
	}

	for id, def := range file.EntityTypes {
		def.ID = id
		if err := v.Struct(def); err != nil {
			return nil, fmt.Errorf("invalid entity type %q: %w", id, err)
		}
		seen := make(map[string]bool, len(def.Fields))
		for _, f := range def.Fields {
			if seen[f.Name] {
				return nil, fmt.Errorf("entity type %q declares field %q twice", id, f.Name)
			}
			seen[f.Name] = true
			if f.Default != nil {
				if err := f.CheckValue(f.Default); err != nil {
					return nil, fmt.Errorf("entity type %q field %q: default %v", id, f.Name, err)
				}
			}
		}
	}

	return &Registry{types: file.EntityTypes}, nil
}

// Get returns the definition for the given type id.
func (r *Registry) Get(typeID string) (*EntityTypeDefinition, bool) {
	def, ok := r.types[typeID]
	return def, ok
}

// Types returns the full catalog keyed by type id.
func (r *Registry) Types() map[string]*EntityTypeDefinition {
	out := make(map[string]*EntityTypeDefinition, len(r.types))
	for id, def := range r.types {
		out[id] = def
	}
	return out
}

// TypeIDs returns the catalog keys in sorted order.
func (r *Registry) TypeIDs() []string {
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
