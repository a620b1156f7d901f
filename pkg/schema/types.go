package schema

import (
	"fmt"
	"math"
)

// FieldType is the primitive type of an entity field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldEnum   FieldType = "enum"
)

// FieldSpec describes a single field of an entity type.
type FieldSpec struct {
	// Name is the field name as it appears in entity field maps.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Type is the primitive or enum type of the field.
	Type FieldType `yaml:"type" json:"type" validate:"required,oneof=string int float bool enum"`

	// Required marks the field as mandatory after resolution.
	Required bool `yaml:"required" json:"required"`

	// Default is the value used when no layer of the inheritance chain
	// sets the field. May be nil.
	Default any `yaml:"default" json:"default,omitempty"`

	// Enum lists the allowed values for enum fields.
	Enum []string `yaml:"enum" json:"enum,omitempty" validate:"required_if=Type enum,omitempty,min=1"`
}

// EntityTypeDefinition describes one category of entities.
type EntityTypeDefinition struct {
	// ID is the catalog key, e.g. "storages".
	ID string `yaml:"-" json:"id"`

	// Title is the human-readable name shown by the UI.
	Title string `yaml:"title" json:"title" validate:"required"`

	// Fields is the ordered field specification.
	Fields []FieldSpec `yaml:"fields" json:"fields" validate:"required,min=1,dive"`
}

// Field returns the spec for the named field, or nil if the type does not
// declare it.
func (d *EntityTypeDefinition) Field(name string) *FieldSpec {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// CheckValue reports whether v is a member of the field's value domain.
// JSON decoding hands numbers over as float64, so int fields accept any
// float64 with a zero fractional part.
func (f *FieldSpec) CheckValue(v any) error {
	switch f.Type {
	case FieldString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case FieldInt:
		switch n := v.(type) {
		case int:
		case int64:
		case float64:
			if n != math.Trunc(n) {
				return fmt.Errorf("expected integer, got %v", n)
			}
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	case FieldFloat:
		switch v.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case FieldEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected one of %v, got %T", f.Enum, v)
		}
		for _, allowed := range f.Enum {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of %v", s, f.Enum)
	default:
		return fmt.Errorf("unknown field type %q", f.Type)
	}
	return nil
}
