package schema

import (
	"strings"
	"testing"
)

func TestNewRegistry_BuiltinCatalog(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("Expected built-in catalog to load, got: %v", err)
	}

	for _, typeID := range []string{"storages", "services", "caches", "queues"} {
		def, ok := r.Get(typeID)
		if !ok {
			t.Errorf("Expected type %q in catalog", typeID)
			continue
		}
		if def.ID != typeID {
			t.Errorf("Expected ID %q, got %q", typeID, def.ID)
		}
		if len(def.Fields) == 0 {
			t.Errorf("Expected fields for %q", typeID)
		}
	}
}

func TestNewRegistryFromYAML_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not yaml", ":\n  - ["},
		{"empty catalog", "entityTypes: {}"},
		{"missing title", "entityTypes:\n  things:\n    fields:\n      - name: a\n        type: string"},
		{"no fields", "entityTypes:\n  things:\n    title: Things\n    fields: []"},
		{"bad field type", "entityTypes:\n  things:\n    title: Things\n    fields:\n      - name: a\n        type: blob"},
		{"enum without values", "entityTypes:\n  things:\n    title: Things\n    fields:\n      - name: a\n        type: enum"},
		{"duplicate field", "entityTypes:\n  things:\n    title: Things\n    fields:\n      - name: a\n        type: string\n      - name: a\n        type: bool"},
		{"default outside domain", "entityTypes:\n  things:\n    title: Things\n    fields:\n      - name: a\n        type: enum\n        enum: [x, y]\n        default: z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistryFromYAML([]byte(tt.raw)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestFieldSpec_CheckValue(t *testing.T) {
	enumField := FieldSpec{Name: "driver", Type: FieldEnum, Enum: []string{"postgres", "mysql"}}

	tests := []struct {
		name    string
		field   FieldSpec
		value   any
		wantErr bool
	}{
		{"string ok", FieldSpec{Type: FieldString}, "hello", false},
		{"string from number", FieldSpec{Type: FieldString}, 42.0, true},
		{"bool ok", FieldSpec{Type: FieldBool}, true, false},
		{"bool from string", FieldSpec{Type: FieldBool}, "true", true},
		{"int ok", FieldSpec{Type: FieldInt}, 7, false},
		{"int as json float", FieldSpec{Type: FieldInt}, 7.0, false},
		{"int fractional", FieldSpec{Type: FieldInt}, 7.5, true},
		{"float ok", FieldSpec{Type: FieldFloat}, 1.25, false},
		{"float from int", FieldSpec{Type: FieldFloat}, 3, false},
		{"float from string", FieldSpec{Type: FieldFloat}, "1.25", true},
		{"enum member", enumField, "postgres", false},
		{"enum non-member", enumField, "sqlite", true},
		{"enum non-string", enumField, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.CheckValue(tt.value)
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for value %v", tt.value)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error for value %v, got: %v", tt.value, err)
			}
		})
	}
}

func TestEntityTypeDefinition_Field(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("Expected catalog to load, got: %v", err)
	}
	def, _ := r.Get("services")

	if f := def.Field("image"); f == nil {
		t.Error("Expected services to declare field image")
	}
	if f := def.Field("nope"); f != nil {
		t.Error("Expected nil for undeclared field")
	}
}

func TestRegistry_TypeIDs_Sorted(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("Expected catalog to load, got: %v", err)
	}

	ids := r.TypeIDs()
	if len(ids) < 2 {
		t.Fatalf("Expected several type ids, got %v", ids)
	}
	if !strings.HasPrefix(strings.Join(ids, ","), "caches") {
		t.Errorf("Expected sorted ids starting with caches, got %v", ids)
	}
}
