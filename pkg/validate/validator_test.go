package validate

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/resolve"
	"github.com/laminacfg/lamina/pkg/schema"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("Expected catalog to load, got: %v", err)
	}
	resolver := resolve.NewResolver(registry, zerolog.Nop())
	return NewValidator(registry, resolver, zerolog.Nop())
}

func cacheEntity(id, name string, fields map[string]any, inherit ...string) *engine.Entity {
	return &engine.Entity{
		ID:         id,
		Namespace:  "shop",
		EntityType: "caches",
		Name:       name,
		Enabled:    true,
		Fields:     fields,
		Inherit:    inherit,
	}
}

func TestValidate_CleanNamespace(t *testing.T) {
	v := newTestValidator(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		cacheEntity("a", "sessions", map[string]any{"backend": "redis"}),
	})

	result := v.Validate(context.Background(), snap, "")
	if !result.Valid {
		t.Fatalf("Expected valid, got errors: %v", result.ErrorMessages())
	}
	if len(result.Errors) != 0 || len(result.Warnings) != 0 {
		t.Errorf("Expected no findings, got %v / %v", result.Errors, result.Warnings)
	}
}

func TestValidate_AccumulatesAcrossEntities(t *testing.T) {
	v := newTestValidator(t)
	// One entity missing its required field, another with a dangling
	// inherit reference. Both must be reported.
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		cacheEntity("a", "sessions", map[string]any{}),
		cacheEntity("b", "pages", map[string]any{"backend": "memory"}, "ghost"),
	})

	result := v.Validate(context.Background(), snap, "")
	if result.Valid {
		t.Fatal("Expected invalid result")
	}
	if len(result.Errors) != 2 {
		t.Fatalf("Expected exactly 2 errors, got %d: %v", len(result.Errors), result.ErrorMessages())
	}

	kinds := map[engine.Kind]bool{}
	names := map[string]bool{}
	for _, f := range result.Errors {
		kinds[f.Kind] = true
		names[f.EntityName] = true
	}
	if !kinds[engine.KindMissingRequiredField] || !kinds[engine.KindDanglingReference] {
		t.Errorf("Expected both error kinds, got %v", kinds)
	}
	if !names["sessions"] || !names["pages"] {
		t.Errorf("Expected both entities reported, got %v", names)
	}
}

func TestValidate_CycleReportedForAllParticipants(t *testing.T) {
	v := newTestValidator(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		cacheEntity("a", "sessions", map[string]any{"backend": "redis"}, "b"),
		cacheEntity("b", "pages", map[string]any{"backend": "memory"}, "a"),
	})

	result := v.Validate(context.Background(), snap, "")
	if result.Valid {
		t.Fatal("Expected invalid result")
	}

	var cyclic int
	for _, f := range result.Errors {
		if f.Kind == engine.KindCyclicInheritance {
			cyclic++
		}
	}
	if cyclic != 2 {
		t.Errorf("Expected cycle reported for both entities, got %d: %v", cyclic, result.ErrorMessages())
	}
}

func TestValidate_DomainChecks(t *testing.T) {
	v := newTestValidator(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		cacheEntity("a", "sessions", map[string]any{
			"backend":     "carrier-pigeon", // not in the enum
			"ttl_seconds": "soon",           // not an int
		}),
	})

	result := v.Validate(context.Background(), snap, "")
	if len(result.Errors) != 2 {
		t.Fatalf("Expected 2 type errors, got %v", result.ErrorMessages())
	}
	for _, f := range result.Errors {
		if f.Kind != engine.KindFieldTypeMismatch {
			t.Errorf("Expected KindFieldTypeMismatch, got %s", f.Kind)
		}
	}
}

func TestValidate_UndeclaredOwnFieldWarns(t *testing.T) {
	v := newTestValidator(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		cacheEntity("a", "sessions", map[string]any{"backend": "redis", "sharding": true}),
	})

	result := v.Validate(context.Background(), snap, "")
	if !result.Valid {
		t.Fatalf("Expected undeclared field to warn, not error: %v", result.ErrorMessages())
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Field != "sharding" {
		t.Errorf("Expected one warning for sharding, got %v", result.Warnings)
	}
}

func TestValidate_Overrides(t *testing.T) {
	v := newTestValidator(t)
	e := cacheEntity("a", "sessions", map[string]any{"backend": "redis"})
	e.EnvironmentOverrides = map[string]map[string]any{
		"prod": {
			"ttl_seconds": 900,      // fine
			"shard_count": 4,        // unknown field: warning
			"max_entries": "plenty", // wrong type: error
		},
	}
	snap := engine.NewSnapshot("shop", []*engine.Entity{e})

	result := v.Validate(context.Background(), snap, "")
	if len(result.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %v", result.Warnings)
	}
	if result.Warnings[0].Field != "shard_count" || result.Warnings[0].Environment != "prod" {
		t.Errorf("Unexpected warning: %+v", result.Warnings[0])
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "max_entries" {
		t.Fatalf("Expected 1 error for max_entries, got %v", result.ErrorMessages())
	}
}

func TestValidate_EnvironmentScopesOverrideChecks(t *testing.T) {
	v := newTestValidator(t)
	e := cacheEntity("a", "sessions", map[string]any{"backend": "redis"})
	e.EnvironmentOverrides = map[string]map[string]any{
		"prod":    {"unknown_field": 1},
		"staging": {"other_unknown": 2},
	}
	snap := engine.NewSnapshot("shop", []*engine.Entity{e})

	result := v.Validate(context.Background(), snap, "staging")
	if len(result.Warnings) != 1 || result.Warnings[0].Environment != "staging" {
		t.Errorf("Expected only the staging layer checked, got %v", result.Warnings)
	}
}

func TestValidate_RequiredSatisfiedByInheritance(t *testing.T) {
	v := newTestValidator(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		cacheEntity("base", "defaults", map[string]any{"backend": "memory"}),
		cacheEntity("a", "sessions", map[string]any{}, "base"),
	})

	result := v.Validate(context.Background(), snap, "")
	if !result.Valid {
		t.Errorf("Expected inherited required field to satisfy the check: %v", result.ErrorMessages())
	}
}
