package emit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/resolve"
	"github.com/laminacfg/lamina/pkg/schema"
	"github.com/laminacfg/lamina/pkg/validate"
)

func newTestEmitter(t *testing.T) (*Emitter, string) {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("Expected catalog to load, got: %v", err)
	}
	out := t.TempDir()
	resolver := resolve.NewResolver(registry, zerolog.Nop())
	validator := validate.NewValidator(registry, resolver, zerolog.Nop())
	return NewEmitter(out, resolver, validator, zerolog.Nop()), out
}

func queueEntity(id, name, broker, topic string) *engine.Entity {
	return &engine.Entity{
		ID:         id,
		Namespace:  "shop",
		EntityType: "queues",
		Name:       name,
		Enabled:    true,
		Fields:     map[string]any{"broker": broker, "topic": topic},
	}
}

func TestGenerate_WritesPerEnvironmentArtifacts(t *testing.T) {
	em, out := newTestEmitter(t)

	orders := queueEntity("q1", "orders", "kafka", "orders.v1")
	orders.EnvironmentOverrides = map[string]map[string]any{
		"prod": {"max_retries": 10},
	}
	cache := &engine.Entity{
		ID: "c1", Namespace: "shop", EntityType: "caches", Name: "sessions",
		Enabled: true, Fields: map[string]any{"backend": "redis"},
	}
	snap := engine.NewSnapshot("shop", []*engine.Entity{orders, cache})

	result, err := em.Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}

	// base and prod environments, two entity types each, plus manifest.
	if result.FilesGenerated != 5 {
		t.Errorf("Expected 5 files, got %d", result.FilesGenerated)
	}
	if len(result.Environments) != 2 {
		t.Errorf("Expected [base prod], got %v", result.Environments)
	}

	raw, err := os.ReadFile(filepath.Join(out, "shop", "prod", "queues.json"))
	if err != nil {
		t.Fatalf("Expected prod queues artifact, got: %v", err)
	}
	var group map[string]map[string]any
	if err := json.Unmarshal(raw, &group); err != nil {
		t.Fatalf("Expected valid JSON artifact, got: %v", err)
	}
	if group["orders"]["max_retries"] != float64(10) {
		t.Errorf("Expected prod override in artifact, got %v", group["orders"])
	}

	raw, err = os.ReadFile(filepath.Join(out, "shop", "base", "queues.json"))
	if err != nil {
		t.Fatalf("Expected base queues artifact, got: %v", err)
	}
	if err := json.Unmarshal(raw, &group); err != nil {
		t.Fatalf("Expected valid JSON artifact, got: %v", err)
	}
	if group["orders"]["max_retries"] != float64(5) {
		t.Errorf("Expected catalog default in base artifact, got %v", group["orders"])
	}
}

func TestGenerate_RefusesInvalidNamespace(t *testing.T) {
	em, out := newTestEmitter(t)

	// Missing the required topic field.
	broken := &engine.Entity{
		ID: "q1", Namespace: "shop", EntityType: "queues", Name: "orders",
		Enabled: true, Fields: map[string]any{"broker": "kafka"},
	}
	snap := engine.NewSnapshot("shop", []*engine.Entity{broken})

	_, err := em.Generate(context.Background(), snap)
	if engine.KindOf(err) != engine.KindValidationFailed {
		t.Fatalf("Expected KindValidationFailed, got %v", err)
	}

	// Nothing may have been written.
	if _, statErr := os.Stat(filepath.Join(out, "shop")); !os.IsNotExist(statErr) {
		t.Error("Expected no output directory for invalid namespace")
	}
}

func TestGenerate_SkipsDisabledEntities(t *testing.T) {
	em, out := newTestEmitter(t)

	enabled := queueEntity("q1", "orders", "kafka", "orders.v1")
	disabled := queueEntity("q2", "audit", "kafka", "audit.v1")
	disabled.Enabled = false
	snap := engine.NewSnapshot("shop", []*engine.Entity{enabled, disabled})

	if _, err := em.Generate(context.Background(), snap); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(out, "shop", "base", "queues.json"))
	if err != nil {
		t.Fatalf("Expected queues artifact, got: %v", err)
	}
	var group map[string]map[string]any
	if err := json.Unmarshal(raw, &group); err != nil {
		t.Fatalf("Expected valid JSON, got: %v", err)
	}
	if _, ok := group["audit"]; ok {
		t.Error("Expected disabled entity to be excluded from artifacts")
	}

	// The manifest still lists it, flagged as disabled.
	raw, err = os.ReadFile(filepath.Join(out, "shop", ManifestName))
	if err != nil {
		t.Fatalf("Expected manifest, got: %v", err)
	}
	var m struct {
		EntityTypes map[string][]struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"entityTypes"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Expected valid manifest JSON, got: %v", err)
	}
	found := false
	for _, me := range m.EntityTypes["queues"] {
		if me.Name == "audit" {
			found = true
			if me.Enabled {
				t.Error("Expected audit flagged disabled in manifest")
			}
		}
	}
	if !found {
		t.Error("Expected disabled entity listed in manifest")
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	em, out := newTestEmitter(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		queueEntity("q1", "orders", "kafka", "orders.v1"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := em.Generate(ctx, snap); err == nil {
		t.Fatal("Expected error for cancelled context")
	}

	// The abandoned staging directory must not linger.
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("Expected output root readable, got: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "shop" {
			t.Errorf("Unexpected leftover %q in output root", e.Name())
		}
	}
	if _, statErr := os.Stat(filepath.Join(out, "shop")); !os.IsNotExist(statErr) {
		t.Error("Expected no artifacts after cancellation")
	}
}

func TestGenerate_DeterministicArtifacts(t *testing.T) {
	em, out := newTestEmitter(t)
	snap := engine.NewSnapshot("shop", []*engine.Entity{
		queueEntity("q1", "orders", "kafka", "orders.v1"),
		queueEntity("q2", "billing", "rabbitmq", "billing.v1"),
	})

	if _, err := em.Generate(context.Background(), snap); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(out, "shop", "base", "queues.json"))
	if err != nil {
		t.Fatalf("Expected artifact, got: %v", err)
	}

	if _, err := em.Generate(context.Background(), snap); err != nil {
		t.Fatalf("Expected regeneration to succeed, got: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(out, "shop", "base", "queues.json"))
	if err != nil {
		t.Fatalf("Expected artifact, got: %v", err)
	}

	if string(first) != string(second) {
		t.Error("Expected byte-identical artifacts across runs")
	}
}
