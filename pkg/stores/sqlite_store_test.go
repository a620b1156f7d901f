package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/laminacfg/lamina/pkg/engine"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "lamina.db")})
	if err != nil {
		t.Fatalf("Expected store creation to succeed, got: %v", err)
	}
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Expected init to succeed, got: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Expected migrations to run, got: %v", err)
	}
	return s
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	e := &engine.Entity{
		ID:         "e1",
		Namespace:  "shop",
		EntityType: "queues",
		Name:       "orders",
		Enabled:    true,
		Fields:     map[string]any{"broker": "kafka", "topic": "orders.v1"},
		Inherit:    []string{"e0"},
		EnvironmentOverrides: map[string]map[string]any{
			"prod": {"max_retries": float64(10)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveEntity(ctx, e); err != nil {
		t.Fatalf("Expected save to succeed, got: %v", err)
	}

	loaded, err := s.LoadEntities(ctx)
	if err != nil {
		t.Fatalf("Expected load to succeed, got: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(loaded))
	}
	got := loaded[0]
	if got.ID != "e1" || got.Name != "orders" || !got.Enabled {
		t.Errorf("Unexpected entity: %+v", got)
	}
	if got.Fields["broker"] != "kafka" {
		t.Errorf("Expected fields round-trip, got %v", got.Fields)
	}
	if len(got.Inherit) != 1 || got.Inherit[0] != "e0" {
		t.Errorf("Expected inherit round-trip, got %v", got.Inherit)
	}
	if got.EnvironmentOverrides["prod"]["max_retries"] != float64(10) {
		t.Errorf("Expected overrides round-trip, got %v", got.EnvironmentOverrides)
	}
}

func TestSQLiteStore_SaveIsUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := &engine.Entity{
		ID: "e1", Namespace: "shop", EntityType: "caches", Name: "sessions",
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveEntity(ctx, e); err != nil {
		t.Fatalf("Expected save to succeed, got: %v", err)
	}

	e.Name = "sessions-v2"
	e.Enabled = false
	e.UpdatedAt = now.Add(time.Minute)
	if err := s.SaveEntity(ctx, e); err != nil {
		t.Fatalf("Expected upsert to succeed, got: %v", err)
	}

	loaded, _ := s.LoadEntities(ctx)
	if len(loaded) != 1 {
		t.Fatalf("Expected 1 entity after upsert, got %d", len(loaded))
	}
	if loaded[0].Name != "sessions-v2" || loaded[0].Enabled {
		t.Errorf("Expected updated row, got %+v", loaded[0])
	}
}

func TestSQLiteStore_DeleteEntity(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"e1", "e2"} {
		e := &engine.Entity{
			ID: id, Namespace: "shop", EntityType: "caches", Name: "cache-" + id,
			Enabled: true, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.SaveEntity(ctx, e); err != nil {
			t.Fatalf("Expected save to succeed, got: %v", err)
		}
	}

	if err := s.DeleteEntity(ctx, "e1"); err != nil {
		t.Fatalf("Expected delete to succeed, got: %v", err)
	}
	loaded, _ := s.LoadEntities(ctx)
	if len(loaded) != 1 || loaded[0].ID != "e2" {
		t.Errorf("Expected only e2 to remain, got %v", loaded)
	}
}

func TestSQLiteStore_LoadPreservesCreationOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		e := &engine.Entity{
			ID: id, Namespace: "shop", EntityType: "caches", Name: "cache-" + id,
			Enabled:   true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveEntity(ctx, e); err != nil {
			t.Fatalf("Expected save to succeed, got: %v", err)
		}
	}

	loaded, err := s.LoadEntities(ctx)
	if err != nil {
		t.Fatalf("Expected load to succeed, got: %v", err)
	}
	for i, id := range ids {
		if loaded[i].ID != id {
			t.Errorf("Expected %s at position %d, got %s", id, i, loaded[i].ID)
		}
	}
}
