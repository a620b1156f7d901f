package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/laminacfg/lamina/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.Persistence using SQLite. The in-memory
// entity store stays authoritative at runtime; this store is written
// through on every mutation and read once at startup.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveEntity upserts an entity row.
func (s *SQLiteStore) SaveEntity(ctx context.Context, e *engine.Entity) error {
	fields, err := json.Marshal(orEmptyMap(e.Fields))
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	inherit, err := json.Marshal(orEmptySlice(e.Inherit))
	if err != nil {
		return fmt.Errorf("failed to encode inherit list: %w", err)
	}
	overrides, err := json.Marshal(orEmptyOverrides(e.EnvironmentOverrides))
	if err != nil {
		return fmt.Errorf("failed to encode overrides: %w", err)
	}

	query := `
		INSERT INTO entities (id, namespace, entity_type, name, enabled, fields, inherit, environment_overrides, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			fields = excluded.fields,
			inherit = excluded.inherit,
			environment_overrides = excluded.environment_overrides,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.Namespace,
		e.EntityType,
		e.Name,
		boolToInt(e.Enabled),
		string(fields),
		string(inherit),
		string(overrides),
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save entity %s: %w", e.ID, err)
	}
	return nil
}

// DeleteEntity removes an entity row.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	return nil
}

// LoadEntities reads every persisted entity in creation order.
func (s *SQLiteStore) LoadEntities(ctx context.Context) ([]*engine.Entity, error) {
	query := `
		SELECT id, namespace, entity_type, name, enabled, fields, inherit, environment_overrides, created_at, updated_at
		FROM entities
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []*engine.Entity
	for rows.Next() {
		var (
			e         engine.Entity
			enabled   int
			fields    string
			inherit   string
			overrides string
		)
		if err := rows.Scan(
			&e.ID, &e.Namespace, &e.EntityType, &e.Name, &enabled,
			&fields, &inherit, &overrides, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		e.Enabled = enabled != 0
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, fmt.Errorf("corrupt fields for entity %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(inherit), &e.Inherit); err != nil {
			return nil, fmt.Errorf("corrupt inherit list for entity %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(overrides), &e.EnvironmentOverrides); err != nil {
			return nil, fmt.Errorf("corrupt overrides for entity %s: %w", e.ID, err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity rows: %w", err)
	}
	return out, nil
}

// HealthCheck verifies the database connection.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyOverrides(m map[string]map[string]any) map[string]map[string]any {
	if m == nil {
		return map[string]map[string]any{}
	}
	return m
}
