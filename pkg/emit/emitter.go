// Package emit serializes resolved, validated configurations into the
// on-disk layout the downstream build step consumes: one directory per
// namespace holding per-environment output plus a blueprint_cnf.json
// manifest describing the namespace's entity composition.
//
// Artifacts are staged in a temporary directory and moved into place one
// rename at a time, so an aborted run never leaves a half-written file
// visible to consumers.
package emit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
)

// ManifestName is the per-namespace manifest file.
const ManifestName = "blueprint_cnf.json"

// Emitter implements engine.Emitter.
type Emitter struct {
	outputRoot string
	resolver   engine.Resolver
	validator  engine.Validator
	logger     zerolog.Logger
}

// NewEmitter creates an emitter rooted at outputRoot.
func NewEmitter(outputRoot string, resolver engine.Resolver, validator engine.Validator, logger zerolog.Logger) *Emitter {
	return &Emitter{
		outputRoot: outputRoot,
		resolver:   resolver,
		validator:  validator,
		logger:     logger.With().Str("component", "emitter").Logger(),
	}
}

// manifest describes a namespace's entity composition for downstream tools.
type manifest struct {
	Namespace    string                      `json:"namespace"`
	Environments []string                    `json:"environments"`
	EntityTypes  map[string][]manifestEntity `json:"entityTypes"`
}

type manifestEntity struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Inherit []string `json:"inherit,omitempty"`
}

// Generate implements engine.Emitter. It refuses to write anything while
// the namespace has validation errors.
func (em *Emitter) Generate(ctx context.Context, snap *engine.Snapshot) (*engine.GenerateResult, error) {
	started := time.Now()

	if result := em.validator.Validate(ctx, snap, ""); !result.Valid {
		return nil, engine.NewErrorf(engine.KindValidationFailed,
			"namespace %q has %d validation errors; nothing was written",
			snap.Namespace, len(result.Errors))
	}

	if err := os.MkdirAll(em.outputRoot, 0o755); err != nil {
		return nil, engine.NewError(engine.KindFilesystemWrite, "failed to create output root").
			WithFS(engine.ClassifyFS(err)).WithCause(err)
	}
	stage, err := os.MkdirTemp(em.outputRoot, "."+snap.Namespace+".stage-")
	if err != nil {
		return nil, engine.NewError(engine.KindFilesystemWrite, "failed to create staging directory").
			WithFS(engine.ClassifyFS(err)).WithCause(err)
	}
	defer os.RemoveAll(stage)

	environments := snap.Environments()
	var staged []string

	for _, env := range environments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := em.stageEnvironment(snap, env, stage)
		if err != nil {
			return nil, err
		}
		staged = append(staged, files...)
	}

	manifestPath, err := em.stageManifest(snap, environments, stage)
	if err != nil {
		return nil, err
	}
	staged = append(staged, manifestPath)

	// Everything staged; move into place file by file. A failure here
	// aborts the remaining moves but cannot corrupt files already written.
	finalRoot := filepath.Join(em.outputRoot, snap.Namespace)
	moved := 0
	for _, rel := range staged {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest := filepath.Join(finalRoot, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, engine.NewErrorf(engine.KindFilesystemWrite, "failed to create %s", filepath.Dir(dest)).
				WithFS(engine.ClassifyFS(err)).WithCause(err)
		}
		if err := os.Rename(filepath.Join(stage, rel), dest); err != nil {
			return nil, engine.NewErrorf(engine.KindFilesystemWrite, "failed to move %s into place", rel).
				WithFS(engine.ClassifyFS(err)).WithCause(err)
		}
		moved++
	}

	em.logger.Info().
		Str("namespace", snap.Namespace).
		Strs("environments", environments).
		Int("files", moved).
		Dur("duration", time.Since(started)).
		Msg("Artifacts generated")

	return &engine.GenerateResult{
		FilesGenerated: moved,
		Environments:   environments,
		OutputDir:      finalRoot,
		Duration:       time.Since(started),
	}, nil
}

// stageEnvironment resolves every enabled entity for env, groups the
// results by entity type, and writes one JSON artifact per group under the
// staging directory. Returned paths are relative to the stage root.
func (em *Emitter) stageEnvironment(snap *engine.Snapshot, env, stage string) ([]string, error) {
	groups := make(map[string]map[string]map[string]any)
	for _, e := range snap.Entities {
		if !e.Enabled {
			continue
		}
		resolved, err := em.resolver.Resolve(snap, e.ID, env)
		if err != nil {
			// Validation passed just before, so any failure here is an
			// engine invariant break.
			return nil, engine.NewErrorf(engine.KindInternal, "resolution failed after validation for %s", e.ID).
				WithEntity(e.ID).WithCause(err)
		}
		if groups[e.EntityType] == nil {
			groups[e.EntityType] = make(map[string]map[string]any)
		}
		groups[e.EntityType][e.Name] = resolved.Values
	}

	var files []string
	for _, entityType := range sortedGroupKeys(groups) {
		rel := filepath.Join(env, entityType+".json")
		if err := writeJSON(filepath.Join(stage, rel), groups[entityType]); err != nil {
			return nil, err
		}
		files = append(files, rel)
	}
	return files, nil
}

func (em *Emitter) stageManifest(snap *engine.Snapshot, environments []string, stage string) (string, error) {
	m := manifest{
		Namespace:    snap.Namespace,
		Environments: environments,
		EntityTypes:  make(map[string][]manifestEntity),
	}
	for _, e := range snap.Entities {
		m.EntityTypes[e.EntityType] = append(m.EntityTypes[e.EntityType], manifestEntity{
			ID:      e.ID,
			Name:    e.Name,
			Enabled: e.Enabled,
			Inherit: e.Inherit,
		})
	}
	if err := writeJSON(filepath.Join(stage, ManifestName), m); err != nil {
		return "", err
	}
	return ManifestName, nil
}

// writeJSON writes v as indented JSON. Map keys marshal in sorted order,
// which keeps artifacts deterministic across runs.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engine.NewErrorf(engine.KindFilesystemWrite, "failed to create %s", filepath.Dir(path)).
			WithFS(engine.ClassifyFS(err)).WithCause(err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return engine.NewError(engine.KindInternal, "failed to encode artifact").WithCause(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engine.NewErrorf(engine.KindFilesystemWrite, "failed to write %s", filepath.Base(path)).
			WithFS(engine.ClassifyFS(err)).WithCause(err)
	}
	return nil
}

func sortedGroupKeys(m map[string]map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
