// Package validate runs schema and cross-entity consistency checks over
// resolved configurations. The sweep is best-effort: findings accumulate
// across all entities, and one entity's failure never aborts validation of
// the rest.
package validate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/schema"
)

// Validator implements engine.Validator.
type Validator struct {
	registry *schema.Registry
	resolver engine.Resolver
	logger   zerolog.Logger
}

// NewValidator creates a validator that reuses the given resolver.
func NewValidator(registry *schema.Registry, resolver engine.Resolver, logger zerolog.Logger) *Validator {
	return &Validator{
		registry: registry,
		resolver: resolver,
		logger:   logger.With().Str("component", "validator").Logger(),
	}
}

// Validate implements engine.Validator. An empty environment validates the
// base resolution plus every override layer in the snapshot; a named
// environment restricts the override checks to that environment and
// resolves against it.
func (v *Validator) Validate(ctx context.Context, snap *engine.Snapshot, environment string) *engine.ValidationResult {
	started := time.Now()
	result := &engine.ValidationResult{
		Valid:       true,
		Errors:      []engine.Finding{},
		Warnings:    []engine.Finding{},
		EvaluatedAt: started.UTC(),
	}

	for _, e := range snap.Entities {
		if ctx.Err() != nil {
			break
		}
		v.validateEntity(snap, e, environment, result)
	}

	v.logger.Debug().
		Str("namespace", snap.Namespace).
		Int("entities", len(snap.Entities)).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(started)).
		Msg("Validation sweep completed")

	return result
}

func (v *Validator) validateEntity(snap *engine.Snapshot, e *engine.Entity, environment string, result *engine.ValidationResult) {
	def, ok := v.registry.Get(e.EntityType)
	if !ok {
		result.AddError(engine.Finding{
			Kind:       engine.KindUnknownType,
			EntityID:   e.ID,
			EntityName: e.Name,
			Message:    "entity type " + e.EntityType + " is not in the catalog",
		})
		return
	}

	// Override layers are checked even when resolution fails; the field
	// specification is known regardless.
	v.checkOverrides(def, e, environment, result)

	resolved, err := v.resolver.Resolve(snap, e.ID, environment)
	if err != nil {
		// Graph failures become findings, not aborts.
		var classified *engine.Error
		if errors.As(err, &classified) {
			result.AddError(engine.Finding{
				Kind:       classified.Kind,
				EntityID:   e.ID,
				EntityName: e.Name,
				Message:    classified.Message + renderCycle(classified.Cycle),
			})
		} else {
			result.AddError(engine.Finding{
				Kind:       engine.KindInternal,
				EntityID:   e.ID,
				EntityName: e.Name,
				Message:    err.Error(),
			})
		}
		return
	}

	// Required fields must be present after the full merge.
	for _, f := range def.Fields {
		if !f.Required {
			continue
		}
		if _, ok := resolved.Values[f.Name]; !ok {
			result.AddError(engine.Finding{
				Kind:       engine.KindMissingRequiredField,
				EntityID:   e.ID,
				EntityName: e.Name,
				Field:      f.Name,
				Message:    "required field is not set by any layer",
			})
		}
	}

	// Every resolved value must sit inside its field's declared domain.
	// Override-contributed values are skipped here; checkOverrides already
	// covers every override layer.
	for _, field := range sortedKeys(resolved.Values) {
		if resolved.Provenance[field].Layer == engine.LayerOverride {
			continue
		}
		spec := def.Field(field)
		if spec == nil {
			result.AddWarning(engine.Finding{
				Kind:       engine.KindFieldTypeMismatch,
				EntityID:   e.ID,
				EntityName: e.Name,
				Field:      field,
				Message:    "field is not declared by entity type " + e.EntityType,
			})
			continue
		}
		if err := spec.CheckValue(resolved.Values[field]); err != nil {
			result.AddError(engine.Finding{
				Kind:       engine.KindFieldTypeMismatch,
				EntityID:   e.ID,
				EntityName: e.Name,
				Field:      field,
				Message:    err.Error(),
			})
		}
	}
}

// checkOverrides validates override layers: unknown field names warn (the
// layers are allowed to be forward-compatible), values outside the declared
// domain are errors.
func (v *Validator) checkOverrides(def *schema.EntityTypeDefinition, e *engine.Entity, environment string, result *engine.ValidationResult) {
	for _, env := range sortedOverrideEnvs(e) {
		if environment != "" && env != environment {
			continue
		}
		layer := e.EnvironmentOverrides[env]
		for _, field := range sortedKeys(layer) {
			spec := def.Field(field)
			if spec == nil {
				result.AddWarning(engine.Finding{
					Kind:        engine.KindFieldTypeMismatch,
					EntityID:    e.ID,
					EntityName:  e.Name,
					Field:       field,
					Environment: env,
					Message:     "override names a field not declared by entity type " + e.EntityType,
				})
				continue
			}
			if err := spec.CheckValue(layer[field]); err != nil {
				result.AddError(engine.Finding{
					Kind:        engine.KindFieldTypeMismatch,
					EntityID:    e.ID,
					EntityName:  e.Name,
					Field:       field,
					Environment: env,
					Message:     "override " + err.Error(),
				})
			}
		}
	}
}

func renderCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	out := ": "
	for i, name := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += name
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedOverrideEnvs(e *engine.Entity) []string {
	envs := make([]string, 0, len(e.EnvironmentOverrides))
	for env := range e.EnvironmentOverrides {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	return envs
}
