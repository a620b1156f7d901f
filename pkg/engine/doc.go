// Package engine defines the shared types of the configuration composition
// engine - entities, snapshots, resolved configurations, validation findings -
// together with the classified error type and the Service facade that wires
// the store, resolver, validator, and emitter behind the request/response
// operations the UI consumes.
package engine
