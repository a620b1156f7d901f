// Package schema holds the catalog of entity types: the field set, required
// flags, defaults, and value domains each configuration entity must conform
// to. The catalog is compiled into the binary and loaded once at startup; it
// is immutable for the lifetime of the process.
package schema
