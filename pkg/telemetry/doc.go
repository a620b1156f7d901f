// Package telemetry provides structured logging and Prometheus metrics
// for the lamina engine.
package telemetry
