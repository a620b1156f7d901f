// Package config loads and validates the lamina application configuration.
package config
