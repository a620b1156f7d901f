// Package stores provides durable persistence for configuration entities.
package stores
