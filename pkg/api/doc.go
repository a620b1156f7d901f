// Package api exposes the engine over HTTP.
package api
