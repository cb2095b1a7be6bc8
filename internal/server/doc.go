// Package server runs the daemon's observability endpoints on a dedicated
// port:
//
//   - /metrics serves Prometheus metrics
//   - /healthz, /readyz and /healthz/detailed report liveness and readiness
//   - /status returns the auto-reply engine status as JSON
//
// Readiness follows the engine: the daemon is ready while the poll loop runs
// and not shutting down.
package server
