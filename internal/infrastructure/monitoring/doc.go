// Package monitoring provides Prometheus metrics for the daemon.
//
// Metrics cover the control-plane HTTP surface (request counts and
// latencies), the lifecycle engine (start requests by backend and result,
// running application gauge, published events) and WebSocket subscribers.
// The /metrics endpoint exposes them in Prometheus exposition format.
package monitoring
