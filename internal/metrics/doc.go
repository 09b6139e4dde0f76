// Package metrics exposes Prometheus metrics for the FRITZ!Box client.
//
// A Registry owns its own prometheus.Registry so tests and several servers
// in one process do not collide on the default registerer. It plugs into
// the rest of the module through small hooks:
//
//   - session.Observer: logins and page fetches (count, result, latency)
//   - presence.PollFunc: polls per device and the current presence gauge
//   - presence.ChangeFunc: transitions per device and direction
//
// Handler serves the registry in the Prometheus text format together with
// the Go runtime and process collectors.
package metrics
