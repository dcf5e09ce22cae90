// Package http implements the admin HTTP server of sKV. It is separate from the
// data path and exposes:
//
//   - /metrics: the server's VictoriaMetrics set plus process metrics in the
//     prometheus text format
//   - /healthz: a liveness probe backed by a caller supplied health function
//
// When request logging is enabled every request is logged at debug level with
// method, path, status and duration.
package http
