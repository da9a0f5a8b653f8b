// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST/GET /v1/monitors for natural-language monitor creation and listing.
//   - POST /v1/monitors/{id}/trigger to run a scheduled check now.
//   - POST /v1/check for the synchronous check entry point.
package api
