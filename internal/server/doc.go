// Package server provides the MCP server context and HTTP surfaces for the
// maildex application.
//
// # Key Components
//
// ServerContext holds the search service the MCP tools run against plus the
// embedding and vector clients behind it. Clients are built at startup so
// configuration errors fail fast; network connections are deferred to first
// use, so the server starts even when the vector index is unreachable.
//
// HTTPServer exposes the MCP server over the streamable HTTP transport with
// health endpoints and an optional static bearer token on /mcp. Per-caller
// identity is the deployment's concern (reverse proxy, service mesh); this
// server only gates on the shared secret.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed for
// Kubernetes-style probes.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolated from
// application traffic, with a ready signal so startup failures are caught
// instead of racing the first scrape.
package server
