// Package instrumentation provides OpenTelemetry instrumentation for the
// maildex pipeline and MCP server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, export runs, indexing, and completions
//   - Distributed tracing for tool invocations and backend calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_sessions: Gauge of active MCP sessions
//
// Export Metrics:
//   - export_pages_total: Counter of Gmail listing pages fetched
//   - export_messages_listed_total: Counter of message IDs returned by listings
//   - export_records_total: Counter of processed messages by status (success, skipped, error)
//
// Index Metrics:
//   - index_records_total: Counter of archive records pushed to the vector store by status
//
// Completion Metrics:
//   - llm_completion_rounds_total: Counter of reasoning rounds by stop reason
//   - llm_completion_duration_seconds: Histogram of completion round-trip durations
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - MCP tool invocations (tool.<name>)
//   - Backend calls (<service>.<operation>, e.g. gmail.list, qdrant.query)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: maildex)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "maildex",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/mcp", 200, time.Since(start))
//
//	// Record an export page
//	recorder.RecordExportPage(ctx, "after:2023/01/01", 100)
//
//	// Record an MCP tool invocation
//	recorder.RecordToolInvocation(ctx, "search_by_sender", "success", time.Since(start))
package instrumentation
