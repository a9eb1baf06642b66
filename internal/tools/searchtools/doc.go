// Package searchtools exposes the mail archive lookups as MCP tools and as
// tool definitions for the completion API. The two surfaces share one parse
// and dispatch path so a query behaves the same whether an external client or
// the built-in agent asks.
package searchtools
