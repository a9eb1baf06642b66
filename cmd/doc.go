// Package cmd implements the command-line interface for maildex.
//
// This package provides the following commands:
//   - auth: Authorize a Gmail account and store its OAuth token
//   - export: Export Gmail messages into the local archive
//   - index: Embed archived messages and upsert them into the vector store
//   - ask: Answer a question about the archive using the reasoning service
//   - serve: Start the MCP server to provide search tools for AI assistants
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
