// Package common provides shared utilities for MCP tool implementations.
// It wraps tool handlers with metrics and audit logging so individual tool
// packages stay focused on their own behavior.
package common
