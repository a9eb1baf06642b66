// Package llm is a minimal client for an Anthropic-compatible messages
// endpoint, covering exactly what the ask loop needs: text completions with
// declared tools, tool_use blocks out, tool_result blocks back in. The
// model's reasoning is opaque; this package only moves the conversation
// across the wire.
package llm
