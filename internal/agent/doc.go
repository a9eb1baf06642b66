// Package agent answers free-form questions about the mail archive. It runs
// a bounded loop against the reasoning service: each round either yields a
// text answer or a set of tool calls, which the agent executes against the
// search service and feeds back as tool results. The reasoning service never
// touches the archive directly.
package agent
