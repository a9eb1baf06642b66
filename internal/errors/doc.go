// Package errors classifies failures into transient and permanent categories
// and provides retry with exponential backoff for the transient ones.
//
// The export pipeline uses this classification to decide whether a failed
// fetch should be retried (rate limits, server errors, network hiccups) or
// whether the item should be skipped (malformed messages, missing resources).
package errors
