// Package archive is the durable mail store shared by the exporter, the
// indexing step and the search service.
//
// Records are keyed by Gmail message ID and written with overwrite-by-key
// semantics, so replaying a page after a crash produces identical state.
// A checkpoint row per export query carries the pagination cursor that makes
// interrupted exports resumable.
package archive
