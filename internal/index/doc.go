// Package index turns archived mail into vector index entries.
//
// An indexing run drains the archive's unindexed records in batches: each
// record's From header is embedded into the sender collection and its
// subject plus snippet into the content collection, then the record is
// stamped as indexed. Records are only stamped after both upserts succeed,
// so a crash mid-batch re-indexes at most one batch; upserts are keyed by
// message ID and replace rather than duplicate.
package index
