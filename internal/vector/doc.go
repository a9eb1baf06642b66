// Package vector stores and queries message embeddings in qdrant.
//
// Two collections back the search tools: a sender identity index and a
// subject+snippet index, both with cosine distance. Every point carries the
// message payload (IDs, sender, recipient, subject, sent timestamp, snippet)
// so search results render without a round trip to the archive. Point IDs
// are derived from the message ID, which makes re-indexing idempotent.
package vector
