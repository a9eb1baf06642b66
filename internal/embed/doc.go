// Package embed turns text into vectors through an OpenAI-compatible
// embeddings endpoint.
//
// The client batches inputs (at most 100 per call), caches results in an
// LRU so re-indexing unchanged text never hits the endpoint twice, and
// retries transient endpoint failures with the shared backoff policy. The
// embedding dimension can be configured or probed from the endpoint before
// the first collection is created.
package embed
