// Package export drains a mailbox into the archive as a checkpointed batch
// job.
//
// The engine lists message IDs page by page, fetches every message that is
// not yet in the record store and writes it, then persists the next page
// cursor. Because the checkpoint only ever advances after a fully processed
// page, an interrupted run resumes at the last page boundary and replays at
// most one in-flight page; record writes overwrite by message ID, so the
// replay converges on the same state.
//
// Failure handling is asymmetric on purpose. Transient source errors are
// retried with backoff and a message that keeps failing is logged and
// skipped without holding up the batch. A record store failure aborts the
// run immediately and leaves the checkpoint untouched, so nothing is ever
// marked as done before it is durable.
package export
