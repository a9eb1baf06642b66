package archive

import "context"

// RecordStore persists mail messages keyed by message ID.
type RecordStore interface {
	// Put writes a message, overwriting any existing record with the same ID.
	Put(ctx context.Context, msg *Message) error

	// Get returns the message with the given ID, or nil when absent.
	Get(ctx context.Context, id string) (*Message, error)

	// Has reports whether a record with the given ID is already materialized.
	Has(ctx context.Context, id string) (bool, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Unindexed returns up to limit records that have not been indexed yet,
	// oldest export first.
	Unindexed(ctx context.Context, limit int) ([]*Message, error)

	// MarkIndexed stamps the given records as indexed.
	MarkIndexed(ctx context.Context, ids []string) error
}

// CheckpointStore persists export resume state, one row per export query.
type CheckpointStore interface {
	// LoadCheckpoint returns the checkpoint for the query, or nil when none exists.
	LoadCheckpoint(ctx context.Context, query string) (*Checkpoint, error)

	// SaveCheckpoint overwrites the checkpoint for its query.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// DeleteCheckpoint removes the checkpoint for the query. Deleting a
	// missing checkpoint is not an error.
	DeleteCheckpoint(ctx context.Context, query string) error
}

// RunStore records export run progress for operator inspection.
type RunStore interface {
	// SaveRun overwrites the run row keyed by run ID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns the run with the given ID, or nil when absent.
	GetRun(ctx context.Context, id string) (*Run, error)
}
