package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/logging"
	"github.com/teemow/maildex/internal/vector"
)

// DefaultBatchSize is the number of records embedded per round trip.
const DefaultBatchSize = 64

// maxBatchSize mirrors the embedding API input limit.
const maxBatchSize = 100

// Archive is the slice of the record store the indexer reads and stamps.
type Archive interface {
	Unindexed(ctx context.Context, limit int) ([]*archive.Message, error)
	MarkIndexed(ctx context.Context, ids []string) error
}

// Embedder produces vectors for record texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the vector store surface the indexer writes through.
// *vector.Store satisfies it.
type Index interface {
	Ensure(ctx context.Context, dims uint64) error
	Upsert(ctx context.Context, collection string, points []vector.Point) error
	SenderCollection() string
	ContentCollection() string
}

// Recorder receives indexing progress for metrics. All methods must be safe
// to call from the indexing loop.
type Recorder interface {
	RecordIndexedRecords(ctx context.Context, status string, count int)
}

// Result summarizes an indexing run.
type Result struct {
	Indexed int64
	Failed  int64
	Batches int64
}

// Indexer embeds unindexed archive records and upserts them into the sender
// and content collections.
type Indexer struct {
	archive  Archive
	embedder Embedder
	index    Index
	logger   *slog.Logger
	ensured  bool

	// Metrics receives record counts when non-nil.
	Metrics Recorder
}

// New creates an indexer.
func New(archive Archive, embedder Embedder, index Index, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		archive:  archive,
		embedder: embedder,
		index:    index,
		logger:   logging.WithOperation(logger, "index"),
	}
}

// Run indexes every unindexed record. Records whose embedding keeps failing
// are logged and skipped; they stay unindexed for a later run. An index or
// archive write failure aborts, leaving the skipped records unmarked so a
// wholesale retry picks them up again.
func (ix *Indexer) Run(ctx context.Context, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	res := &Result{}
	// Records that failed this run stay unindexed, so the fetch window has
	// to widen past them to reach fresh ones.
	attempted := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		msgs, err := ix.archive.Unindexed(ctx, batchSize+len(attempted))
		if err != nil {
			return res, fmt.Errorf("failed to read unindexed records: %w", err)
		}

		var batch []*archive.Message
		for _, m := range msgs {
			if attempted[m.ID] {
				continue
			}
			batch = append(batch, m)
			if len(batch) == batchSize {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		indexed, failed, err := ix.processBatch(ctx, batch, attempted)
		if ix.Metrics != nil {
			if indexed > 0 {
				ix.Metrics.RecordIndexedRecords(ctx, logging.StatusSuccess, int(indexed))
			}
			if failed > 0 {
				ix.Metrics.RecordIndexedRecords(ctx, logging.StatusError, int(failed))
			}
		}
		if err != nil {
			return res, err
		}
		res.Indexed += indexed
		res.Failed += failed
		res.Batches++
	}

	ix.logger.Info("indexing complete",
		slog.Int64("indexed", res.Indexed),
		slog.Int64("failed", res.Failed),
		slog.Int64("batches", res.Batches))

	return res, nil
}

// processBatch embeds one batch and upserts it into both collections.
func (ix *Indexer) processBatch(ctx context.Context, batch []*archive.Message, attempted map[string]bool) (indexed, failed int64, err error) {
	senderTexts := make([]string, len(batch))
	contentTexts := make([]string, len(batch))
	for i, m := range batch {
		senderTexts[i] = senderText(m)
		contentTexts[i] = contentText(m)
	}

	var senderPoints, contentPoints []vector.Point
	var ids []string

	senderVecs, senderErr := ix.embedder.EmbedBatch(ctx, senderTexts)
	contentVecs, contentErr := ix.embedder.EmbedBatch(ctx, contentTexts)

	if senderErr == nil && contentErr == nil {
		for i, m := range batch {
			senderPoints = append(senderPoints, vector.Point{Message: m, Vector: senderVecs[i]})
			contentPoints = append(contentPoints, vector.Point{Message: m, Vector: contentVecs[i]})
			ids = append(ids, m.ID)
		}
	} else {
		// The batch call failed as a whole; retry record by record so one
		// poisonous text does not block the rest.
		for i, m := range batch {
			sVec, err := ix.embedder.Embed(ctx, senderTexts[i])
			if err == nil {
				var cVec []float32
				cVec, err = ix.embedder.Embed(ctx, contentTexts[i])
				if err == nil {
					senderPoints = append(senderPoints, vector.Point{Message: m, Vector: sVec})
					contentPoints = append(contentPoints, vector.Point{Message: m, Vector: cVec})
					ids = append(ids, m.ID)
					continue
				}
			}
			if ctx.Err() != nil {
				return indexed, failed, ctx.Err()
			}
			attempted[m.ID] = true
			failed++
			ix.logger.Warn("skipping record",
				logging.MessageID(m.ID),
				logging.Status(logging.StatusError),
				logging.Err(err))
		}
	}

	if len(ids) == 0 {
		return indexed, failed, nil
	}

	if !ix.ensured {
		dims := uint64(len(senderPoints[0].Vector))
		if err := ix.index.Ensure(ctx, dims); err != nil {
			return indexed, failed, err
		}
		ix.ensured = true
	}

	if err := ix.index.Upsert(ctx, ix.index.SenderCollection(), senderPoints); err != nil {
		return indexed, failed, err
	}
	if err := ix.index.Upsert(ctx, ix.index.ContentCollection(), contentPoints); err != nil {
		return indexed, failed, err
	}
	if err := ix.archive.MarkIndexed(ctx, ids); err != nil {
		return indexed, failed, fmt.Errorf("failed to mark records indexed: %w", err)
	}

	indexed += int64(len(ids))
	ix.logger.Debug("batch indexed", slog.Int("records", len(ids)))
	return indexed, failed, nil
}

// senderText is the text embedded into the sender identity index: the raw
// From header, which usually reads "Name <addr>".
func senderText(m *archive.Message) string {
	if s := strings.TrimSpace(m.Sender); s != "" {
		return s
	}
	return "unknown sender"
}

// contentText is the text embedded into the subject+snippet index.
func contentText(m *archive.Message) string {
	if s := strings.TrimSpace(m.Subject + "\n" + m.Snippet); s != "" {
		return s
	}
	return "no content"
}
