package index

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/vector"
)

type fakeArchive struct {
	records   []*archive.Message
	marked    map[string]bool
	markCalls [][]string
	limits    []int
	markErr   error
}

func newFakeArchive(records ...*archive.Message) *fakeArchive {
	return &fakeArchive{records: records, marked: make(map[string]bool)}
}

func (f *fakeArchive) Unindexed(ctx context.Context, limit int) ([]*archive.Message, error) {
	f.limits = append(f.limits, limit)
	var out []*archive.Message
	for _, m := range f.records {
		if f.marked[m.ID] {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeArchive) MarkIndexed(ctx context.Context, ids []string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markCalls = append(f.markCalls, ids)
	for _, id := range ids {
		f.marked[id] = true
	}
	return nil
}

type fakeEmbedder struct {
	failing    map[string]bool
	batchCalls int
	embedCalls int
}

func (f *fakeEmbedder) vector(text string) []float32 {
	return []float32{float32(len(text)), 1, 2}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.failing[text] {
		return nil, stderrors.New("embedding failed")
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failing[t] {
			return nil, stderrors.New("embedding failed")
		}
		out[i] = f.vector(t)
	}
	return out, nil
}

type fakeIndex struct {
	ensured   []uint64
	upserts   map[string][]vector.Point
	upsertErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: make(map[string][]vector.Point)}
}

func (f *fakeIndex) Ensure(ctx context.Context, dims uint64) error {
	f.ensured = append(f.ensured, dims)
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, collection string, points []vector.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts[collection] = append(f.upserts[collection], points...)
	return nil
}

func (f *fakeIndex) SenderCollection() string  { return "senders" }
func (f *fakeIndex) ContentCollection() string { return "content" }

type fakeRecorder struct {
	counts map[string]int
}

func (r *fakeRecorder) RecordIndexedRecords(ctx context.Context, status string, count int) {
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[status] += count
}

func newTestIndexer(arc *fakeArchive, emb *fakeEmbedder, idx *fakeIndex) *Indexer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(arc, emb, idx, logger)
}

func msg(id, sender, subject, snippet string) *archive.Message {
	return &archive.Message{ID: id, Sender: sender, Subject: subject, Snippet: snippet}
}

func TestRunIndexesAllRecords(t *testing.T) {
	arc := newFakeArchive(
		msg("a", "Jane Doe <jane@example.com>", "Budget", "numbers for Q3"),
		msg("b", "Bob <bob@example.com>", "Standup", "notes"),
		msg("c", "Carol <carol@example.com>", "Offsite", "agenda"),
	)
	emb := &fakeEmbedder{}
	idx := newFakeIndex()

	res, err := newTestIndexer(arc, emb, idx).Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Indexed)
	assert.Equal(t, int64(0), res.Failed)
	assert.Equal(t, int64(2), res.Batches)

	assert.True(t, arc.marked["a"])
	assert.True(t, arc.marked["b"])
	assert.True(t, arc.marked["c"])

	require.Len(t, idx.upserts["senders"], 3)
	require.Len(t, idx.upserts["content"], 3)
	assert.Equal(t, "a", idx.upserts["senders"][0].Message.ID)
	assert.Equal(t, emb.vector("Jane Doe <jane@example.com>"), idx.upserts["senders"][0].Vector)
	assert.Equal(t, emb.vector("Budget\nnumbers for Q3"), idx.upserts["content"][0].Vector)

	// Collections are created once, sized from the first embedding.
	assert.Equal(t, []uint64{3}, idx.ensured)
}

func TestRunSkipsFailingRecords(t *testing.T) {
	arc := newFakeArchive(
		msg("a", "Jane <jane@example.com>", "Budget", "q3"),
		msg("b", "Bob <bob@example.com>", "Standup", "notes"),
		msg("c", "Carol <carol@example.com>", "Offsite", "agenda"),
	)
	emb := &fakeEmbedder{failing: map[string]bool{"Bob <bob@example.com>": true}}
	idx := newFakeIndex()

	res, err := newTestIndexer(arc, emb, idx).Run(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Indexed)
	assert.Equal(t, int64(1), res.Failed)

	// The batch call failed, so records were embedded one by one.
	assert.Equal(t, [][]string{{"a", "c"}}, arc.markCalls)
	assert.False(t, arc.marked["b"])
	require.Len(t, idx.upserts["senders"], 2)
}

func TestRunDoesNotRevisitFailedRecords(t *testing.T) {
	arc := newFakeArchive(
		msg("a", "x", "", ""),
		msg("b", "x", "", ""),
		msg("c", "x", "", ""),
	)
	emb := &fakeEmbedder{failing: map[string]bool{"x": true}}
	idx := newFakeIndex()

	res, err := newTestIndexer(arc, emb, idx).Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.Indexed)
	assert.Equal(t, int64(3), res.Failed)
	assert.Empty(t, idx.upserts)
	assert.Empty(t, idx.ensured)
}

func TestRunEmptyArchive(t *testing.T) {
	arc := newFakeArchive()
	idx := newFakeIndex()

	res, err := newTestIndexer(arc, &fakeEmbedder{}, idx).Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.Indexed)
	assert.Equal(t, int64(0), res.Batches)
	assert.Empty(t, idx.ensured)
}

func TestUpsertFailureAborts(t *testing.T) {
	arc := newFakeArchive(msg("a", "Jane <jane@example.com>", "Budget", "q3"))
	idx := newFakeIndex()
	idx.upsertErr = stderrors.New("qdrant unavailable")

	_, err := newTestIndexer(arc, &fakeEmbedder{}, idx).Run(context.Background(), 10)
	require.Error(t, err)

	// Nothing was stamped, so a later run retries the whole batch.
	assert.Empty(t, arc.marked)
}

func TestRunRecordsMetrics(t *testing.T) {
	arc := newFakeArchive(
		msg("a", "Jane <jane@example.com>", "Budget", "q3"),
		msg("b", "Bob <bob@example.com>", "Standup", "notes"),
	)
	emb := &fakeEmbedder{failing: map[string]bool{"Bob <bob@example.com>": true}}
	ix := newTestIndexer(arc, emb, newFakeIndex())
	rec := &fakeRecorder{}
	ix.Metrics = rec

	_, err := ix.Run(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.counts["success"])
	assert.Equal(t, 1, rec.counts["error"])
}

func TestRunClampsBatchSize(t *testing.T) {
	arc := newFakeArchive()

	_, err := newTestIndexer(arc, &fakeEmbedder{}, newFakeIndex()).Run(context.Background(), 5000)
	require.NoError(t, err)

	require.Len(t, arc.limits, 1)
	assert.Equal(t, maxBatchSize, arc.limits[0])
}

func TestCanceledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	arc := newFakeArchive(msg("a", "Jane <jane@example.com>", "Budget", "q3"))

	_, err := newTestIndexer(arc, &fakeEmbedder{}, newFakeIndex()).Run(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSenderText(t *testing.T) {
	assert.Equal(t, "Jane <jane@example.com>", senderText(msg("a", "Jane <jane@example.com>", "", "")))
	assert.Equal(t, "unknown sender", senderText(msg("a", "  ", "", "")))
}

func TestContentText(t *testing.T) {
	assert.Equal(t, "Budget\nnumbers", contentText(msg("a", "", "Budget", "numbers")))
	assert.Equal(t, "no content", contentText(msg("a", "", "", "")))
}
