package export

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/errors"
	"github.com/teemow/maildex/internal/gmail"
)

// fastPolicy keeps retry tests quick.
var fastPolicy = errors.Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
}

type fakeSource struct {
	pages     map[string]*gmail.MessagePage // keyed by page token, "" is the first page
	messages  map[string]*archive.Message
	listErr   map[string]error // fail listing the page at this token
	getErr    map[string]error // fail fetching this message every time
	getFlaky  map[string]int   // transient failures before this message succeeds
	listCalls []string
	listSizes []int64
	getCalls  map[string]int
}

func newFakeSource(pages map[string]*gmail.MessagePage) *fakeSource {
	s := &fakeSource{
		pages:    pages,
		messages: make(map[string]*archive.Message),
		listErr:  make(map[string]error),
		getErr:   make(map[string]error),
		getFlaky: make(map[string]int),
		getCalls: make(map[string]int),
	}
	for _, page := range pages {
		for _, id := range page.IDs {
			s.messages[id] = &archive.Message{ID: id, Subject: "subject " + id}
		}
	}
	return s
}

func (s *fakeSource) ListPage(ctx context.Context, query, pageToken string, pageSize int64) (*gmail.MessagePage, error) {
	s.listCalls = append(s.listCalls, pageToken)
	s.listSizes = append(s.listSizes, pageSize)
	if err := s.listErr[pageToken]; err != nil {
		return nil, err
	}
	page, ok := s.pages[pageToken]
	if !ok {
		return nil, fmt.Errorf("no page at token %q", pageToken)
	}
	return page, nil
}

func (s *fakeSource) GetMessage(ctx context.Context, id string) (*archive.Message, error) {
	s.getCalls[id]++
	if n := s.getFlaky[id]; n > 0 {
		s.getFlaky[id] = n - 1
		return nil, &googleapi.Error{Code: 503, Message: "backend error"}
	}
	if err := s.getErr[id]; err != nil {
		return nil, err
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, &googleapi.Error{Code: 404, Message: "not found"}
	}
	return msg, nil
}

type fakeArchive struct {
	records     map[string]*archive.Message
	checkpoints map[string]*archive.Checkpoint
	runs        map[string]*archive.Run
	writes      []string
	cpSaves     []archive.Checkpoint
	putErr      map[string]error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		records:     make(map[string]*archive.Message),
		checkpoints: make(map[string]*archive.Checkpoint),
		runs:        make(map[string]*archive.Run),
		putErr:      make(map[string]error),
	}
}

func (a *fakeArchive) Put(ctx context.Context, msg *archive.Message) error {
	if err := a.putErr[msg.ID]; err != nil {
		return err
	}
	a.records[msg.ID] = msg
	a.writes = append(a.writes, msg.ID)
	return nil
}

func (a *fakeArchive) Has(ctx context.Context, id string) (bool, error) {
	_, ok := a.records[id]
	return ok, nil
}

func (a *fakeArchive) LoadCheckpoint(ctx context.Context, query string) (*archive.Checkpoint, error) {
	cp, ok := a.checkpoints[query]
	if !ok {
		return nil, nil
	}
	clone := *cp
	return &clone, nil
}

func (a *fakeArchive) SaveCheckpoint(ctx context.Context, cp *archive.Checkpoint) error {
	clone := *cp
	a.checkpoints[cp.Query] = &clone
	a.cpSaves = append(a.cpSaves, clone)
	return nil
}

func (a *fakeArchive) DeleteCheckpoint(ctx context.Context, query string) error {
	delete(a.checkpoints, query)
	return nil
}

func (a *fakeArchive) SaveRun(ctx context.Context, run *archive.Run) error {
	clone := *run
	a.runs[run.ID] = &clone
	return nil
}

func (a *fakeArchive) GetRun(ctx context.Context, id string) (*archive.Run, error) {
	run, ok := a.runs[id]
	if !ok {
		return nil, nil
	}
	clone := *run
	return &clone, nil
}

type fakeRecorder struct {
	pages    int
	messages int
	records  map[string]int
}

func (r *fakeRecorder) RecordExportPage(ctx context.Context, query string, messages int) {
	r.pages++
	r.messages += messages
}

func (r *fakeRecorder) RecordExportRecord(ctx context.Context, status string) {
	if r.records == nil {
		r.records = make(map[string]int)
	}
	r.records[status]++
}

func newTestEngine(source Source, store *fakeArchive) *Engine {
	e := NewEngine(source, store, store, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.Policy = fastPolicy
	return e
}

func threePages() map[string]*gmail.MessagePage {
	return map[string]*gmail.MessagePage{
		"":   {IDs: []string{"m1", "m2"}, NextPageToken: "p2"},
		"p2": {IDs: []string{"m3", "m4"}, NextPageToken: "p3"},
		"p3": {IDs: []string{"m5"}},
	}
}

func TestRunExportsAllPages(t *testing.T) {
	source := newFakeSource(threePages())
	store := newFakeArchive()
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{Query: "in:inbox"})
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, int64(5), res.Processed)
	assert.Equal(t, int64(5), res.Written)
	assert.Equal(t, int64(3), res.Pages)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, store.writes)

	// Checkpoints are written per page boundary and removed on completion.
	require.Len(t, store.cpSaves, 2)
	assert.Equal(t, "p2", store.cpSaves[0].Cursor)
	assert.Equal(t, int64(2), store.cpSaves[0].Processed)
	assert.Equal(t, "p3", store.cpSaves[1].Cursor)
	assert.Equal(t, int64(4), store.cpSaves[1].Processed)
	assert.Empty(t, store.checkpoints)

	run := store.runs[res.RunID]
	require.NotNil(t, run)
	assert.Equal(t, archive.RunStatusComplete, run.Status)
	assert.Equal(t, int64(5), run.Processed)
}

func TestRunSkipsMaterializedRecords(t *testing.T) {
	source := newFakeSource(threePages())
	store := newFakeArchive()
	store.records["m2"] = &archive.Message{ID: "m2"}
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.Written)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, int64(5), res.Processed)
	assert.Zero(t, source.getCalls["m2"], "materialized records must not be fetched again")
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	source := newFakeSource(threePages())
	store := newFakeArchive()
	store.checkpoints["in:inbox"] = &archive.Checkpoint{
		Query:     "in:inbox",
		Cursor:    "p2",
		Processed: 2,
		RunID:     "run-1",
	}
	store.runs["run-1"] = &archive.Run{
		ID:        "run-1",
		Query:     "in:inbox",
		Status:    archive.RunStatusRunning,
		Processed: 2,
		StartedAt: started,
	}
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{Query: "in:inbox"})
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, int64(3), res.Written)
	assert.Equal(t, int64(5), res.Processed)
	assert.Equal(t, []string{"p2", "p3"}, source.listCalls, "processed pages must not be listed again")

	run := store.runs["run-1"]
	require.NotNil(t, run)
	assert.Equal(t, archive.RunStatusComplete, run.Status)
	assert.True(t, run.StartedAt.Equal(started), "resume keeps the original start time")
}

func TestInterruptedRunResumesWithoutRewriting(t *testing.T) {
	pages := map[string]*gmail.MessagePage{
		"":   {IDs: []string{"a"}, NextPageToken: "p2"},
		"p2": {IDs: []string{"b", "c"}},
	}
	store := newFakeArchive()

	// First run dies listing the second page, after the first page and its
	// checkpoint were persisted.
	broken := newFakeSource(pages)
	broken.listErr["p2"] = &googleapi.Error{Code: 400, Message: "boom"}
	_, err := newTestEngine(broken, store).Run(context.Background(), Config{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, store.writes)
	require.NotNil(t, store.checkpoints["q"])
	assert.Equal(t, "p2", store.checkpoints["q"].Cursor)
	assert.Equal(t, int64(1), store.checkpoints["q"].Processed)

	// The re-run writes only the remaining records.
	healed := newFakeSource(pages)
	res, err := newTestEngine(healed, store).Run(context.Background(), Config{Query: "q"})
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Equal(t, int64(2), res.Written)
	assert.Equal(t, int64(3), res.Processed)
	assert.Equal(t, []string{"a", "b", "c"}, store.writes)
	assert.Len(t, store.records, 3)
	assert.Empty(t, store.checkpoints)
}

func TestPermanentFetchFailureSkipsMessage(t *testing.T) {
	source := newFakeSource(map[string]*gmail.MessagePage{
		"": {IDs: []string{"m1", "m2", "m3"}},
	})
	source.getErr["m2"] = &googleapi.Error{Code: 404, Message: "gone"}
	store := newFakeArchive()
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{})
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, int64(2), res.Written)
	assert.Equal(t, int64(1), res.Failed)
	assert.Equal(t, int64(3), res.Processed, "a skipped message still counts as processed")
	assert.Equal(t, 1, source.getCalls["m2"], "permanent failures are not retried")
	assert.Equal(t, []string{"m1", "m3"}, store.writes)
}

func TestTransientFetchFailureRetries(t *testing.T) {
	source := newFakeSource(map[string]*gmail.MessagePage{
		"": {IDs: []string{"m1", "m2"}},
	})
	source.getFlaky["m1"] = 2
	store := newFakeArchive()
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Written)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 3, source.getCalls["m1"])
}

func TestTransientFetchFailureExhaustsRetries(t *testing.T) {
	source := newFakeSource(map[string]*gmail.MessagePage{
		"": {IDs: []string{"m1", "m2"}},
	})
	source.getFlaky["m2"] = 10
	store := newFakeArchive()
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{})
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, int64(1), res.Written)
	assert.Equal(t, int64(1), res.Failed)
	assert.Equal(t, fastPolicy.MaxAttempts, source.getCalls["m2"])
}

func TestStoreFailureAbortsWithoutCheckpoint(t *testing.T) {
	pages := map[string]*gmail.MessagePage{
		"":   {IDs: []string{"m1", "m2"}, NextPageToken: "p2"},
		"p2": {IDs: []string{"m3"}},
	}
	store := newFakeArchive()
	store.putErr["m2"] = fmt.Errorf("disk full")

	res, err := newTestEngine(newFakeSource(pages), store).Run(context.Background(), Config{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write record m2")
	assert.Equal(t, int64(1), res.Written)
	assert.Empty(t, store.checkpoints, "a store failure must not advance the checkpoint")
	assert.Equal(t, archive.RunStatusRunning, store.runs[res.RunID].Status)

	// A wholesale retry converges: the written record is skipped, the rest
	// is written.
	delete(store.putErr, "m2")
	res, err = newTestEngine(newFakeSource(pages), store).Run(context.Background(), Config{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, int64(2), res.Written)
	assert.Equal(t, []string{"m1", "m2", "m3"}, store.writes)
	assert.Len(t, store.records, 3)
}

func TestMaxCountStopsEarly(t *testing.T) {
	source := newFakeSource(threePages())
	store := newFakeArchive()
	e := newTestEngine(source, store)

	res, err := e.Run(context.Background(), Config{MaxCount: 3, PageSize: 2})
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, int64(3), res.Processed)
	assert.Equal(t, []string{"m1", "m2", "m3"}, store.writes)
	assert.Equal(t, []int64{2, 1}, source.listSizes, "the last page only asks for the remainder")
	assert.Empty(t, store.checkpoints)
	assert.Equal(t, archive.RunStatusComplete, store.runs[res.RunID].Status)
}

func TestNegativeMaxCountFails(t *testing.T) {
	e := newTestEngine(newFakeSource(threePages()), newFakeArchive())

	res, err := e.Run(context.Background(), Config{MaxCount: -1})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "max count")
}

func TestCanceledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(newFakeSource(threePages()), newFakeArchive())
	_, err := e.Run(ctx, Config{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestMetricsRecorderSeesProgress(t *testing.T) {
	source := newFakeSource(threePages())
	source.getErr["m4"] = &googleapi.Error{Code: 403, Message: "forbidden"}
	store := newFakeArchive()
	store.records["m1"] = &archive.Message{ID: "m1"}
	e := newTestEngine(source, store)
	rec := &fakeRecorder{}
	e.Metrics = rec

	_, err := e.Run(context.Background(), Config{})
	require.NoError(t, err)

	assert.Equal(t, 3, rec.pages)
	assert.Equal(t, 5, rec.messages)
	assert.Equal(t, 3, rec.records["success"])
	assert.Equal(t, 1, rec.records["skipped"])
	assert.Equal(t, 1, rec.records["error"])
}
