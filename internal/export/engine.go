package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/errors"
	"github.com/teemow/maildex/internal/gmail"
	"github.com/teemow/maildex/internal/logging"
)

// DefaultPageSize is used when the config does not set one.
const DefaultPageSize = 100

// Source lists pages of message IDs and fetches full messages.
// *gmail.Client satisfies it.
type Source interface {
	ListPage(ctx context.Context, query, pageToken string, pageSize int64) (*gmail.MessagePage, error)
	GetMessage(ctx context.Context, id string) (*archive.Message, error)
}

// RecordWriter is the slice of the archive the engine writes through.
type RecordWriter interface {
	Put(ctx context.Context, msg *archive.Message) error
	Has(ctx context.Context, id string) (bool, error)
}

// Recorder receives export progress for metrics. All methods must be safe
// to call from the export loop.
type Recorder interface {
	RecordExportPage(ctx context.Context, query string, messages int)
	RecordExportRecord(ctx context.Context, status string)
}

// Config holds the parameters of one export invocation.
type Config struct {
	// Query is the mailbox search predicate; empty exports everything.
	Query string
	// MaxCount stops the run after this many processed records; 0 is unlimited.
	MaxCount int64
	// PageSize is the listing page size; 0 uses DefaultPageSize.
	PageSize int64
}

// Result summarizes an export run.
type Result struct {
	RunID     string
	Processed int64 // total across the run, including progress before a resume
	Written   int64 // records written by this invocation
	Skipped   int64 // records already materialized
	Failed    int64 // messages skipped after exhausting retries
	Pages     int64
	Resumed   bool
	Complete  bool
}

// Engine drains a mailbox into the archive with a persisted checkpoint.
// A single engine run is strictly sequential; preventing concurrent runs
// over the same query is the caller's responsibility.
type Engine struct {
	source      Source
	records     RecordWriter
	checkpoints archive.CheckpointStore
	runs        archive.RunStore
	logger      *slog.Logger

	// Policy governs retries of transient source failures.
	Policy errors.Policy
	// Metrics receives page and record counts when non-nil.
	Metrics Recorder
}

// NewEngine creates an export engine over the given source and archive.
func NewEngine(source Source, records RecordWriter, checkpoints archive.CheckpointStore, runs archive.RunStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:      source,
		records:     records,
		checkpoints: checkpoints,
		runs:        runs,
		logger:      logging.WithOperation(logger, "export"),
		Policy:      errors.DefaultPolicy(),
	}
}

// Run executes one export pass. It resumes from a persisted checkpoint when
// one exists for the query, checkpoints after every fully processed page and
// deletes the checkpoint on completion. Run returns the progress made even
// when it fails partway.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.MaxCount < 0 {
		return nil, fmt.Errorf("max count must not be negative, got %d", cfg.MaxCount)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	cp, err := e.checkpoints.LoadCheckpoint(ctx, cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var (
		cursor    string
		processed int64
		runID     string
		resumed   bool
		startedAt = time.Now().UTC()
	)
	if cp != nil {
		cursor = cp.Cursor
		processed = cp.Processed
		runID = cp.RunID
		resumed = true
		if prev, err := e.runs.GetRun(ctx, runID); err == nil && prev != nil {
			startedAt = prev.StartedAt
		}
	} else {
		runID = uuid.NewString()
	}

	logger := logging.WithRun(e.logger, runID).With(slog.String("query", cfg.Query))
	if resumed {
		logger.Info("resuming export", slog.Int64("processed", processed))
	} else {
		logger.Info("starting export")
	}

	if err := e.saveRun(ctx, runID, cfg.Query, archive.RunStatusRunning, processed, startedAt); err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Resumed: resumed}

	for {
		if cfg.MaxCount > 0 && processed >= cfg.MaxCount {
			break
		}
		if err := ctx.Err(); err != nil {
			res.Processed = processed
			return res, err
		}

		pageSize := cfg.PageSize
		if cfg.MaxCount > 0 {
			pageSize = min(pageSize, cfg.MaxCount-processed)
		}

		page, err := errors.RetryWithResult(ctx, e.Policy, func() (*gmail.MessagePage, error) {
			return e.source.ListPage(ctx, cfg.Query, cursor, pageSize)
		})
		if err != nil {
			res.Processed = processed
			return res, fmt.Errorf("failed to list messages: %w", err)
		}
		res.Pages++
		if e.Metrics != nil {
			e.Metrics.RecordExportPage(ctx, cfg.Query, len(page.IDs))
		}

		for _, id := range page.IDs {
			if cfg.MaxCount > 0 && processed >= cfg.MaxCount {
				break
			}
			status, err := e.processMessage(ctx, logger, id)
			if err != nil {
				res.Processed = processed
				return res, err
			}
			switch status {
			case logging.StatusSuccess:
				res.Written++
			case logging.StatusSkipped:
				res.Skipped++
			case logging.StatusError:
				res.Failed++
			}
			if e.Metrics != nil {
				e.Metrics.RecordExportRecord(ctx, status)
			}
			processed++
		}

		logger.Info("page processed",
			logging.Page(int(res.Pages)),
			slog.Int("messages", len(page.IDs)),
			slog.Int64("processed", processed))

		if page.NextPageToken == "" || (cfg.MaxCount > 0 && processed >= cfg.MaxCount) {
			break
		}

		cursor = page.NextPageToken
		if err := e.checkpoints.SaveCheckpoint(ctx, &archive.Checkpoint{
			Query:     cfg.Query,
			Cursor:    cursor,
			Processed: processed,
			RunID:     runID,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			res.Processed = processed
			return res, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		if err := e.saveRun(ctx, runID, cfg.Query, archive.RunStatusRunning, processed, startedAt); err != nil {
			res.Processed = processed
			return res, err
		}
	}

	if err := e.checkpoints.DeleteCheckpoint(ctx, cfg.Query); err != nil {
		res.Processed = processed
		return res, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if err := e.saveRun(ctx, runID, cfg.Query, archive.RunStatusComplete, processed, startedAt); err != nil {
		res.Processed = processed
		return res, err
	}

	res.Processed = processed
	res.Complete = true
	logger.Info("export complete",
		slog.Int64("processed", processed),
		slog.Int64("written", res.Written),
		slog.Int64("skipped", res.Skipped),
		slog.Int64("failed", res.Failed),
		slog.Int64("pages", res.Pages))

	return res, nil
}

// processMessage materializes a single message. It returns a status for the
// result counters, or an error only when the batch must abort: a store
// failure must not advance the checkpoint, and an interrupt must surface
// instead of counting as a skip.
func (e *Engine) processMessage(ctx context.Context, logger *slog.Logger, id string) (string, error) {
	has, err := e.records.Has(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to check record %s: %w", id, err)
	}
	if has {
		logger.Debug("record already materialized", logging.MessageID(id))
		return logging.StatusSkipped, nil
	}

	msg, err := errors.RetryWithResult(ctx, e.Policy, func() (*archive.Message, error) {
		return e.source.GetMessage(ctx, id)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("skipping message",
			logging.MessageID(id),
			logging.Status(logging.StatusError),
			logging.Err(err))
		return logging.StatusError, nil
	}

	if err := e.records.Put(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to write record %s: %w", id, err)
	}
	logger.Debug("record written", logging.MessageID(id))
	return logging.StatusSuccess, nil
}

func (e *Engine) saveRun(ctx context.Context, id, query, status string, processed int64, startedAt time.Time) error {
	if err := e.runs.SaveRun(ctx, &archive.Run{
		ID:        id,
		Query:     query,
		Status:    status,
		Processed: processed,
		StartedAt: startedAt,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}
