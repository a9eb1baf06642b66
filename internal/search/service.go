package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/maildex/internal/logging"
	"github.com/teemow/maildex/internal/vector"
)

const (
	// MaxSenderResults caps sender searches.
	MaxSenderResults = 20
	// MaxTopicResults caps topic searches.
	MaxTopicResults = 10

	// overFetchFactor widens the index query when filters are active, since
	// filtering happens after the similarity ranking.
	overFetchFactor = 3
)

// Filters narrows similarity hits at query time. Zero values mean no
// constraint.
type Filters struct {
	// Year keeps only hits sent in that calendar year. Hits without a
	// parsed timestamp never match a year filter.
	Year int
	// SubjectContains keeps hits whose subject contains the substring,
	// case-insensitively.
	SubjectContains string
	// SenderContains keeps hits whose sender contains the substring,
	// case-insensitively.
	SenderContains string
}

func (f Filters) active() bool {
	return f.Year != 0 || f.SubjectContains != "" || f.SenderContains != ""
}

func (f Filters) match(h *vector.Hit) bool {
	if f.Year != 0 {
		if h.Sent.IsZero() || h.Sent.Year() != f.Year {
			return false
		}
	}
	if f.SubjectContains != "" && !containsFold(h.Subject, f.SubjectContains) {
		return false
	}
	if f.SenderContains != "" && !containsFold(h.Sender, f.SenderContains) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the similarity store surface the service queries. *vector.Store
// satisfies it.
type Index interface {
	Query(ctx context.Context, collection string, vec []float32, limit uint64) ([]*vector.Hit, error)
	SenderCollection() string
	ContentCollection() string
}

// Service answers the two lookup shapes over the mail indexes.
type Service struct {
	embedder Embedder
	index    Index
	logger   *slog.Logger
}

// New creates a search service.
func New(embedder Embedder, index Index, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		index:    index,
		logger:   logging.WithOperation(logger, "search"),
	}
}

// SearchBySender finds mail whose sender identity is similar to the given
// pattern. At most MaxSenderResults hits are returned regardless of limit.
func (s *Service) SearchBySender(ctx context.Context, sender string, limit int, filters Filters) ([]*vector.Hit, error) {
	if strings.TrimSpace(sender) == "" {
		return nil, stderrors.New("sender pattern is empty")
	}
	if limit <= 0 || limit > MaxSenderResults {
		limit = MaxSenderResults
	}
	return s.search(ctx, s.index.SenderCollection(), sender, limit, filters)
}

// SearchByTopic finds mail whose subject and snippet are similar to the given
// query. At most MaxTopicResults hits are returned regardless of limit.
func (s *Service) SearchByTopic(ctx context.Context, query string, limit int, filters Filters) ([]*vector.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, stderrors.New("query is empty")
	}
	if limit <= 0 || limit > MaxTopicResults {
		limit = MaxTopicResults
	}
	return s.search(ctx, s.index.ContentCollection(), query, limit, filters)
}

func (s *Service) search(ctx context.Context, collection, text string, limit int, filters Filters) ([]*vector.Hit, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := limit
	if filters.active() {
		fetch = limit * overFetchFactor
	}

	hits, err := s.index.Query(ctx, collection, vec, uint64(fetch))
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	var out []*vector.Hit
	for _, h := range hits {
		if !filters.match(h) {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}

	s.logger.Debug("search complete",
		logging.Collection(collection),
		slog.Int("candidates", len(hits)),
		slog.Int("hits", len(out)))

	return out, nil
}

// FormatResults renders hits as text blocks for the reasoning model. An
// empty hit list renders an explicit no-results message naming the query and
// the active filters, so the model can report it instead of guessing.
func FormatResults(query string, filters Filters, hits []*vector.Hit) string {
	if len(hits) == 0 {
		return "No emails found matching: " + describeQuery(query, filters)
	}
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		blocks = append(blocks, formatHit(h))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func formatHit(h *vector.Hit) string {
	date := "unknown"
	if !h.Sent.IsZero() {
		date = h.Sent.Format("2006-01-02")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %.2f\n", h.Score)
	fmt.Fprintf(&b, "From: %s\n", h.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", h.Subject)
	fmt.Fprintf(&b, "Date: %s\n", date)
	fmt.Fprintf(&b, "Preview: %s", h.Snippet)
	return b.String()
}

func describeQuery(query string, f Filters) string {
	var extras []string
	if f.Year != 0 {
		extras = append(extras, fmt.Sprintf("year %d", f.Year))
	}
	if f.SubjectContains != "" {
		extras = append(extras, fmt.Sprintf("subject contains %q", f.SubjectContains))
	}
	if f.SenderContains != "" {
		extras = append(extras, fmt.Sprintf("sender contains %q", f.SenderContains))
	}
	if len(extras) == 0 {
		return fmt.Sprintf("%q", query)
	}
	return fmt.Sprintf("%q (%s)", query, strings.Join(extras, ", "))
}
