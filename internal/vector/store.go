package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/logging"
)

// Default collection names.
const (
	DefaultSenderCollection  = "mail_senders"
	DefaultContentCollection = "mail_content"
)

// Config holds qdrant connection and collection settings.
type Config struct {
	Host              string // default "localhost"
	Port              int    // gRPC port, default 6334
	SenderCollection  string
	ContentCollection string
}

// Point is one message vector destined for a collection.
type Point struct {
	Message *archive.Message
	Vector  []float32
}

// Hit is one scored similarity result with the payload fields restored.
type Hit struct {
	Score     float32
	MessageID string
	ThreadID  string
	Sender    string
	Recipient string
	Subject   string
	Sent      time.Time // zero when the record had no parseable date
	Snippet   string
}

// Store wraps a qdrant client and owns the two mail collections: one over
// sender identities, one over subject and snippet text.
type Store struct {
	client            *qdrant.Client
	senderCollection  string
	contentCollection string
	logger            *slog.Logger
}

// New connects to qdrant. The connection is lazy; the first call that hits
// the server surfaces connectivity errors.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.SenderCollection == "" {
		cfg.SenderCollection = DefaultSenderCollection
	}
	if cfg.ContentCollection == "" {
		cfg.ContentCollection = DefaultContentCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &Store{
		client:            client,
		senderCollection:  cfg.SenderCollection,
		contentCollection: cfg.ContentCollection,
		logger:            logger.With(slog.String("component", "vector")),
	}, nil
}

// Close releases the client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// SenderCollection returns the name of the sender identity collection.
func (s *Store) SenderCollection() string { return s.senderCollection }

// ContentCollection returns the name of the subject+snippet collection.
func (s *Store) ContentCollection() string { return s.contentCollection }

// Ensure creates the two collections with cosine distance when they do not
// exist yet.
func (s *Store) Ensure(ctx context.Context, dims uint64) error {
	existing, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	for _, name := range []string{s.senderCollection, s.contentCollection} {
		if present[name] {
			continue
		}
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dims,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		s.logger.Info("created collection", logging.Collection(name), slog.Uint64("dims", dims))
	}

	return nil
}

// Upsert writes points into the collection. Point IDs are derived from the
// message ID, so writing the same message again replaces its point.
func (s *Store) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(p.Message.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payloadFromMessage(p.Message)),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points into %s: %w", len(points), collection, err)
	}

	s.logger.Debug("upserted points", logging.Collection(collection), slog.Int("points", len(points)))
	return nil
}

// Query runs a ranked nearest-neighbor search and returns scored hits with
// their payloads.
func (s *Store) Query(ctx context.Context, collection string, vec []float32, limit uint64) ([]*Hit, error) {
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	hits := make([]*Hit, 0, len(resp))
	for _, point := range resp {
		if hit := hitFromPoint(point); hit != nil {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// PointID derives the deterministic point UUID for a message ID.
func PointID(messageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(messageID)).String()
}

func payloadFromMessage(m *archive.Message) map[string]any {
	var dateSent int64
	if !m.Sent.IsZero() {
		dateSent = m.Sent.Unix()
	}
	return map[string]any{
		"message_id": m.ID,
		"thread_id":  m.ThreadID,
		"sender":     m.Sender,
		"recipient":  m.Recipient,
		"subject":    m.Subject,
		"date_sent":  dateSent,
		"snippet":    m.Snippet,
	}
}

func hitFromPoint(point *qdrant.ScoredPoint) *Hit {
	payload := point.GetPayload()
	if payload == nil {
		return nil
	}

	hit := &Hit{
		Score:     point.GetScore(),
		MessageID: stringValue(payload["message_id"]),
		ThreadID:  stringValue(payload["thread_id"]),
		Sender:    stringValue(payload["sender"]),
		Recipient: stringValue(payload["recipient"]),
		Subject:   stringValue(payload["subject"]),
		Snippet:   stringValue(payload["snippet"]),
	}
	if sec := intValue(payload["date_sent"]); sec > 0 {
		hit.Sent = time.Unix(sec, 0).UTC()
	}
	return hit
}

func stringValue(val *qdrant.Value) string {
	if val == nil {
		return ""
	}
	return val.GetStringValue()
}

func intValue(val *qdrant.Value) int64 {
	if val == nil {
		return 0
	}
	if v := val.GetIntegerValue(); v != 0 {
		return v
	}
	if v := val.GetDoubleValue(); v != 0 {
		return int64(v)
	}
	return 0
}
