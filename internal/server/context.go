package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/maildex/internal/embed"
	"github.com/teemow/maildex/internal/instrumentation"
	"github.com/teemow/maildex/internal/search"
	"github.com/teemow/maildex/internal/vector"
)

// Config holds the backends the served tools depend on.
type Config struct {
	// Account names the mail account whose archive is served. Used for
	// audit attribution; defaults to "default".
	Account string

	Embed  embed.Config
	Vector vector.Config
}

// ServerContext holds the context for the MCP server
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	account       string
	embedClient   *embed.Client
	vectorStore   *vector.Store
	searchService *search.Service

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context. Backend clients are built
// eagerly so configuration errors surface before the first tool call; the
// vector store connects lazily, so the server starts even when the index
// is temporarily unreachable.
func NewServerContext(ctx context.Context, config Config, logger *slog.Logger) (*ServerContext, error) {
	if logger == nil {
		logger = slog.Default()
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	embedClient, err := embed.NewClient(config.Embed, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	vectorStore, err := vector.New(config.Vector, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	account := config.Account
	if account == "" {
		account = "default"
	}

	return &ServerContext{
		ctx:           shutdownCtx,
		cancel:        cancel,
		account:       account,
		embedClient:   embedClient,
		vectorStore:   vectorStore,
		searchService: search.New(embedClient, vectorStore, logger),
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Account returns the mail account name the served archive belongs to.
func (sc *ServerContext) Account() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.account
}

// SearchService returns the similarity search service backing the tools.
func (sc *ServerContext) SearchService() *search.Service {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.searchService
}

// SetSearchService replaces the search service. Tests use this to inject
// services built on fakes.
func (sc *ServerContext) SetSearchService(svc *search.Service) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.searchService = svc
}

// SetMetrics sets the metrics recorder used by instrumented tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil when instrumentation is not
// configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used by instrumented tool handlers.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil when audit logging is not
// configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context and closes the backend clients.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()

	if sc.vectorStore != nil {
		return sc.vectorStore.Close()
	}
	return nil
}
