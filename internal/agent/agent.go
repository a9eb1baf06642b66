package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/maildex/internal/instrumentation"
	"github.com/teemow/maildex/internal/llm"
	"github.com/teemow/maildex/internal/logging"
	"github.com/teemow/maildex/internal/search"
	"github.com/teemow/maildex/internal/tools/searchtools"
)

// MaxRounds bounds the completion loop. A question that still produces tool
// calls after this many rounds fails instead of looping.
const MaxRounds = 10

const systemPrompt = `You answer questions about the user's personal email archive.

You have two lookup tools: search_by_sender finds emails from people or
services matching a name or address, and search_by_content finds emails about
a topic. Both return ranked excerpts from the archive, not full messages.

Ground every answer in tool results. When a search returns no matches, say so
plainly instead of guessing. When a tool reports a failure, tell the user the
archive could not be searched; that is different from the archive containing
nothing. Keep answers short and cite senders, subjects and dates from the
results you used.`

// Completer is the reasoning surface the agent drives. *llm.Client satisfies
// it.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Answer is the outcome of one question.
type Answer struct {
	// Text is the model's final reply.
	Text string
	// Rounds is the number of completion rounds used.
	Rounds int
	// ToolCalls is the total number of tool invocations across all rounds.
	ToolCalls int
}

// Service runs the ask loop: it hands the question and the tool definitions
// to the reasoning service, executes the tool calls it requests against the
// search service, and feeds the results back until the model answers in text.
type Service struct {
	completer Completer
	search    *search.Service
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

// New creates an agent service.
func New(completer Completer, searchService *search.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completer: completer,
		search:    searchService,
		logger:    logging.WithOperation(logger, "ask"),
	}
}

// SetMetrics enables completion round metrics.
func (s *Service) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// Ask answers a question about the archive. A reasoning service failure fails
// the request; a tool failure is reported to the model, which decides how to
// answer.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, stderrors.New("question is empty")
	}

	messages := []llm.Message{
		{Role: llm.RoleUser, Content: question},
	}
	tools := searchtools.Definitions()
	totalCalls := 0

	for round := 1; round <= MaxRounds; round++ {
		start := time.Now()
		resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
			System:   systemPrompt,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, fmt.Errorf("reasoning service failed: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordCompletionRound(ctx, resp.StopReason, time.Since(start))
		}

		s.logger.Debug("completion round",
			slog.Int("round", round),
			slog.String("stop_reason", resp.StopReason),
			slog.Int("tool_calls", len(resp.ToolCalls)))

		if len(resp.ToolCalls) == 0 {
			return &Answer{
				Text:      resp.Content,
				Rounds:    round,
				ToolCalls: totalCalls,
			}, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			totalCalls++
			text, err := searchtools.Dispatch(ctx, s.search, tc.Name, tc.Arguments)
			if err != nil {
				// The model sees the failure and reports it; the
				// request itself does not fail.
				s.logger.Warn("tool call failed",
					logging.Tool(tc.Name),
					logging.Err(err))
				text = fmt.Sprintf("Tool failed: %v", err)
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    text,
				ToolCallID: tc.ID,
			})
		}
	}

	return nil, fmt.Errorf("no answer after %d rounds", MaxRounds)
}
