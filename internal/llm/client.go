package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/maildex/internal/errors"
	"github.com/teemow/maildex/internal/logging"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultMaxTokens = 1024

	apiVersion = "2023-06-01"
	toolsBeta  = "tools-2024-04-04"
)

// Roles of conversation turns. RoleTool marks a tool result answering an
// earlier tool call; on the wire it becomes a user message holding a
// tool_result block.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Stop reasons reported by the API.
const (
	StopReasonEndTurn = "end_turn"
	StopReasonToolUse = "tool_use"
)

// Config holds the reasoning service settings.
type Config struct {
	// Model defaults to DefaultModel.
	Model string
	// APIKey is required.
	APIKey string
	// BaseURL defaults to the public API endpoint.
	BaseURL string
	// MaxTokens defaults to 1024.
	MaxTokens int
}

// Message is one conversation turn.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition declares a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema Schema
}

// Schema is a JSON schema for tool input.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one tool input field.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// CompletionRequest is one reasoning round.
type CompletionRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// CompletionResponse is the model's reply to one round.
type CompletionResponse struct {
	Content    string
	StopReason string
	ToolCalls  []ToolCall
	Usage      Usage
}

// Usage counts tokens for one round.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Client talks to an Anthropic-compatible messages endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	// Policy bounds retries of transient failures.
	Policy errors.Policy
}

// NewClient creates a reasoning client. The API key is required.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, stderrors.New("anthropic API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger.With(slog.String("component", "llm")),
		Policy:     errors.DefaultPolicy(),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete runs one reasoning round. Transient failures are retried with
// backoff; a permanent failure or exhausted retries surface as an error to
// the caller, never as an empty answer.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return errors.RetryWithResult(ctx, c.Policy, func() (*CompletionResponse, error) {
		return c.complete(ctx, req)
	})
}

func (c *Client) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	payload := apiRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    req.System,
		Messages:  convertMessages(req.Messages),
	}
	for _, tool := range req.Tools {
		payload.Tools = append(payload.Tools, apiTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	if len(req.Tools) > 0 {
		httpReq.Header.Set("anthropic-beta", toolsBeta)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewTransientError(err, "completion request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewTransientError(err, "failed to read completion response")
	}

	if resp.StatusCode != http.StatusOK {
		detail := apiErrorDetail(respBody)
		err := fmt.Errorf("completion returned status %d: %s", resp.StatusCode, detail)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, errors.NewTransientError(err, "completion failed")
		}
		return nil, errors.NewPermanentError(err, "completion failed")
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("completion error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	result := &CompletionResponse{
		StopReason: apiResp.StopReason,
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	result.Content = text.String()

	c.logger.Debug("completion round",
		slog.String("model", c.config.Model),
		slog.String("stop_reason", result.StopReason),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Int("input_tokens", result.Usage.InputTokens),
		slog.Int("output_tokens", result.Usage.OutputTokens),
		logging.Duration(time.Since(start)))

	return result, nil
}

// convertMessages maps conversation turns onto the wire shape. Tool results
// travel as user messages carrying a tool_result block.
func convertMessages(msgs []Message) []apiMessage {
	out := make([]apiMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleTool {
			out = append(out, apiMessage{
				Role: RoleUser,
				Content: []apiBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}

		var blocks []apiBlock
		if m.Content != "" {
			blocks = append(blocks, apiBlock{Type: "text", Text: m.Content})
		}
		for _, call := range m.ToolCalls {
			args := call.Arguments
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, apiBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: args,
			})
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, apiMessage{Role: m.Role, Content: blocks})
	}
	return out
}

func apiErrorDetail(body []byte) string {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil {
		return fmt.Sprintf("%s: %s", resp.Error.Type, resp.Error.Message)
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 256 {
		detail = detail[:256]
	}
	return detail
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

type apiMessage struct {
	Role    string     `json:"role"`
	Content []apiBlock `json:"content"`
}

type apiBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type apiResponse struct {
	ID         string     `json:"id"`
	Content    []apiBlock `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      apiUsage   `json:"usage"`
	Error      *apiError  `json:"error"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
