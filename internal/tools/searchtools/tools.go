package searchtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/maildex/internal/instrumentation"
	"github.com/teemow/maildex/internal/llm"
	"github.com/teemow/maildex/internal/search"
	"github.com/teemow/maildex/internal/server"
	"github.com/teemow/maildex/internal/tools/common"
)

// Tool names exposed over MCP and to the reasoning model.
const (
	ToolSearchBySender  = "search_by_sender"
	ToolSearchByContent = "search_by_content"
)

const (
	descSearchBySender = "Search the mail archive for emails from senders matching a name or " +
		"address fragment. Matching is by similarity, so partial names and misspellings work. " +
		"Returns at most 20 results."
	descSearchByContent = "Search the mail archive for emails about a topic. Matches subjects " +
		"and body previews by similarity. Returns at most 10 results."

	descYear = "Restrict results to emails sent in this calendar year, e.g. 2024."
)

// SenderQuery is the parsed input of the search_by_sender tool.
type SenderQuery struct {
	SenderName      string
	Year            int
	SubjectContains string
	TopK            int
}

// ContentQuery is the parsed input of the search_by_content tool.
type ContentQuery struct {
	Query          string
	Year           int
	SenderContains string
	TopK           int
}

// toolArgs normalizes the request arguments to a map. Requests without
// arguments yield an empty map.
func toolArgs(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// intArg reads a numeric argument. JSON decoding delivers numbers as float64,
// but direct callers may pass int.
func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func parseSenderQuery(args map[string]interface{}) (SenderQuery, error) {
	q := SenderQuery{
		SenderName:      stringArg(args, "sender_name"),
		Year:            intArg(args, "year"),
		SubjectContains: stringArg(args, "subject_contains"),
		TopK:            intArg(args, "top_k"),
	}
	if q.SenderName == "" {
		return SenderQuery{}, fmt.Errorf("sender_name is required")
	}
	return q, nil
}

func parseContentQuery(args map[string]interface{}) (ContentQuery, error) {
	q := ContentQuery{
		Query:          stringArg(args, "query"),
		Year:           intArg(args, "year"),
		SenderContains: stringArg(args, "sender_contains"),
		TopK:           intArg(args, "top_k"),
	}
	if q.Query == "" {
		return ContentQuery{}, fmt.Errorf("query is required")
	}
	return q, nil
}

// RegisterSearchTools registers the two archive lookup tools with the MCP
// server. Both are read-only.
func RegisterSearchTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	senderTool := mcp.NewTool(ToolSearchBySender,
		mcp.WithDescription(descSearchBySender),
		mcp.WithString("sender_name",
			mcp.Required(),
			mcp.Description("Name or email address fragment of the sender to look for"),
		),
		mcp.WithNumber("year",
			mcp.Description(descYear),
		),
		mcp.WithString("subject_contains",
			mcp.Description("Keep only results whose subject contains this text (case-insensitive)"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results to return (default and maximum 20)"),
		),
	)

	s.AddTool(senderTool, common.InstrumentedToolHandlerWithService(
		ToolSearchBySender, instrumentation.OperationSearch, "by_sender", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchBySender(ctx, request, sc)
		}))

	contentTool := mcp.NewTool(ToolSearchByContent,
		mcp.WithDescription(descSearchByContent),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Topic or free-text description of the emails to look for"),
		),
		mcp.WithNumber("year",
			mcp.Description(descYear),
		),
		mcp.WithString("sender_contains",
			mcp.Description("Keep only results whose sender contains this text (case-insensitive)"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results to return (default and maximum 10)"),
		),
	)

	s.AddTool(contentTool, common.InstrumentedToolHandlerWithService(
		ToolSearchByContent, instrumentation.OperationSearch, "by_content", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchByContent(ctx, request, sc)
		}))

	return nil
}

// handleSearchBySender handles the search_by_sender tool
func handleSearchBySender(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	svc := sc.SearchService()
	if svc == nil {
		return mcp.NewToolResultError("search service not initialized"), nil
	}

	q, err := parseSenderQuery(toolArgs(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filters := search.Filters{
		Year:            q.Year,
		SubjectContains: q.SubjectContains,
	}

	hits, err := svc.SearchBySender(ctx, q.SenderName, q.TopK, filters)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	return mcp.NewToolResultText(search.FormatResults(q.SenderName, filters, hits)), nil
}

// handleSearchByContent handles the search_by_content tool
func handleSearchByContent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	svc := sc.SearchService()
	if svc == nil {
		return mcp.NewToolResultError("search service not initialized"), nil
	}

	q, err := parseContentQuery(toolArgs(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filters := search.Filters{
		Year:           q.Year,
		SenderContains: q.SenderContains,
	}

	hits, err := svc.SearchByTopic(ctx, q.Query, q.TopK, filters)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	return mcp.NewToolResultText(search.FormatResults(q.Query, filters, hits)), nil
}

// Definitions describes both tools for the completion API, mirroring the MCP
// registration so stdio clients and the built-in agent see the same surface.
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ToolSearchBySender,
			Description: descSearchBySender,
			InputSchema: llm.Schema{
				Type: "object",
				Properties: map[string]llm.Property{
					"sender_name": {
						Type:        "string",
						Description: "Name or email address fragment of the sender to look for",
					},
					"year": {
						Type:        "integer",
						Description: descYear,
					},
					"subject_contains": {
						Type:        "string",
						Description: "Keep only results whose subject contains this text (case-insensitive)",
					},
					"top_k": {
						Type:        "integer",
						Description: "Number of results to return (default and maximum 20)",
					},
				},
				Required: []string{"sender_name"},
			},
		},
		{
			Name:        ToolSearchByContent,
			Description: descSearchByContent,
			InputSchema: llm.Schema{
				Type: "object",
				Properties: map[string]llm.Property{
					"query": {
						Type:        "string",
						Description: "Topic or free-text description of the emails to look for",
					},
					"year": {
						Type:        "integer",
						Description: descYear,
					},
					"sender_contains": {
						Type:        "string",
						Description: "Keep only results whose sender contains this text (case-insensitive)",
					},
					"top_k": {
						Type:        "integer",
						Description: "Number of results to return (default and maximum 10)",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

// Dispatch runs one parsed tool call against the search service and returns
// the text the reasoning model should see. Unknown tool names are an error.
func Dispatch(ctx context.Context, svc *search.Service, name string, args map[string]interface{}) (string, error) {
	switch name {
	case ToolSearchBySender:
		q, err := parseSenderQuery(args)
		if err != nil {
			return "", err
		}
		filters := search.Filters{Year: q.Year, SubjectContains: q.SubjectContains}
		hits, err := svc.SearchBySender(ctx, q.SenderName, q.TopK, filters)
		if err != nil {
			return "", err
		}
		return search.FormatResults(q.SenderName, filters, hits), nil
	case ToolSearchByContent:
		q, err := parseContentQuery(args)
		if err != nil {
			return "", err
		}
		filters := search.Filters{Year: q.Year, SenderContains: q.SenderContains}
		hits, err := svc.SearchByTopic(ctx, q.Query, q.TopK, filters)
		if err != nil {
			return "", err
		}
		return search.FormatResults(q.Query, filters, hits), nil
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}
