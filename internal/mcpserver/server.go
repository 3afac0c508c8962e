// Package mcpserver exposes image search as a Model Context Protocol tool
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aryannaik/image-search/internal/logging"
	"github.com/aryannaik/image-search/internal/search"
)

const (
	ToolName     = "search_images"
	DefaultLimit = 5

	noEmbeddingsMessage = "No embeddings loaded. Run embed first."
)

// SearchInput is the argument object of the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"natural language description of the images to find"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

type tool struct {
	engine *search.Engine
	logger *slog.Logger
}

// New builds an MCP server with the search tool registered.
func New(engine *search.Engine, version string, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "image-search",
		Version: version,
	}, nil)

	t := &tool{engine: engine, logger: logging.OrDiscard(logger)}
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Search local images by text description. Returns image paths ranked by similarity score.",
	}, t.searchImages)
	return server
}

// Run serves the tool on stdin/stdout until ctx is done or the client
// disconnects.
func Run(ctx context.Context, engine *search.Engine, version string, logger *slog.Logger) error {
	return New(engine, version, logger).Run(ctx, &mcp.StdioTransport{})
}

func (t *tool) searchImages(ctx context.Context, req *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	if !t.engine.Loaded() {
		return errorResult(noEmbeddingsMessage), nil, nil
	}
	if in.Query == "" {
		return errorResult("query is required"), nil, nil
	}
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp, err := t.engine.Search(ctx, in.Query, limit)
	if err != nil {
		t.logger.ErrorContext(ctx, "mcp search failed", "query", in.Query, "err", err)
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil, nil
	}
	for i := range resp.Results {
		resp.Results[i].Score = math.Round(resp.Results[i].Score*1000) / 1000
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: resp,
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
