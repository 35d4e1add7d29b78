// Package searchtools hosts the web and news search tools as an MCP server.
package searchtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Name is the MCP server name.
const Name = "toolchat-search"

// DefaultMaxResults is used when the caller does not pass max_results.
const DefaultMaxResults = 5

// Result is one search hit. Date is only set for news results.
type Result struct {
	Title   string  `json:"title"`
	Link    string  `json:"link"`
	Snippet string  `json:"snippet"`
	Date    *string `json:"date,omitempty"`
}

// Searcher runs a query against a search backend.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, news bool) ([]Result, error)
}

// NewServer returns an MCP server exposing web_search and news_search.
func NewServer(version string, searcher Searcher) *server.MCPServer {
	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(Tools(searcher)...)
	return s
}

// Tools returns the search tools backed by searcher.
func Tools(searcher Searcher) []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("web_search",
				mcp.WithDescription("Search the web for information. Returns a list of results with title, link and snippet."),
				mcp.WithString("query", mcp.Required(), mcp.Description("The search query")),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of results to return"),
					mcp.DefaultNumber(DefaultMaxResults),
					mcp.Min(1),
				),
			),
			Handler: handler(searcher, false),
		},
		{
			Tool: mcp.NewTool("news_search",
				mcp.WithDescription("Search for recent news articles. Returns a list of articles with title, link, snippet and date."),
				mcp.WithString("query", mcp.Required(), mcp.Description("The search query")),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of results to return"),
					mcp.DefaultNumber(DefaultMaxResults),
					mcp.Min(1),
				),
			),
			Handler: handler(searcher, true),
		},
	}
}

func handler(searcher Searcher, news bool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := int(request.GetFloat("max_results", DefaultMaxResults))
		if limit < 1 {
			limit = DefaultMaxResults
		}

		results, err := searcher.Search(ctx, query, limit, news)
		if err != nil {
			return mcp.NewToolResultErrorf("Search failed: %v", err), nil
		}
		if news {
			for i := range results {
				if results[i].Date == nil {
					empty := ""
					results[i].Date = &empty
				}
			}
		}

		bts, err := json.Marshal(results)
		if err != nil {
			return nil, fmt.Errorf("encode results: %w", err)
		}
		return mcp.NewToolResultText(string(bts)), nil
	}
}
