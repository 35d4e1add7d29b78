package searchtools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	results []Result
	err     error

	query string
	limit int
	news  bool
}

func (s *stubSearcher) Search(_ context.Context, query string, limit int, news bool) ([]Result, error) {
	s.query, s.limit, s.news = query, limit, news
	return s.results, s.err
}

func call(t *testing.T, searcher Searcher, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	cli, err := client.NewInProcessClient(NewServer("test", searcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	require.NoError(t, cli.Start(ctx))
	_, err = cli.Initialize(ctx, mcp.InitializeRequest{})
	require.NoError(t, err)

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := cli.CallTool(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	return res
}

func TestWebSearch(t *testing.T) {
	stub := &stubSearcher{results: []Result{
		{Title: "Go", Link: "https://go.dev", Snippet: "The Go programming language"},
	}}
	res := call(t, stub, "web_search", map[string]any{"query": "golang"})
	require.False(t, res.IsError)
	require.Equal(t, "golang", stub.query)
	require.Equal(t, DefaultMaxResults, stub.limit)
	require.False(t, stub.news)
	require.JSONEq(t,
		`[{"title":"Go","link":"https://go.dev","snippet":"The Go programming language"}]`,
		mcp.GetTextFromContent(res.Content[0]),
	)
}

func TestNewsSearch(t *testing.T) {
	stub := &stubSearcher{results: []Result{{Title: "Launch", Link: "https://n.example", Snippet: "liftoff"}}}
	res := call(t, stub, "news_search", map[string]any{"query": "space", "max_results": 2})
	require.False(t, res.IsError)
	require.Equal(t, 2, stub.limit)
	require.True(t, stub.news)
	require.JSONEq(t,
		`[{"title":"Launch","link":"https://n.example","snippet":"liftoff","date":""}]`,
		mcp.GetTextFromContent(res.Content[0]),
	)
}

func TestSearchFailure(t *testing.T) {
	res := call(t, &stubSearcher{err: errors.New("rate limited")}, "web_search", map[string]any{"query": "x"})
	require.True(t, res.IsError)
	require.Equal(t, "Search failed: rate limited", mcp.GetTextFromContent(res.Content[0]))
}

func TestTavily(t *testing.T) {
	var got tavilyModels.SearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "One", "url": "https://one.example", "content": "first", "score": 0.9},
				{"title": "Two", "url": "https://two.example", "content": "second", "score": 0.8},
				{"title": "Three", "url": "https://three.example", "content": "third", "score": 0.7},
			},
		})
	}))
	t.Cleanup(srv.Close)

	backend := &Tavily{APIKey: "test", BaseURL: srv.URL, HTTPClient: srv.Client()}

	t.Run("web", func(t *testing.T) {
		results, err := backend.Search(context.Background(), "golang", 2, false)
		require.NoError(t, err)
		require.Equal(t, "golang", got.Query)
		require.Equal(t, 2, got.MaxResults)
		require.Empty(t, got.Topic)
		require.Equal(t, []Result{
			{Title: "One", Link: "https://one.example", Snippet: "first"},
			{Title: "Two", Link: "https://two.example", Snippet: "second"},
		}, results)
	})

	t.Run("news", func(t *testing.T) {
		results, err := backend.Search(context.Background(), "space launches", 10, true)
		require.NoError(t, err)
		require.Equal(t, "space launches", got.Query)
		require.Equal(t, "news", got.Topic)
		require.Equal(t, 10, got.MaxResults)
		require.Len(t, results, 3)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := (&Tavily{}).Search(context.Background(), "x", 1, false)
		require.ErrorIs(t, err, ErrMissingKey)
	})
}
