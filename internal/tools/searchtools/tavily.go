package searchtools

import (
	"context"
	"errors"
	"net/http"
	"os"

	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
)

// APIKeyEnv holds the Tavily API key.
const APIKeyEnv = "TAVILY_API_KEY"

// ErrMissingKey is returned when no Tavily API key is configured.
var ErrMissingKey = errors.New(APIKeyEnv + " is not set")

// Tavily searches through the Tavily API.
type Tavily struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewTavily returns a Tavily backend keyed from the environment.
func NewTavily() *Tavily {
	return &Tavily{APIKey: os.Getenv(APIKeyEnv)}
}

// Search implements Searcher.
func (t *Tavily) Search(ctx context.Context, query string, limit int, news bool) ([]Result, error) {
	if t.APIKey == "" {
		return nil, ErrMissingKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := tavilygo.NewClient(t.APIKey)
	if t.BaseURL != "" {
		client.BaseURL = t.BaseURL
	}
	if t.HTTPClient != nil {
		client.HTTPClient = t.HTTPClient
	}

	req := tavilyModels.SearchRequest{
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  limit,
	}
	if news {
		req.Topic = "news"
	}
	resp, err := tavilygo.Search(client, req)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, min(limit, len(resp.Results)))
	for _, r := range resp.Results {
		if len(results) == limit {
			break
		}
		results = append(results, Result{
			Title:   r.Title,
			Link:    r.URL,
			Snippet: r.Content,
		})
	}
	return results, nil
}
