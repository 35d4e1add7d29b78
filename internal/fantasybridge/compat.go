package fantasybridge

import (
	"fmt"

	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

// DefaultGroqBaseURL is used for the groq API when no base URL is set.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

func newCompatProvider(cfg Config) (fantasy.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.API == apiGroq {
		baseURL = DefaultGroqBaseURL
	}
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if baseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenaicompat.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("new fantasy openai-compatible provider: %w", err)
	}
	return provider, nil
}
