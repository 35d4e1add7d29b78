//go:build !toolchat_small

package fantasybridge

import (
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	fopenai "charm.land/fantasy/providers/openai"
)

// nativeProviders holds the chat backends that have a dedicated fantasy
// provider. Every other API speaks the OpenAI-compatible dialect.
var nativeProviders = map[string]func(Config) (fantasy.Provider, error){
	apiOpenAI:    openAIProvider,
	apiAnthropic: anthropicProvider,
}

func newProvider(cfg Config) (fantasy.Provider, error) {
	if build, ok := nativeProviders[cfg.API]; ok {
		return build(cfg)
	}
	return newCompatProvider(cfg)
}

func openAIProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fopenai.Option{fopenai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenai.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%s chat provider: %w", cfg.API, err)
	}
	return provider, nil
}

// anthropicProvider takes the base URL without the /v1 suffix that
// OpenAI-style settings usually carry.
func anthropicProvider(cfg Config) (fantasy.Provider, error) {
	opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSuffix(cfg.BaseURL, "/v1"); base != "" {
		opts = append(opts, anthropic.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%s chat provider: %w", cfg.API, err)
	}
	return provider, nil
}
