package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"
	"github.com/charmbracelet/log"

	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/fantasybridge"
	"github.com/dotcommander/toolchat/internal/stream"
)

type keySource struct {
	env  string
	docs string
}

var keySources = map[string]keySource{
	"groq":      {env: "GROQ_API_KEY", docs: "https://console.groq.com/keys"},
	"openai":    {env: "OPENAI_API_KEY", docs: "https://platform.openai.com/account/api-keys"},
	"anthropic": {env: "ANTHROPIC_API_KEY", docs: "https://console.anthropic.com/settings/keys"},
}

// NewClient resolves credentials and builds the model client for cfg.
//
// A missing key for an API that requires one is reported as
// errs.KindMissingCredential.
func NewClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (stream.Client, error) {
	key, err := resolveKey(ctx, cfg)
	if err != nil {
		return nil, err
	}
	providerCfg := fantasybridge.Config{
		API:     cfg.API,
		BaseURL: cfg.BaseURL,
		APIKey:  key,
		Logger:  logger,
	}
	if err := ApplyProxyConfig(cfg.HTTPProxy, &providerCfg); err != nil {
		return nil, err
	}
	client, err := fantasybridge.New(providerCfg)
	if err != nil {
		return nil, errs.Wrapf(fmt.Errorf("new fantasy bridge client: %w", err), "Could not set up the %s API client.", cfg.API)
	}
	return client, nil
}

func resolveKey(ctx context.Context, cfg *config.Config) (string, error) {
	src, required := keySources[cfg.API]
	key, err := configuredKey(ctx, cfg)
	if err != nil {
		return "", err
	}
	if key == "" && src.env != "" {
		key = os.Getenv(src.env)
	}
	if key != "" || !required {
		return key, nil
	}
	env := src.env
	if cfg.APIKeyEnv != "" {
		env = cfg.APIKeyEnv
	}
	return "", errs.New(
		errs.KindMissingCredential,
		errs.UserErrorf("You can grab one at %s", src.docs),
		fmt.Sprintf("%s required; set %s or api-key in toolchat.yml.", env, env),
	)
}

func configuredKey(ctx context.Context, cfg *config.Config) (string, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" && cfg.APIKeyCmd == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" && cfg.APIKeyCmd != "" {
		args, err := shellwords.Parse(cfg.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Kind: errs.KindMissingCredential, Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		if len(args) == 0 {
			return "", errs.Error{Kind: errs.KindMissingCredential, Err: errs.UserErrorf("empty command"), Reason: "Failed to parse api-key-cmd"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
		if err != nil {
			return "", errs.Error{Kind: errs.KindMissingCredential, Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}
