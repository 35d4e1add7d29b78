package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits applied to remote system prompts.
const (
	promptFetchTimeout = 10 * time.Second
	maxPromptBytes     = 2 << 20
)

// errUnterminatedHeader marks a prompt file whose header block never closes.
var errUnterminatedHeader = errors.New("missing closing ---")

// promptLoader resolves the system: setting into prompt text.
type promptLoader struct {
	client   *http.Client
	maxBytes int64
}

// LoadSystemPrompt resolves the system prompt the chat service sends ahead
// of every conversation.
//
// The setting is used verbatim unless it names a source: an http(s) URL is
// fetched and a file:// path is read. Markdown prompt files may open with a
// YAML header block, which is checked and dropped.
func LoadSystemPrompt(ctx context.Context, setting string) (string, error) {
	l := promptLoader{client: http.DefaultClient, maxBytes: maxPromptBytes}
	return l.load(ctx, setting)
}

func (l promptLoader) load(ctx context.Context, setting string) (string, error) {
	switch {
	case strings.HasPrefix(setting, "https://"), strings.HasPrefix(setting, "http://"):
		return l.fetch(ctx, setting)
	case strings.HasPrefix(setting, "file://"):
		return readPromptFile(strings.TrimPrefix(setting, "file://"))
	default:
		return setting, nil
	}
}

func (l promptLoader) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, promptFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("system prompt %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("system prompt %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return "", fmt.Errorf("system prompt %s: HTTP %d: %s", url, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("system prompt %s: %w", url, err)
	}
	if int64(len(body)) > l.maxBytes {
		return "", fmt.Errorf("system prompt %s: larger than %d bytes", url, l.maxBytes)
	}
	return string(body), nil
}

func readPromptFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("system prompt file: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return string(raw), nil
	}
	prompt, err := dropPromptHeader(string(raw))
	if err != nil {
		return "", fmt.Errorf("system prompt file %s: header: %w", path, err)
	}
	return prompt, nil
}

// dropPromptHeader returns the prompt body of a markdown file, minus a
// leading YAML block fenced by --- lines. The block must parse.
func dropPromptHeader(doc string) (string, error) {
	first, rest, found := strings.Cut(doc, "\n")
	if strings.TrimSpace(first) != "---" {
		return doc, nil
	}
	if !found {
		return "", errUnterminatedHeader
	}

	var header strings.Builder
	for rest != "" {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == "---" {
			var meta map[string]any
			if err := yaml.Unmarshal([]byte(header.String()), &meta); err != nil {
				return "", err
			}
			return strings.TrimLeft(rest, "\r\n"), nil
		}
		header.WriteString(line)
		header.WriteByte('\n')
	}
	return "", errUnterminatedHeader
}
