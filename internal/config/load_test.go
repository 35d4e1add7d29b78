package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return "file://" + path
}

func TestLoadSystemPrompt(t *testing.T) {
	const prompt = "You answer with tools when they help."

	t.Run("inline setting", func(t *testing.T) {
		got, err := LoadSystemPrompt(context.Background(), prompt)
		require.NoError(t, err)
		require.Equal(t, prompt, got)
	})

	t.Run("text file", func(t *testing.T) {
		got, err := LoadSystemPrompt(context.Background(), writePrompt(t, "system.txt", prompt))
		require.NoError(t, err)
		require.Equal(t, prompt, got)
	})

	t.Run("text file keeps dashes", func(t *testing.T) {
		got, err := LoadSystemPrompt(context.Background(), writePrompt(t, "system.txt", "---\n"+prompt))
		require.NoError(t, err)
		require.Equal(t, "---\n"+prompt, got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSystemPrompt(context.Background(), "file://"+filepath.Join(t.TempDir(), "nope.md"))
		require.ErrorContains(t, err, "system prompt file")
	})

	t.Run("remote prompt", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(prompt))
		}))
		defer srv.Close()

		got, err := LoadSystemPrompt(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, prompt, got)
	})

	t.Run("remote prompt error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := LoadSystemPrompt(context.Background(), srv.URL)
		require.ErrorContains(t, err, "HTTP 404: nope")
	})
}

func TestPromptLoaderSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 17)))
	}))
	defer srv.Close()

	l := promptLoader{client: srv.Client(), maxBytes: 16}
	_, err := l.load(context.Background(), srv.URL)
	require.ErrorContains(t, err, "larger than 16 bytes")

	l.maxBytes = 17
	got, err := l.load(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, got, 17)
}

func TestMarkdownPromptHeader(t *testing.T) {
	tests := map[string]struct {
		doc     string
		want    string
		wantErr string
	}{
		"no header": {
			doc:  "# Helper\nBe brief.\n",
			want: "# Helper\nBe brief.\n",
		},
		"header dropped": {
			doc:  "---\nname: helper\ntone: calm\n---\nYou are concise and direct.\n",
			want: "You are concise and direct.\n",
		},
		"blank lines after header": {
			doc:  "---\nname: helper\n---\r\n\r\nBe brief.",
			want: "Be brief.",
		},
		"empty header": {
			doc:  "---\n---\nBe brief.",
			want: "Be brief.",
		},
		"broken yaml": {
			doc:     "---\nname: [broken\n---\ncontent",
			wantErr: "header",
		},
		"unterminated": {
			doc:     "---\nname: helper\nBe brief.",
			wantErr: "missing closing ---",
		},
		"only a fence": {
			doc:     "---",
			wantErr: "missing closing ---",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := LoadSystemPrompt(context.Background(), writePrompt(t, "system.md", tc.doc))
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
