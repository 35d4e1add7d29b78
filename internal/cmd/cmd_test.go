package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/golden"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/toolchat/internal/agent"
	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/present"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/registry"
	"github.com/dotcommander/toolchat/internal/router"
	"github.com/dotcommander/toolchat/internal/stream"
)

type stubAnswerer struct {
	content string
	chunks  []string
	err     error
}

func (a stubAnswerer) Answer(context.Context, agent.Request) (agent.Reply, error) {
	return agent.Reply{Content: a.content}, a.err
}

func (a stubAnswerer) Stream(context.Context, agent.Request) stream.Source {
	return func(yield func(string, error) bool) {
		for _, c := range a.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if a.err != nil {
			yield("", a.err)
		}
	}
}

func TestPrintAnswer(t *testing.T) {
	failure := errs.New(errs.KindModelInference, errors.New("reset"), agent.FallbackAnswer)

	tests := map[string]struct {
		answerer stubAnswerer
		opts     askOptions
		want     string
		wantErr  error
	}{
		"raw streams chunks": {
			answerer: stubAnswerer{chunks: []string{"2 + 2", " = ", "4"}},
			opts:     askOptions{raw: true},
			want:     "2 + 2 = 4\n",
		},
		"raw failure keeps what was printed": {
			answerer: stubAnswerer{chunks: []string{"par"}, err: failure},
			opts:     askOptions{raw: true},
			want:     "par\n",
			wantErr:  failure,
		},
		"rendered answer": {
			answerer: stubAnswerer{content: "(3 + 5) * 12 = 96"},
			opts:     askOptions{wordWrap: 80},
			want:     "96",
		},
		"rendered failure": {
			answerer: stubAnswerer{content: agent.FallbackAnswer, err: failure},
			opts:     askOptions{},
			wantErr:  failure,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := printAnswer(context.Background(), &buf, tc.answerer, "q", tc.opts)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tc.opts.raw {
				require.Equal(t, tc.want, buf.String())
			} else {
				require.Contains(t, buf.String(), tc.want)
			}
		})
	}
}

func TestPrintAnswerCopies(t *testing.T) {
	tests := map[string]struct {
		opts askOptions
		a    stubAnswerer
		want string
	}{
		"raw":      {opts: askOptions{raw: true}, a: stubAnswerer{chunks: []string{"4", "2"}}, want: "42"},
		"rendered": {opts: askOptions{wordWrap: 80}, a: stubAnswerer{content: "**42**"}, want: "**42**"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var copied string
			tc.opts.copy = func(s string) error {
				copied = s
				return nil
			}
			require.NoError(t, printAnswer(context.Background(), io.Discard, tc.a, "q", tc.opts))
			require.Equal(t, tc.want, copied)
		})
	}

	t.Run("copy failure", func(t *testing.T) {
		opts := askOptions{raw: true, copy: func(string) error { return errors.New("no clipboard") }}
		err := printAnswer(context.Background(), io.Discard, stubAnswerer{chunks: []string{"x"}}, "q", opts)
		require.Error(t, err)
		require.Equal(t, "Could not copy the answer to the clipboard.", errs.Reason(err, ""))
	})
}

func TestPromptInput(t *testing.T) {
	tests := map[string]struct {
		args  []string
		stdin string
		want  string
	}{
		"args only":      {args: []string{"what's", "2", "+", "2"}, want: "what's 2 + 2"},
		"stdin only":     {stdin: "  summarise this\n", want: "summarise this"},
		"args and stdin": {args: []string{"summarise"}, stdin: "notes", want: "summarise\n\nnotes"},
		"nothing":        {args: []string{"  "}, want: ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := promptInput(tc.args, strings.NewReader(tc.stdin))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	got, err := promptInput([]string{"hi"}, nil)
	require.NoError(t, err)
	require.Equal(t, "hi", got)
}

func TestClassifyCmd(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		cmd := newClassifyCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"Find recent news about space exploration"})
		require.NoError(t, cmd.Execute())
		require.Contains(t, out.String(), "force_tool")
		require.Contains(t, out.String(), "news_search")
		require.Contains(t, out.String(), `{"query":"recent news about space exploration"}`)
	})

	t.Run("json", func(t *testing.T) {
		cmd := newClassifyCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--json", "what's (3 + 5) x 12?"})
		require.NoError(t, cmd.Execute())

		var route map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &route))
		require.Equal(t, "local_compute", route["kind"])
		require.Equal(t, "(3 + 5) * 12", route["expression"])
	})

	t.Run("needs a message", func(t *testing.T) {
		cmd := newClassifyCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(nil)
		require.Error(t, cmd.Execute())
	})
}

func TestPrintRouteGolden(t *testing.T) {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	styles := present.MakeStyles(r)

	var out bytes.Buffer
	for _, msg := range []string{
		"what's (3 + 5) x 12?",
		"Find recent news about space exploration",
		"tell me a joke",
	} {
		printRoute(&out, styles, router.Classify(msg))
	}
	golden.RequireEqual(t, out.Bytes())
}

func testDescriptors(t *testing.T) []registry.ToolDescriptor {
	t.Helper()
	add, err := registry.NewDescriptor("math", mcpgo.NewTool("add",
		mcpgo.WithDescription("Add two numbers"),
		mcpgo.WithNumber("a", mcpgo.Required()),
		mcpgo.WithNumber("b", mcpgo.Required()),
	))
	require.NoError(t, err)
	return []registry.ToolDescriptor{add}
}

func TestListTools(t *testing.T) {
	var out bytes.Buffer
	listTools(&out, present.StdoutStyles(), testDescriptors(t))
	require.Contains(t, out.String(), "math > ")
	require.Contains(t, out.String(), "add(a: number, b: number)")
	require.Contains(t, out.String(), "Add two numbers")

	var errOut bytes.Buffer
	listFailedProviders(&errOut, present.StderrStyles(), []mcp.Status{
		{ID: "math", State: mcp.StateReady},
		{ID: "search", State: mcp.StateFailed, Error: "exec: toolchat: not found"},
	})
	require.NotContains(t, errOut.String(), "math")
	require.Contains(t, errOut.String(), "search")
	require.Contains(t, errOut.String(), "not found")
}

func TestWriteCatalogJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeCatalogJSON(&out, testDescriptors(t), []mcp.Status{{ID: "math", Kind: "stdio", State: mcp.StateReady, Tools: []string{"add"}}}))

	var got struct {
		Tools []struct {
			Name        string         `json:"name"`
			Provider    string         `json:"provider"`
			InputSchema map[string]any `json:"input_schema"`
		} `json:"tools"`
		Providers []map[string]any `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Tools, 1)
	require.Equal(t, "add", got.Tools[0].Name)
	require.Equal(t, "object", got.Tools[0].InputSchema["type"])
	require.Equal(t, "ready", got.Providers[0]["state"])
}

func TestShowSettings(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "gsk_secret"

	var out bytes.Buffer
	require.NoError(t, showSettings(&out, cfg))
	require.NotContains(t, out.String(), "gsk_secret")
	require.Contains(t, out.String(), redacted)
	require.Contains(t, out.String(), "model: llama3-8b-8192")
}

func TestResetSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolchat.yml")
	require.NoError(t, os.WriteFile(path, []byte("model: custom\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, resetSettings(&out, path))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	require.Equal(t, "model: custom\n", string(backup))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default().Model, cfg.Model)
	require.Contains(t, out.String(), path+".bak")

	require.Error(t, resetSettings(&out, filepath.Join(t.TempDir(), "missing.yml")))
}

func TestBuildInfo(t *testing.T) {
	tests := map[string]struct {
		in       BuildInfo
		settings []debug.BuildSetting
		version  string
		wantSHA  string
	}{
		"injected": {
			in:      BuildInfo{Version: "v1.2.3", CommitSHA: "abcdef0123"},
			version: "v1.2.3",
			wantSHA: "abcdef0123",
		},
		"from vcs": {
			settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789ab"}},
			version:  "dev-0123456",
			wantSHA:  "0123456789ab",
		},
		"dirty tree": {
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789ab"},
				{Key: "vcs.modified", Value: "true"},
			},
			version: "dev-0123456-dirty",
			wantSHA: "0123456789ab",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := fromBuildSettings(tc.in, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}, Settings: tc.settings})
			require.Equal(t, tc.version, got.Version)
			require.Equal(t, tc.wantSHA, got.CommitSHA)
		})
	}

	require.Contains(t, versionTemplate(BuildInfo{Version: "v1", CommitSHA: "abcdef0123"}), "(abcdef0)")
}

type stubClient struct{ answer string }

func (c stubClient) Request(context.Context, proto.Request) stream.Stream {
	return &stubStream{answer: c.answer}
}

type stubStream struct {
	answer string
	done   bool
}

func (s *stubStream) Next() bool {
	if s.done {
		return false
	}
	s.done = true
	return true
}

func (s *stubStream) Current() (proto.Chunk, error) { return proto.Chunk{Content: s.answer}, nil }
func (s *stubStream) Err() error                     { return nil }
func (s *stubStream) Close() error                   { return nil }
func (s *stubStream) Message() proto.Message {
	return proto.Message{Role: proto.RoleAssistant, Content: s.answer}
}

func TestOpenSessionWithoutTools(t *testing.T) {
	cfg := config.Default()
	cfg.NoTools = true
	rt := &runtime{cfg: cfg}

	sess, err := rt.openSessionWith(context.Background(), logging.Discard(), stubClient{answer: "Hello!"})
	require.NoError(t, err)
	defer sess.close()

	require.Empty(t, sess.tools.Tools())

	var out bytes.Buffer
	require.NoError(t, printAnswer(context.Background(), &out, sess.agent, "what's 2 + 2?", askOptions{raw: true}))
	require.Equal(t, "2 + 2 = 4\n", out.String())

	out.Reset()
	require.NoError(t, printAnswer(context.Background(), &out, sess.agent, "tell me a joke", askOptions{raw: true}))
	require.Equal(t, "Hello!\n", out.String())
}

func TestReady(t *testing.T) {
	rt := &runtime{cfg: config.Default(), cfgErr: errs.Error{Reason: "Could not parse settings file."}}
	require.Error(t, rt.ready())

	cfg := config.Default()
	cfg.Temperature = 3
	rt = &runtime{cfg: cfg}
	err := rt.ready()
	require.Error(t, err)
	require.Equal(t, "Invalid settings.", errs.Reason(err, ""))

	rt = &runtime{cfg: config.Default()}
	require.NoError(t, rt.ready())
}

func TestHandleError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want []string
	}{
		"flag": {
			err:  newFlagParseError(errors.New("unknown flag: --nope")),
			want: []string{"--nope", "toolchat -h"},
		},
		"reason and details": {
			err:  errs.Error{Reason: "Could not start any tool provider.", Err: errors.New("math: exec failed")},
			want: []string{"Could not start any tool provider.", "math: exec failed"},
		},
		"plain": {
			err:  errors.New("boom"),
			want: []string{"boom"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			handleError(&buf, tc.err)
			for _, w := range tc.want {
				require.Contains(t, buf.String(), w)
			}
		})
	}
}
