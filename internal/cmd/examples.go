package cmd

import (
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/dotcommander/toolchat/internal/present"
)

var examples = map[string]string{
	"Do some arithmetic without calling the model": `toolchat ask "what's (3 + 5) x 12?"`,
	"Search the news and summarise it":             `toolchat ask "find recent news about space exploration"`,
	"Summarise a file through the model":           `cat NOTES.md | toolchat ask "summarise these notes" | glow`,
	"Serve the chat API on another port":           `toolchat serve --listen 127.0.0.1:9000`,
	"See how a message would be routed":            `toolchat classify "latest news on golang"`,
}

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys[rand.IntN(len(keys))] //nolint:gosec
}

var (
	quotedRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe   = regexp.MustCompile(`\|`)
)

func cheapHighlighting(s present.Styles, code string) string {
	code = quotedRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
}
