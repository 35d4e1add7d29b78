// Package router decides, before any model call, whether a user message can
// be answered locally, must go straight to a search tool, or is left to the
// model.
package router

import (
	"regexp"
	"strings"
)

// Kind is the routing decision.
type Kind int

// Routing decisions.
const (
	// Defer hands the message to the model.
	Defer Kind = iota
	// LocalCompute evaluates an arithmetic expression without the model.
	LocalCompute
	// ForceTool invokes a search tool before consulting the model.
	ForceTool
)

func (k Kind) String() string {
	switch k {
	case LocalCompute:
		return "local_compute"
	case ForceTool:
		return "force_tool"
	default:
		return "defer"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Tool names the router can force.
const (
	ToolCalculate  = "calculate"
	ToolWebSearch  = "web_search"
	ToolNewsSearch = "news_search"
)

// Route is the result of Classify. Tool and Args are set for LocalCompute
// and ForceTool; Expression only for LocalCompute.
type Route struct {
	Kind       Kind           `json:"kind"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Expression string         `json:"expression,omitempty"`
}

var (
	verbPrefixes = []string{
		"how much is", "what is", "what's", "whats",
		"calculate", "compute", "evaluate", "solve",
	}
	imperativePrefixes = []string{
		"search the web for", "search for", "search",
		"find me", "find", "look up", "for the", "for",
	}

	newsKeywords      = regexp.MustCompile(`(?i)\b(news|latest|recent|today|current|this week|breaking|headlines?)\b`)
	knowledgeKeywords = regexp.MustCompile(`(?i)\b(search|find|look up|who is|what is the|compare|versus|vs|price of|weather)\b`)

	operatorReplacer = strings.NewReplacer(
		"×", "*",
		"÷", "/",
		"**", "^",
	)
)

// Classify routes a user message. It is a pure function of its input.
func Classify(message string) Route {
	msg := strings.TrimSpace(message)

	if expr, ok := Arithmetic(msg); ok {
		return Route{
			Kind:       LocalCompute,
			Tool:       ToolCalculate,
			Args:       map[string]any{"expression": expr},
			Expression: expr,
		}
	}

	tool := ""
	switch {
	case newsKeywords.MatchString(msg):
		tool = ToolNewsSearch
	case knowledgeKeywords.MatchString(msg):
		tool = ToolWebSearch
	default:
		return Route{Kind: Defer}
	}
	return Route{
		Kind: ForceTool,
		Tool: tool,
		Args: map[string]any{"query": SearchQuery(msg)},
	}
}

// Arithmetic reports whether msg is a bare arithmetic question and returns
// the normalized expression.
func Arithmetic(msg string) (string, bool) {
	s := strings.TrimSpace(msg)
	s = stripPrefixes(s, verbPrefixes)
	s = replaceTimes(operatorReplacer.Replace(s))
	s = strings.TrimRight(s, "?=.! \t")

	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(".+-*/^() \t", r):
		default:
			return "", false
		}
	}
	if !hasDigit {
		return "", false
	}
	return normalize(s), true
}

// SearchQuery strips leading imperative phrases and trailing punctuation.
func SearchQuery(msg string) string {
	q := stripPrefixes(strings.TrimSpace(msg), imperativePrefixes)
	q = strings.TrimRight(q, "?.! \t")
	if q == "" {
		return strings.TrimSpace(msg)
	}
	return q
}

func stripPrefixes(s string, prefixes []string) string {
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(s)
		for _, p := range prefixes {
			if lower == p {
				return ""
			}
			if strings.HasPrefix(lower, p+" ") {
				s = strings.TrimSpace(s[len(p):])
				changed = true
				break
			}
		}
	}
	return s
}

// replaceTimes turns x or X into * where it sits between operands. A 0x
// prefix followed by a hex digit is a hex literal and is left alone.
func replaceTimes(s string) string {
	b := []byte(s)
	for i := 1; i < len(b)-1; i++ {
		if b[i] != 'x' && b[i] != 'X' {
			continue
		}
		prev, next := b[i-1], b[i+1]
		if !isDigit(prev) && prev != ')' && prev != ' ' {
			continue
		}
		if !isDigit(next) && next != '(' && next != ' ' && next != '-' {
			continue
		}
		if prev == '0' && (i == 1 || (!isDigit(b[i-2]) && b[i-2] != '.')) && isHexDigit(next) {
			continue
		}
		b[i] = '*'
	}
	return string(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// normalize rewrites an expression with single spaces around binary
// operators and none inside parentheses or after a sign.
func normalize(expr string) string {
	var tokens []string
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case (c >= '0' && c <= '9') || c == '.':
			j := i
			for j < len(expr) && ((expr[j] >= '0' && expr[j] <= '9') || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, expr[i:j])
			i = j
		default:
			tokens = append(tokens, string(c))
			i++
		}
	}

	var sb strings.Builder
	prev, prevSign := "", false
	for i, tok := range tokens {
		sign := (tok == "-" || tok == "+") && (i == 0 || isOperator(prev) || prev == "(")
		if i > 0 && prev != "(" && tok != ")" && !prevSign {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
		prev, prevSign = tok, sign
	}
	return sb.String()
}

func isOperator(tok string) bool {
	return len(tok) == 1 && strings.Contains("+-*/^", tok)
}
