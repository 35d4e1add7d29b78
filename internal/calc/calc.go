// Package calc evaluates plain arithmetic expressions: + - * / ^, unary
// minus and parentheses over decimal numbers.
package calc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrDivideByZero is returned when a divisor evaluates to zero.
var ErrDivideByZero = errors.New("Cannot divide by zero") //nolint:staticcheck

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// Eval evaluates expr.
func Eval(expr string) (float64, error) {
	p := &parser{src: expr}
	p.next()
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, p.errorf("unexpected %q", p.tok.text)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("expression %q has no finite value", expr)
	}
	return v, nil
}

// Format renders v without a trailing ".0" for whole numbers.
func Format(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokOp
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type parser struct {
	src string
	off int
	tok token
	err error
}

func (p *parser) errorf(format string, a ...any) error {
	return &SyntaxError{Expr: p.src, Pos: p.tok.pos, Msg: fmt.Sprintf(format, a...)}
}

func (p *parser) next() {
	for p.off < len(p.src) && (p.src[p.off] == ' ' || p.src[p.off] == '\t') {
		p.off++
	}
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: p.off}
		return
	}

	start := p.off
	c := p.src[p.off]
	if strings.IndexByte("+-*/^()", c) >= 0 {
		p.off++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
		return
	}

	for p.off < len(p.src) && (isDigit(p.src[p.off]) || p.src[p.off] == '.') {
		p.off++
	}
	if p.off == start {
		p.off++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
		p.err = p.errorf("unexpected character %q", c)
		return
	}
	text := p.src[start:p.off]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.tok = token{kind: tokNum, text: text, pos: start}
		p.err = p.errorf("bad number %q", text)
		return
	}
	p.tok = token{kind: tokNum, text: text, num: n, pos: start}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *parser) is(op string) bool {
	return p.tok.kind == tokOp && p.tok.text == op
}

// expr = term { ("+" | "-") term }
func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.is("+") || p.is("-") {
		op := p.tok.text
		p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

// term = unary { ("*" | "/") unary }
func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.is("*") || p.is("/") {
		op := p.tok.text
		p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
			continue
		}
		if right == 0 {
			return 0, ErrDivideByZero
		}
		left /= right
	}
	return left, nil
}

// unary = ("-" | "+") unary | power
func (p *parser) unary() (float64, error) {
	switch {
	case p.is("-"):
		p.next()
		v, err := p.unary()
		return -v, err
	case p.is("+"):
		p.next()
		return p.unary()
	}
	return p.power()
}

// power = primary [ "^" unary ], right associative.
func (p *parser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if !p.is("^") {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *parser) primary() (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	switch {
	case p.tok.kind == tokNum:
		v := p.tok.num
		p.next()
		return v, p.err
	case p.is("("):
		p.next()
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if !p.is(")") {
			return 0, p.errorf("missing closing parenthesis")
		}
		p.next()
		return v, p.err
	case p.tok.kind == tokEOF:
		return 0, p.errorf("unexpected end of expression")
	default:
		return 0, p.errorf("unexpected %q", p.tok.text)
	}
}
