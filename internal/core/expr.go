package core

// expr.go implements the restricted arithmetic grammar used by expression
// derivations:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = [ "-" | "+" ] factor
//	factor = number | ident | "(" expr ")"
//
// Identifiers name columns of the current row. Nothing else is evaluated.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed arithmetic expression.
type Expr struct {
	src    string
	root   node
	fields []string
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Fields returns the column names the expression reads, in first-use order.
func (e *Expr) Fields() []string { return append([]string(nil), e.fields...) }

// Eval evaluates the expression against one row.
func (e *Expr) Eval(row Row) (float64, error) {
	return e.root.eval(row)
}

type node interface {
	eval(Row) (float64, error)
}

type numNode float64

func (n numNode) eval(Row) (float64, error) { return float64(n), nil }

type fieldNode string

func (n fieldNode) eval(r Row) (float64, error) {
	v, ok := r.Get(string(n))
	if !ok || isBlank(v) {
		return 0, fmt.Errorf("%s is empty", string(n))
	}
	f, ok := ParseNumber(v)
	if !ok {
		return 0, fmt.Errorf("%s is not numeric: %q", string(n), CellString(v))
	}
	return f, nil
}

type negNode struct{ x node }

func (n negNode) eval(r Row) (float64, error) {
	v, err := n.x.eval(r)
	return -v, err
}

type binNode struct {
	op   byte
	l, r node
}

var errDivideByZero = errors.New("division by zero")

func (n binNode) eval(row Row) (float64, error) {
	l, err := n.l.eval(row)
	if err != nil {
		return 0, err
	}
	r, err := n.r.eval(row)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		if r == 0 {
			return 0, errDivideByZero
		}
		return l / r, nil
	}
}

// ParseExpr parses src. Every identifier must satisfy known.
func ParseExpr(src string, known func(string) bool) (*Expr, error) {
	p := &exprParser{src: src}
	p.next()
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("expression %q: unexpected %q at offset %d", src, p.tok.text, p.tok.pos)
	}
	for _, f := range p.fields {
		if known != nil && !known(f) {
			return nil, fmt.Errorf("expression %q: unknown column %q", src, f)
		}
	}
	return &Expr{src: src, root: root, fields: p.fields}, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokErr
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type exprParser struct {
	src    string
	pos    int
	tok    token
	fields []string
}

func (p *exprParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	c := p.src[p.pos]
	switch {
	case strings.IndexByte("+-*/()", c) >= 0:
		p.pos++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		p.tok = token{kind: tokNum, text: p.src[start:p.pos], pos: start}
	case isIdentStart(c):
		for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], pos: start}
	default:
		p.pos++
		p.tok = token{kind: tokErr, text: string(c), pos: start}
	}
}

func (p *exprParser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		neg := p.tok.text == "-"
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if neg {
			return negNode{x: x}, nil
		}
		return x, nil
	}
	return p.parseFactor()
}

func (p *exprParser) parseFactor() (node, error) {
	tok := p.tok
	switch tok.kind {
	case tokNum:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("expression %q: bad number %q", p.src, tok.text)
		}
		p.next()
		return numNode(f), nil
	case tokIdent:
		p.next()
		if !containsString(p.fields, tok.text) {
			p.fields = append(p.fields, tok.text)
		}
		return fieldNode(tok.text), nil
	case tokOp:
		if tok.text == "(" {
			p.next()
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.tok.kind != tokOp || p.tok.text != ")" {
				return nil, fmt.Errorf("expression %q: missing ')' at offset %d", p.src, p.tok.pos)
			}
			p.next()
			return inner, nil
		}
	case tokEOF:
		return nil, fmt.Errorf("expression %q: unexpected end of input", p.src)
	}
	return nil, fmt.Errorf("expression %q: unexpected %q at offset %d", p.src, tok.text, tok.pos)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
