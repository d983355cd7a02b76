// Package lexer tokenizes HogTrace probe source text (spec §4.1). It is
// hand-written rather than generated: the grammar is small and LL-shaped,
// so a scanner/generator dependency would be pure overhead (see
// SPEC_FULL.md §4's standard-library justification).
package lexer

import (
	"fmt"
	"strings"

	"github.com/PostHog/hogtrace/internal/herrors"
)

// Kind identifies a token's lexical class.
type Kind int

const (
	EOF Kind = iota
	IDENT
	INT
	FLOAT
	STRING
	DOLLAR_REQ // $req or $request, including the dotted var name: $req.foo
	KEYWORD    // sample, capture, send, entry, exit, true, false, null (and Capitalized forms)

	// Punctuation / operators.
	COLON     // :
	SEMI      // ;
	COMMA     // ,
	DOT       // .
	STAR      // *
	SLASH     // / (also used to bracket a predicate)
	PERCENT   // %
	LBRACE    // {
	RBRACE    // }
	LPAREN    // (
	RPAREN    // )
	LBRACKET  // [
	RBRACKET  // ]
	EQUAL     // =
	PLUS      // +
	MINUS     // -
	BANG      // !
	EQEQ      // ==
	NEQ       // !=
	LT        // <
	GT        // >
	LE        // <=
	GE        // >=
	ANDAND    // &&
	OROR      // ||
)

// Token is one lexical unit with its 1-based source position.
type Token struct {
	Kind Kind
	Text string // raw source text (identifier name, literal spelling, operator spelling)

	// For STRING tokens, Value holds the unescaped contents.
	Value string

	Line   int
	Column int
}

var keywords = map[string]bool{
	"sample": true, "capture": true, "send": true,
	"entry": true, "exit": true,
	"true": true, "True": true,
	"false": true, "False": true,
	"null": true, "Null": true,
}

// Lexer scans a fixed input string into tokens on demand.
type Lexer struct {
	src        string
	pos        int // byte offset of the next unread rune
	line, col  int
}

// New returns a Lexer positioned at the start of src.
func New(src string) *Lexer {
	return &Lexer{src: src, pos: 0, line: 1, col: 1}
}

// Tokenize scans the entire input and returns the token slice ending in
// an EOF token, or a *herrors.SyntaxError on the first unscannable
// character.
func Tokenize(src string) ([]Token, error) {
	lx := New(src)
	var toks []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) skipTrivia() {
	for l.pos < len(l.src) {
		b := l.peekByte()
		switch {
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			l.advance()
		case b == '#':
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }

func (l *Lexer) next() (Token, error) {
	l.skipTrivia()
	line, col := l.line, l.col

	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Line: line, Column: col}, nil
	}

	b := l.peekByte()

	switch {
	case b == '$':
		return l.scanRequestVar(line, col)
	case isAlpha(b):
		return l.scanIdentOrKeyword(line, col)
	case isDigit(b):
		return l.scanNumber(line, col)
	case b == '"':
		return l.scanString(line, col)
	}

	two := l.src[l.pos:min(l.pos+2, len(l.src))]
	switch two {
	case "==":
		l.advance()
		l.advance()
		return Token{Kind: EQEQ, Text: "==", Line: line, Column: col}, nil
	case "!=":
		l.advance()
		l.advance()
		return Token{Kind: NEQ, Text: "!=", Line: line, Column: col}, nil
	case "<=":
		l.advance()
		l.advance()
		return Token{Kind: LE, Text: "<=", Line: line, Column: col}, nil
	case ">=":
		l.advance()
		l.advance()
		return Token{Kind: GE, Text: ">=", Line: line, Column: col}, nil
	case "&&":
		l.advance()
		l.advance()
		return Token{Kind: ANDAND, Text: "&&", Line: line, Column: col}, nil
	case "||":
		l.advance()
		l.advance()
		return Token{Kind: OROR, Text: "||", Line: line, Column: col}, nil
	}

	single := map[byte]Kind{
		':': COLON, ';': SEMI, ',': COMMA, '.': DOT, '*': STAR, '/': SLASH,
		'%': PERCENT, '{': LBRACE, '}': RBRACE, '(': LPAREN, ')': RPAREN,
		'[': LBRACKET, ']': RBRACKET, '=': EQUAL, '+': PLUS, '-': MINUS,
		'!': BANG, '<': LT, '>': GT,
	}
	if kind, ok := single[b]; ok {
		l.advance()
		return Token{Kind: kind, Text: string(b), Line: line, Column: col}, nil
	}

	l.advance()
	return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, string(b), "unexpected character %q", b)
}

func (l *Lexer) scanRequestVar(line, col int) (Token, error) {
	start := l.pos
	l.advance() // '$'
	nameStart := l.pos
	for l.pos < len(l.src) && isAlnum(l.peekByte()) {
		l.advance()
	}
	prefix := l.src[nameStart:l.pos]
	if prefix != "req" && prefix != "request" {
		return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, l.src[start:l.pos], "expected $req or $request")
	}
	if l.peekByte() != '.' {
		return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, l.src[start:l.pos], "expected '.' after %s", prefix)
	}
	l.advance() // '.'
	varStart := l.pos
	if !isAlpha(l.peekByte()) {
		return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, l.src[start:l.pos], "expected identifier after %s.", prefix)
	}
	for l.pos < len(l.src) && isAlnum(l.peekByte()) {
		l.advance()
	}
	name := l.src[varStart:l.pos]
	return Token{Kind: DOLLAR_REQ, Text: l.src[start:l.pos], Value: prefix + "." + name, Line: line, Column: col}, nil
}

func (l *Lexer) scanIdentOrKeyword(line, col int) (Token, error) {
	start := l.pos
	for l.pos < len(l.src) && isAlnum(l.peekByte()) {
		l.advance()
	}
	text := l.src[start:l.pos]
	if keywords[text] {
		return Token{Kind: KEYWORD, Text: text, Line: line, Column: col}, nil
	}
	return Token{Kind: IDENT, Text: text, Line: line, Column: col}, nil
}

func (l *Lexer) scanNumber(line, col int) (Token, error) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.peekByte()) {
		l.advance()
	}
	isFloat := false
	if l.peekByte() == '.' && isDigit(l.peekByteAt(1)) {
		isFloat = true
		l.advance() // '.'
		for l.pos < len(l.src) && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	text := l.src[start:l.pos]
	if isFloat {
		return Token{Kind: FLOAT, Text: text, Line: line, Column: col}, nil
	}
	return Token{Kind: INT, Text: text, Line: line, Column: col}, nil
}

func (l *Lexer) scanString(line, col int) (Token, error) {
	start := l.pos
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, l.src[start:l.pos], "unterminated string literal")
		}
		b := l.peekByte()
		if b == '"' {
			l.advance()
			break
		}
		if b == '\n' {
			return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, l.src[start:l.pos], "unterminated string literal")
		}
		if b == '\\' {
			l.advance()
			if l.pos >= len(l.src) {
				return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, l.src[start:l.pos], "unterminated escape sequence")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				return Token{}, herrors.NewSyntaxError(herrors.Position{Line: line, Column: col}, fmt.Sprintf("\\%c", esc), "unknown escape sequence")
			}
			continue
		}
		sb.WriteByte(l.advance())
	}
	return Token{Kind: STRING, Text: l.src[start:l.pos], Value: sb.String(), Line: line, Column: col}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
