package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize_ProbeSpecAndBody(t *testing.T) {
	toks, err := Tokenize(`app:mod.fn:entry /arg0 > 1/ {
  capture(arg0);
}`)
	require.NoError(t, err)
	assert.Equal(t, []Kind{
		IDENT, COLON, IDENT, DOT, IDENT, COLON, KEYWORD,
		SLASH, IDENT, GT, INT, SLASH,
		LBRACE,
		KEYWORD, LPAREN, IDENT, RPAREN, SEMI,
		RBRACE,
		EOF,
	}, kinds(toks))
}

func TestTokenize_RequestVarBothSpellings(t *testing.T) {
	toks, err := Tokenize(`$req.x $request.y`)
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, DOLLAR_REQ, toks[0].Kind)
	assert.Equal(t, "req.x", toks[0].Value)
	assert.Equal(t, DOLLAR_REQ, toks[1].Kind)
	assert.Equal(t, "request.y", toks[1].Value)
}

func TestTokenize_CapitalizedLiteralKeywords(t *testing.T) {
	toks, err := Tokenize(`true True false False null Null`)
	require.NoError(t, err)
	for _, tok := range toks[:6] {
		assert.Equal(t, KEYWORD, tok.Kind)
	}
}

func TestTokenize_StringEscapes(t *testing.T) {
	toks, err := Tokenize(`"a\nb\t\"c\\d"`)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\nb\t\"c\\d", toks[0].Value)
}

func TestTokenize_UnterminatedStringIsSyntaxError(t *testing.T) {
	_, err := Tokenize(`"abc`)
	assert.Error(t, err)
}

func TestTokenize_NumberFloatVsInt(t *testing.T) {
	toks, err := Tokenize(`3 3.5 3.`)
	require.NoError(t, err)
	assert.Equal(t, INT, toks[0].Kind)
	assert.Equal(t, FLOAT, toks[1].Kind)
	// "3." with no trailing digit: the '.' is not part of the number.
	assert.Equal(t, INT, toks[2].Kind)
	assert.Equal(t, DOT, toks[3].Kind)
}

func TestTokenize_LineComment(t *testing.T) {
	toks, err := Tokenize("1 # comment\n2")
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, "1", toks[0].Text)
	assert.Equal(t, "2", toks[1].Text)
	assert.Equal(t, 2, toks[1].Line)
}

func TestTokenize_TwoCharOperators(t *testing.T) {
	toks, err := Tokenize(`== != <= >= && ||`)
	require.NoError(t, err)
	assert.Equal(t, []Kind{EQEQ, NEQ, LE, GE, ANDAND, OROR, EOF}, kinds(toks))
}

func TestTokenize_UnexpectedCharacter(t *testing.T) {
	_, err := Tokenize(`@`)
	assert.Error(t, err)
}
