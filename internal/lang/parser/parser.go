// Package parser implements HogTrace's recursive-descent parser (spec
// §4.1), turning a lexer.Token stream into an ast.Program.
//
// Ground: cmd/racedetector/instrument.InstrumentFile's staged
// parse -> transform -> emit pipeline shape, adapted here to a single
// parse-and-desugar pass since the artifact is an in-memory AST rather
// than rewritten Go source text.
package parser

import (
	"fmt"
	"strconv"

	"github.com/PostHog/hogtrace/internal/herrors"
	"github.com/PostHog/hogtrace/internal/lang/ast"
	"github.com/PostHog/hogtrace/internal/lang/lexer"
)

// Parse tokenizes and parses src, returning either a complete Program or
// a non-empty list of errors — never both, and never a partial Program
// (spec §4.1 "Errors").
func Parse(src string) (*ast.Program, []error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, []error{err}
	}
	p := &parser{toks: toks, src: src}
	prog := p.parseProgram()
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return prog, nil
}

type parser struct {
	toks []lexer.Token
	pos  int
	src  string
	errs []error
}

func (p *parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos]
}

func (p *parser) at(k lexer.Kind) bool { return p.cur().Kind == k }

func (p *parser) atKeyword(kw string) bool {
	return p.cur().Kind == lexer.KEYWORD && p.cur().Text == kw
}

func (p *parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(tok lexer.Token, format string, args ...any) {
	p.errs = append(p.errs, herrors.NewSyntaxError(
		herrors.Position{Line: tok.Line, Column: tok.Column}, tok.Text, format, args...))
}

// recoverToProbeBoundary skips tokens up to and including the next '}'
// (the end of the current probe body), or to EOF, so one bad probe
// doesn't cascade into spurious errors for the rest of the file.
func (p *parser) recoverToProbeBoundary() {
	for !p.at(lexer.EOF) {
		if p.at(lexer.RBRACE) {
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.at(lexer.EOF) {
		startPos := p.pos
		probe := p.parseProbe()
		if probe != nil {
			prog.Probes = append(prog.Probes, probe)
		}
		if p.pos == startPos {
			// parseProbe made no progress; force advancement to avoid
			// an infinite loop on a truly unparseable token.
			p.advance()
		}
	}
	return prog
}

func (p *parser) parseProbe() *ast.Probe {
	specStart := p.cur()
	spec, ok := p.parseProbeSpec()
	if !ok {
		p.recoverToProbeBoundary()
		return nil
	}

	probe := &ast.Probe{Spec: spec}

	if p.at(lexer.SLASH) {
		pred, ok := p.parsePredicate()
		if !ok {
			p.recoverToProbeBoundary()
			return nil
		}
		probe.Predicate = pred
	}

	if !p.at(lexer.LBRACE) {
		p.errorf(p.cur(), "expected '{' to begin probe body for %s", specStart.Text)
		p.recoverToProbeBoundary()
		return nil
	}
	p.advance() // '{'

	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		action := p.parseStatement()
		if action == nil {
			p.recoverToProbeBoundary()
			return probe
		}
		probe.Actions = append(probe.Actions, action)
	}
	if !p.at(lexer.RBRACE) {
		p.errorf(p.cur(), "expected '}' to close probe body")
		return probe
	}
	p.advance() // '}'
	return probe
}

func (p *parser) parseProbeSpec() (ast.ProbeSpec, bool) {
	var raw []lexer.Token

	if !p.at(lexer.IDENT) {
		p.errorf(p.cur(), "expected provider identifier to begin probe spec")
		return ast.ProbeSpec{}, false
	}
	provider := p.advance()
	raw = append(raw, provider)

	if !p.at(lexer.COLON) {
		p.errorf(p.cur(), "expected ':' after provider %q", provider.Text)
		return ast.ProbeSpec{}, false
	}
	raw = append(raw, p.advance())

	modFunc, ok := p.parseModFunc(&raw)
	if !ok {
		return ast.ProbeSpec{}, false
	}

	if !p.at(lexer.COLON) {
		p.errorf(p.cur(), "expected ':' before probe point")
		return ast.ProbeSpec{}, false
	}
	raw = append(raw, p.advance())

	point, ok := p.parseProbePoint(&raw)
	if !ok {
		return ast.ProbeSpec{}, false
	}

	full := joinRaw(raw)
	return ast.ProbeSpec{
		Provider:       provider.Text,
		ModuleFunction: modFunc,
		ProbePoint:     point,
		FullSpec:       full,
	}, true
}

func (p *parser) parseModFunc(raw *[]lexer.Token) (string, bool) {
	segs := ""
	for {
		var seg lexer.Token
		switch {
		case p.at(lexer.IDENT):
			seg = p.advance()
		case p.at(lexer.STAR):
			seg = p.advance()
		default:
			p.errorf(p.cur(), "expected module/function path segment")
			return "", false
		}
		*raw = append(*raw, seg)
		segs += seg.Text
		if !p.at(lexer.DOT) {
			break
		}
		*raw = append(*raw, p.advance())
		segs += "."
	}
	return segs, true
}

func (p *parser) parseProbePoint(raw *[]lexer.Token) (string, bool) {
	if !p.atKeyword("entry") && !p.atKeyword("exit") {
		p.errorf(p.cur(), "expected 'entry' or 'exit'")
		return "", false
	}
	kw := p.advance()
	*raw = append(*raw, kw)
	text := kw.Text
	if p.at(lexer.PLUS) {
		*raw = append(*raw, p.advance())
		if !p.at(lexer.INT) {
			p.errorf(p.cur(), "expected integer offset after '+'")
			return "", false
		}
		offTok := p.advance()
		*raw = append(*raw, offTok)
		text += "+" + offTok.Text
	}
	return text, true
}

func (p *parser) parsePredicate() (ast.Expr, bool) {
	startTok := p.advance() // consume opening '/'
	expr, ok := p.parseExpr()
	if !ok {
		return nil, false
	}
	if !p.at(lexer.SLASH) {
		p.errorf(p.cur(), "expected closing '/' for predicate")
		return nil, false
	}
	p.advance()
	_ = startTok
	return expr, true
}

func (p *parser) parseStatement() ast.Action {
	switch {
	case p.at(lexer.DOLLAR_REQ):
		return p.parseAssignment()
	case p.atKeyword("sample"):
		return p.parseSample()
	case p.atKeyword("capture") || p.atKeyword("send"):
		return p.parseCapture()
	default:
		p.errorf(p.cur(), "expected assignment, sample, or capture statement")
		return nil
	}
}

func (p *parser) expectSemi() bool {
	if !p.at(lexer.SEMI) {
		p.errorf(p.cur(), "expected ';' to end statement")
		return false
	}
	p.advance()
	return true
}

func (p *parser) parseAssignment() ast.Action {
	tok := p.advance() // DOLLAR_REQ
	reqVar := requestVarFromToken(tok)

	if !p.at(lexer.EQUAL) {
		p.errorf(p.cur(), "expected '=' in assignment to %s", tok.Value)
		return nil
	}
	p.advance()

	rhs, ok := p.parseExpr()
	if !ok {
		return nil
	}
	if !p.expectSemi() {
		return nil
	}
	return &ast.AssignmentAction{Var: reqVar, Value: rhs}
}

func requestVarFromToken(tok lexer.Token) ast.RequestVar {
	prefix, name := splitReqVar(tok.Value)
	return ast.RequestVar{Prefix: prefix, Name: name, Raw: tok.Text}
}

func splitReqVar(value string) (prefix, name string) {
	for i := 0; i < len(value); i++ {
		if value[i] == '.' {
			return value[:i], value[i+1:]
		}
	}
	return value, ""
}

func (p *parser) parseSample() ast.Action {
	kw := p.advance() // 'sample'
	if !p.at(lexer.INT) {
		p.errorf(p.cur(), "expected integer after 'sample'")
		return nil
	}
	first := p.advance()
	n, err := strconv.Atoi(first.Text)
	if err != nil {
		p.errorf(first, "invalid integer %q", first.Text)
		return nil
	}

	var action *ast.SampleAction
	switch {
	case p.at(lexer.PERCENT):
		pctTok := p.advance()
		action = &ast.SampleAction{
			SpecKind:  ast.SamplePercentage,
			Percent:   n,
			Threshold: float64(n) / 100.0,
			Raw:       kw.Text + " " + first.Text + pctTok.Text,
		}
	case p.at(lexer.SLASH):
		p.advance()
		if !p.at(lexer.INT) {
			p.errorf(p.cur(), "expected integer denominator after '/'")
			return nil
		}
		denTok := p.advance()
		den, err := strconv.Atoi(denTok.Text)
		if err != nil || den == 0 {
			p.errorf(denTok, "invalid sample denominator %q", denTok.Text)
			return nil
		}
		action = &ast.SampleAction{
			SpecKind:  ast.SampleRatio,
			Num:       n,
			Den:       den,
			Threshold: float64(n) / float64(den),
			Raw:       kw.Text + " " + first.Text + "/" + denTok.Text,
		}
	default:
		p.errorf(p.cur(), "expected '%%' or '/den' after sample count")
		return nil
	}
	if !p.expectSemi() {
		return nil
	}
	return action
}

func (p *parser) parseCapture() ast.Action {
	fnTok := p.advance() // 'capture' or 'send'
	if !p.at(lexer.LPAREN) {
		p.errorf(p.cur(), "expected '(' after %q", fnTok.Text)
		return nil
	}
	p.advance()

	action := &ast.CaptureAction{Function: fnTok.Text}
	if !p.at(lexer.RPAREN) {
		for {
			if p.at(lexer.IDENT) && p.peekIsAssignEq() {
				nameTok := p.advance()
				p.advance() // '='
				val, ok := p.parseExpr()
				if !ok {
					return nil
				}
				action.Named = append(action.Named, ast.NamedCaptureArg{Name: nameTok.Text, Value: val})
			} else {
				val, ok := p.parseExpr()
				if !ok {
					return nil
				}
				action.Positional = append(action.Positional, val)
			}
			if !p.at(lexer.COMMA) {
				break
			}
			p.advance()
		}
	}
	if !p.at(lexer.RPAREN) {
		p.errorf(p.cur(), "expected ')' to close %q call", fnTok.Text)
		return nil
	}
	closeParen := p.advance()
	action.Raw = fnTok.Text + "(...)" + "" // exact arg text not reconstructed; call-level Raw kept short
	_ = closeParen
	if !p.expectSemi() {
		return nil
	}
	return action
}

// peekIsAssignEq reports whether the token after the current IDENT is
// '=' (a named capture arg) as opposed to the start of some other
// expression that merely begins with an identifier.
func (p *parser) peekIsAssignEq() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	return p.toks[p.pos+1].Kind == lexer.EQUAL
}

// --- Expression grammar: || < && < equality < comparison < additive
// < multiplicative < unary < postfix < atom (spec §4.1).

func (p *parser) parseExpr() (ast.Expr, bool) {
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expr, bool) {
	left, ok := p.parseAnd()
	if !ok {
		return nil, false
	}
	for p.at(lexer.OROR) {
		op := p.advance()
		right, ok := p.parseAnd()
		if !ok {
			return nil, false
		}
		left = &ast.BinaryOp{Op: "||", Left: left, Right: right, Raw: combine(left, right, op.Text)}
	}
	return left, true
}

func (p *parser) parseAnd() (ast.Expr, bool) {
	left, ok := p.parseEquality()
	if !ok {
		return nil, false
	}
	for p.at(lexer.ANDAND) {
		op := p.advance()
		right, ok := p.parseEquality()
		if !ok {
			return nil, false
		}
		left = &ast.BinaryOp{Op: "&&", Left: left, Right: right, Raw: combine(left, right, op.Text)}
	}
	return left, true
}

func (p *parser) parseEquality() (ast.Expr, bool) {
	left, ok := p.parseComparison()
	if !ok {
		return nil, false
	}
	for p.at(lexer.EQEQ) || p.at(lexer.NEQ) {
		op := p.advance()
		right, ok := p.parseComparison()
		if !ok {
			return nil, false
		}
		left = &ast.BinaryOp{Op: op.Text, Left: left, Right: right, Raw: combine(left, right, op.Text)}
	}
	return left, true
}

func (p *parser) parseComparison() (ast.Expr, bool) {
	left, ok := p.parseAdditive()
	if !ok {
		return nil, false
	}
	for p.at(lexer.LT) || p.at(lexer.GT) || p.at(lexer.LE) || p.at(lexer.GE) {
		op := p.advance()
		right, ok := p.parseAdditive()
		if !ok {
			return nil, false
		}
		left = &ast.BinaryOp{Op: op.Text, Left: left, Right: right, Raw: combine(left, right, op.Text)}
	}
	return left, true
}

func (p *parser) parseAdditive() (ast.Expr, bool) {
	left, ok := p.parseMultiplicative()
	if !ok {
		return nil, false
	}
	for p.at(lexer.PLUS) || p.at(lexer.MINUS) {
		op := p.advance()
		right, ok := p.parseMultiplicative()
		if !ok {
			return nil, false
		}
		left = &ast.BinaryOp{Op: op.Text, Left: left, Right: right, Raw: combine(left, right, op.Text)}
	}
	return left, true
}

func (p *parser) parseMultiplicative() (ast.Expr, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return nil, false
	}
	for p.at(lexer.STAR) || p.at(lexer.SLASH) || p.at(lexer.PERCENT) {
		op := p.advance()
		right, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		left = &ast.BinaryOp{Op: op.Text, Left: left, Right: right, Raw: combine(left, right, op.Text)}
	}
	return left, true
}

func (p *parser) parseUnary() (ast.Expr, bool) {
	if p.at(lexer.BANG) || p.at(lexer.MINUS) || p.at(lexer.PLUS) {
		op := p.advance()
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return &ast.UnaryOp{Op: op.Text, Operand: operand, Raw: op.Text + operand.Source()}, true
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, bool) {
	expr, ok := p.parseAtom()
	if !ok {
		return nil, false
	}
	for {
		switch {
		case p.at(lexer.DOT):
			p.advance()
			if !p.at(lexer.IDENT) {
				p.errorf(p.cur(), "expected field name after '.'")
				return nil, false
			}
			field := p.advance()
			expr = &ast.FieldAccess{Object: expr, Field: field.Text, Raw: expr.Source() + "." + field.Text}
		case p.at(lexer.LBRACKET):
			p.advance()
			idx, ok := p.parseExpr()
			if !ok {
				return nil, false
			}
			if !p.at(lexer.RBRACKET) {
				p.errorf(p.cur(), "expected ']' to close index expression")
				return nil, false
			}
			p.advance()
			expr = &ast.IndexAccess{Object: expr, Index: idx, Raw: expr.Source() + "[" + idx.Source() + "]"}
		default:
			return expr, true
		}
	}
}

func (p *parser) parseAtom() (ast.Expr, bool) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.INT:
		p.advance()
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			p.errorf(tok, "invalid integer literal %q", tok.Text)
			return nil, false
		}
		return &ast.Literal{LitKind: ast.LiteralInt, Int: n, Raw: tok.Text}, true

	case lexer.FLOAT:
		p.advance()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			p.errorf(tok, "invalid float literal %q", tok.Text)
			return nil, false
		}
		return &ast.Literal{LitKind: ast.LiteralFloat, Float: f, Raw: tok.Text}, true

	case lexer.STRING:
		p.advance()
		return &ast.Literal{LitKind: ast.LiteralString, Str: tok.Value, Raw: tok.Text}, true

	case lexer.KEYWORD:
		switch tok.Text {
		case "true", "True":
			p.advance()
			return &ast.Literal{LitKind: ast.LiteralBool, Bool: true, Raw: tok.Text}, true
		case "false", "False":
			p.advance()
			return &ast.Literal{LitKind: ast.LiteralBool, Bool: false, Raw: tok.Text}, true
		case "null", "Null":
			p.advance()
			return &ast.Literal{LitKind: ast.LiteralNull, Raw: tok.Text}, true
		default:
			p.errorf(tok, "unexpected keyword %q in expression", tok.Text)
			return nil, false
		}

	case lexer.DOLLAR_REQ:
		p.advance()
		return &ast.RequestVarExpr{Var: requestVarFromToken(tok), Raw: tok.Text}, true

	case lexer.IDENT:
		p.advance()
		if p.at(lexer.LPAREN) {
			return p.parseCallArgs(tok)
		}
		return &ast.Identifier{Name: tok.Text, Raw: tok.Text}, true

	case lexer.LPAREN:
		p.advance()
		expr, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		if !p.at(lexer.RPAREN) {
			p.errorf(p.cur(), "expected ')' to close parenthesized expression")
			return nil, false
		}
		p.advance()
		return expr, true

	default:
		p.errorf(tok, "unexpected token %q in expression", tok.Text)
		return nil, false
	}
}

func (p *parser) parseCallArgs(name lexer.Token) (ast.Expr, bool) {
	p.advance() // '('
	var args []ast.Expr
	if !p.at(lexer.RPAREN) {
		for {
			arg, ok := p.parseExpr()
			if !ok {
				return nil, false
			}
			args = append(args, arg)
			if !p.at(lexer.COMMA) {
				break
			}
			p.advance()
		}
	}
	if !p.at(lexer.RPAREN) {
		p.errorf(p.cur(), "expected ')' to close call to %q", name.Text)
		return nil, false
	}
	closeTok := p.advance()
	raw := name.Text + "(" + joinArgSources(args) + ")"
	_ = closeTok
	return &ast.FunctionCall{Name: name.Text, Args: args, Raw: raw}, true
}

func joinArgSources(args []ast.Expr) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a.Source()
	}
	return s
}

func combine(left, right ast.Expr, op string) string {
	return fmt.Sprintf("%s %s %s", left.Source(), op, right.Source())
}

func joinRaw(toks []lexer.Token) string {
	s := ""
	for _, t := range toks {
		s += t.Text
	}
	return s
}
