// Package eval is HogTrace's pure, tree-walking expression evaluator
// (spec §4.3). Eval depends on nothing but its arguments: no package
// state is read or written during evaluation.
//
// Ground: original_source/hogtrace/evaluator.py's ExpressionEvaluator
// for the dispatch shape and resource-bound placement, and
// detector.Detector's counter-based budget idiom
// (internal/race/detector/detector.go's DetectorOptions/operationCount
// pattern) for the recursion-depth and work-quantum counters, applied
// here to AST-node visits instead of memory accesses.
package eval

import (
	"fmt"

	"github.com/PostHog/hogtrace/internal/builtins"
	"github.com/PostHog/hogtrace/internal/frame"
	"github.com/PostHog/hogtrace/internal/herrors"
	"github.com/PostHog/hogtrace/internal/lang/ast"
	"github.com/PostHog/hogtrace/internal/limits"
	"github.com/PostHog/hogtrace/internal/store"
)

func init() {
	// Route hasattr/getattr through the same access-control policy as
	// field access, using the default (non-relaxed) limits; a probe
	// that needs relaxed attribute access for these builtins should
	// prefer plain field-access syntax, which does see the configured
	// Limits.
	d := limits.Default()
	builtins.SetAttrHooks(
		func(obj any, name string) bool {
			if !attrAllowed(name, &d) {
				return false
			}
			_, ok := frame.Attr(obj, name)
			return ok
		},
		func(obj any, name string) (any, bool) {
			if !attrAllowed(name, &d) {
				return nil, false
			}
			return frame.Attr(obj, name)
		},
	)
}

// evalCtx threads per-call-tree budget counters through recursive Eval
// calls (ground: detector.Detector's single mutable counter struct
// passed by reference down a call graph).
type evalCtx struct {
	frame *frame.Context
	store *store.View
	lim   *limits.Limits

	depth     int
	workUnits int
}

// Eval evaluates expr against fr/st under lim and returns its value, or
// an error from the herrors sentinel set (spec §4.3). Eval never
// mutates fr, st, or expr.
func Eval(expr ast.Expr, fr *frame.Context, st *store.View, lim *limits.Limits) (any, error) {
	ctx := &evalCtx{frame: fr, store: st, lim: lim}
	return ctx.eval(expr)
}

func (c *evalCtx) eval(expr ast.Expr) (any, error) {
	c.workUnits++
	if c.lim.MaxWorkUnits > 0 && c.workUnits > c.lim.MaxWorkUnits {
		return nil, fmt.Errorf("%w: exceeded %d work units", herrors.ErrTimeout, c.lim.MaxWorkUnits)
	}

	c.depth++
	defer func() { c.depth-- }()
	if c.depth > c.lim.MaxRecursionDepth {
		return nil, fmt.Errorf("%w: exceeded depth %d", herrors.ErrRecursion, c.lim.MaxRecursionDepth)
	}

	switch e := expr.(type) {
	case *ast.Literal:
		return c.evalLiteral(e)
	case *ast.Identifier:
		v, _ := c.frame.Lookup(e.Name)
		return v, nil
	case *ast.RequestVarExpr:
		v, _ := c.store.Get(e.Var.Name)
		return v, nil
	case *ast.FieldAccess:
		return c.evalFieldAccess(e)
	case *ast.IndexAccess:
		return c.evalIndexAccess(e)
	case *ast.FunctionCall:
		return c.evalCall(e)
	case *ast.BinaryOp:
		return c.evalBinary(e)
	case *ast.UnaryOp:
		return c.evalUnary(e)
	default:
		return nil, fmt.Errorf("%w: unhandled expression type %T", herrors.ErrEval, expr)
	}
}

func (c *evalCtx) evalLiteral(l *ast.Literal) (any, error) {
	switch l.LitKind {
	case ast.LiteralInt:
		return l.Int, nil
	case ast.LiteralFloat:
		return l.Float, nil
	case ast.LiteralString:
		return l.Str, nil
	case ast.LiteralBool:
		return l.Bool, nil
	case ast.LiteralNull:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown literal kind", herrors.ErrEval)
}

func (c *evalCtx) evalFieldAccess(f *ast.FieldAccess) (any, error) {
	obj, err := c.eval(f.Object)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	if !attrAllowed(f.Field, c.lim) {
		return nil, fmt.Errorf("%w: %q", herrors.ErrUnsafeAttribute, f.Field)
	}
	v, ok := frame.Attr(obj, f.Field)
	if !ok {
		return nil, nil
	}
	return v, nil
}

// attrAllowed implements the private/dunder attribute-access policy
// (spec §4.3 "Attribute-access policy", §4.7).
func attrAllowed(name string, lim *limits.Limits) bool {
	if isDunder(name) {
		return lim.AllowDunderAttrs
	}
	if len(name) > 0 && name[0] == '_' {
		return lim.AllowPrivateAttrs
	}
	return true
}

func isDunder(name string) bool {
	return len(name) >= 4 && name[:2] == "__" && name[len(name)-2:] == "__"
}

func (c *evalCtx) evalIndexAccess(ix *ast.IndexAccess) (any, error) {
	obj, err := c.eval(ix.Object)
	if err != nil {
		return nil, err
	}
	key, err := c.eval(ix.Index)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	v, ok := frame.Index(obj, key)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (c *evalCtx) evalCall(call *ast.FunctionCall) (any, error) {
	fn, ok := builtins.Table[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", herrors.ErrUnknownFunction, call.Name)
	}
	args := make([]any, len(call.Args))
	for i, a := range call.Args {
		v, err := c.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", herrors.ErrEval, call.Name, err)
	}
	return v, nil
}

func (c *evalCtx) evalBinary(b *ast.BinaryOp) (any, error) {
	switch b.Op {
	case "&&":
		left, err := c.eval(b.Left)
		if err != nil {
			return nil, err
		}
		if !builtins.Truthy(left) {
			return false, nil
		}
		right, err := c.eval(b.Right)
		if err != nil {
			return nil, err
		}
		return builtins.Truthy(right), nil

	case "||":
		left, err := c.eval(b.Left)
		if err != nil {
			return nil, err
		}
		if builtins.Truthy(left) {
			return true, nil
		}
		right, err := c.eval(b.Right)
		if err != nil {
			return nil, err
		}
		return builtins.Truthy(right), nil
	}

	left, err := c.eval(b.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.eval(b.Right)
	if err != nil {
		return nil, err
	}
	return applyBinary(b.Op, left, right)
}

func applyBinary(op string, left, right any) (any, error) {
	switch op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	}

	// Strings support + (concatenation) and comparisons.
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return stringBinary(op, ls, rs)
		}
	}

	lf, lok := numeric(left)
	rf, rok := numeric(right)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: operator %q unsupported for %T and %T", herrors.ErrEval, op, left, right)
	}

	switch op {
	case "+":
		return numericResult(left, right, lf+rf), nil
	case "-":
		return numericResult(left, right, lf-rf), nil
	case "*":
		return numericResult(left, right, lf*rf), nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("%w: division by zero", herrors.ErrEval)
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("%w: modulo by zero", herrors.ErrEval)
		}
		li, lIsInt := left.(int64)
		ri, rIsInt := right.(int64)
		if lIsInt && rIsInt {
			return li % ri, nil
		}
		return modFloat(lf, rf), nil
	case "<":
		return lf < rf, nil
	case ">":
		return lf > rf, nil
	case "<=":
		return lf <= rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", herrors.ErrEval, op)
}

func stringBinary(op, l, r string) (any, error) {
	switch op {
	case "+":
		return l + r, nil
	case "<":
		return l < r, nil
	case ">":
		return l > r, nil
	case "<=":
		return l <= r, nil
	case ">=":
		return l >= r, nil
	}
	return nil, fmt.Errorf("%w: operator %q unsupported for strings", herrors.ErrEval, op)
}

func modFloat(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	return m
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func numericResult(left, right any, f float64) any {
	_, lInt := left.(int64)
	_, rInt := right.(int64)
	if lInt && rInt {
		return int64(f)
	}
	return f
}

func valuesEqual(a, b any) bool {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func (c *evalCtx) evalUnary(u *ast.UnaryOp) (any, error) {
	v, err := c.eval(u.Operand)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "!":
		return !builtins.Truthy(v), nil
	case "-":
		f, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("%w: unary '-' unsupported for %T", herrors.ErrEval, v)
		}
		return numericResult(v, v, -f), nil
	case "+":
		f, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("%w: unary '+' unsupported for %T", herrors.ErrEval, v)
		}
		return numericResult(v, v, f), nil
	}
	return nil, fmt.Errorf("%w: unknown unary operator %q", herrors.ErrEval, u.Op)
}
