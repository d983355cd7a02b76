package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PostHog/hogtrace/internal/frame"
	"github.com/PostHog/hogtrace/internal/herrors"
	"github.com/PostHog/hogtrace/internal/lang/ast"
	"github.com/PostHog/hogtrace/internal/limits"
	"github.com/PostHog/hogtrace/internal/store"
)

func newView() *store.View {
	s := store.New()
	_, v := s.Begin(context.Background())
	return v
}

func lit(i int64) *ast.Literal { return &ast.Literal{LitKind: ast.LiteralInt, Int: i} }

func TestEval_Literals(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	v, err := Eval(&ast.Literal{LitKind: ast.LiteralInt, Int: 5}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = Eval(&ast.Literal{LitKind: ast.LiteralFloat, Float: 1.5}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = Eval(&ast.Literal{LitKind: ast.LiteralString, Str: "x"}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = Eval(&ast.Literal{LitKind: ast.LiteralBool, Bool: true}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval(&ast.Literal{LitKind: ast.LiteralNull}, fr, st, &lim)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEval_IdentifierMissIsNullNotError(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	v, err := Eval(&ast.Identifier{Name: "nope"}, fr, st, &lim)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEval_IdentifierResolvesFrameArg(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{Args: []any{int64(42)}}
	st := newView()

	v, err := Eval(&ast.Identifier{Name: "arg0"}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestEval_RequestVarReadsStore(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()
	st.Set("plan", "pro")

	v, err := Eval(&ast.RequestVarExpr{Var: ast.RequestVar{Prefix: "req", Name: "plan"}}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, "pro", v)
}

func TestEval_FieldAccess(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	fr.Locals = map[string]any{"user": map[string]any{"id": int64(7)}}

	expr := &ast.FieldAccess{Object: &ast.Identifier{Name: "user"}, Field: "id"}
	v, err := Eval(expr, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestEval_FieldAccessOnNilObjectIsNull(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	expr := &ast.FieldAccess{Object: &ast.Identifier{Name: "missing"}, Field: "id"}
	v, err := Eval(expr, fr, st, &lim)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEval_FieldAccessBlocksDunderByDefault(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{Locals: map[string]any{"obj": map[string]any{"__class__": "x"}}}
	st := newView()

	expr := &ast.FieldAccess{Object: &ast.Identifier{Name: "obj"}, Field: "__class__"}
	_, err := Eval(expr, fr, st, &lim)
	require.Error(t, err)
	assert.ErrorIs(t, err, herrors.ErrUnsafeAttribute)
}

func TestEval_FieldAccessBlocksPrivateByDefault(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{Locals: map[string]any{"obj": map[string]any{"_secret": "x"}}}
	st := newView()

	expr := &ast.FieldAccess{Object: &ast.Identifier{Name: "obj"}, Field: "_secret"}
	_, err := Eval(expr, fr, st, &lim)
	assert.ErrorIs(t, err, herrors.ErrUnsafeAttribute)
}

func TestEval_FieldAccessAllowsPrivateWhenConfigured(t *testing.T) {
	lim := limits.Default()
	lim.AllowPrivateAttrs = true
	fr := &frame.Context{Locals: map[string]any{"obj": map[string]any{"_secret": "x"}}}
	st := newView()

	expr := &ast.FieldAccess{Object: &ast.Identifier{Name: "obj"}, Field: "_secret"}
	v, err := Eval(expr, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestEval_IndexAccessMapAndSlice(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{Locals: map[string]any{
		"m": map[string]any{"k": "v"},
		"s": []any{"a", "b"},
	}}
	st := newView()

	v, err := Eval(&ast.IndexAccess{
		Object: &ast.Identifier{Name: "m"},
		Index:  &ast.Literal{LitKind: ast.LiteralString, Str: "k"},
	}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	v, err = Eval(&ast.IndexAccess{
		Object: &ast.Identifier{Name: "s"},
		Index:  lit(1),
	}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestEval_IndexAccessOutOfRangeIsNull(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{Locals: map[string]any{"s": []any{"a"}}}
	st := newView()

	v, err := Eval(&ast.IndexAccess{Object: &ast.Identifier{Name: "s"}, Index: lit(99)}, fr, st, &lim)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEval_FunctionCallUnknownNameErrors(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	_, err := Eval(&ast.FunctionCall{Name: "exec"}, fr, st, &lim)
	assert.ErrorIs(t, err, herrors.ErrUnknownFunction)
}

func TestEval_FunctionCallBuiltin(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	v, err := Eval(&ast.FunctionCall{Name: "abs", Args: []ast.Expr{&ast.Literal{LitKind: ast.LiteralInt, Int: -5}}}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestEval_AndOrShortCircuit(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	panicky := &ast.FunctionCall{Name: "exec"} // would error if evaluated

	v, err := Eval(&ast.BinaryOp{Op: "&&", Left: &ast.Literal{LitKind: ast.LiteralBool, Bool: false}, Right: panicky}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, false, v, "right side of && must not be evaluated when left is falsey")

	v, err = Eval(&ast.BinaryOp{Op: "||", Left: &ast.Literal{LitKind: ast.LiteralBool, Bool: true}, Right: panicky}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, true, v, "right side of || must not be evaluated when left is truthy")
}

func TestEval_NumericTypePreservation(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	v, err := Eval(&ast.BinaryOp{Op: "+", Left: lit(1), Right: lit(2)}, fr, st, &lim)
	require.NoError(t, err)
	assert.IsType(t, int64(0), v)
	assert.Equal(t, int64(3), v)

	v, err = Eval(&ast.BinaryOp{Op: "+", Left: lit(1), Right: &ast.Literal{LitKind: ast.LiteralFloat, Float: 2.5}}, fr, st, &lim)
	require.NoError(t, err)
	assert.IsType(t, float64(0), v)
	assert.Equal(t, 3.5, v)

	v, err = Eval(&ast.BinaryOp{Op: "/", Left: lit(7), Right: lit(2)}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v, "division always promotes to float")
}

func TestEval_DivisionByZeroErrors(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	_, err := Eval(&ast.BinaryOp{Op: "/", Left: lit(1), Right: lit(0)}, fr, st, &lim)
	assert.ErrorIs(t, err, herrors.ErrEval)
}

func TestEval_StringConcatAndComparison(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	v, err := Eval(&ast.BinaryOp{
		Op:   "+",
		Left: &ast.Literal{LitKind: ast.LiteralString, Str: "a"},
		Right: &ast.Literal{LitKind: ast.LiteralString, Str: "b"},
	}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, "ab", v)

	v, err = Eval(&ast.BinaryOp{
		Op:    "<",
		Left:  &ast.Literal{LitKind: ast.LiteralString, Str: "a"},
		Right: &ast.Literal{LitKind: ast.LiteralString, Str: "b"},
	}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEval_UnaryOperators(t *testing.T) {
	lim := limits.Default()
	fr := &frame.Context{}
	st := newView()

	v, err := Eval(&ast.UnaryOp{Op: "!", Operand: &ast.Literal{LitKind: ast.LiteralBool, Bool: false}}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval(&ast.UnaryOp{Op: "-", Operand: lit(5)}, fr, st, &lim)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)
}

func TestEval_RecursionDepthExceeded(t *testing.T) {
	lim := limits.Default()
	lim.MaxRecursionDepth = 3
	fr := &frame.Context{}
	st := newView()

	var deep ast.Expr = lit(1)
	for i := 0; i < 10; i++ {
		deep = &ast.UnaryOp{Op: "-", Operand: deep}
	}

	_, err := Eval(deep, fr, st, &lim)
	assert.ErrorIs(t, err, herrors.ErrRecursion)
}

func TestEval_WorkQuantumTimeoutExceeded(t *testing.T) {
	lim := limits.Default()
	lim.MaxWorkUnits = 2
	fr := &frame.Context{}
	st := newView()

	expr := &ast.BinaryOp{Op: "+", Left: lit(1), Right: &ast.BinaryOp{Op: "+", Left: lit(1), Right: lit(1)}}
	_, err := Eval(expr, fr, st, &lim)
	assert.ErrorIs(t, err, herrors.ErrTimeout)
}
