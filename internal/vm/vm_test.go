package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PostHog/hogtrace/internal/frame"
	"github.com/PostHog/hogtrace/internal/lang/ast"
	"github.com/PostHog/hogtrace/internal/limits"
	"github.com/PostHog/hogtrace/internal/ratelimit"
	"github.com/PostHog/hogtrace/internal/store"
)

func probeSpec(raw string) ast.ProbeSpec {
	return ast.ProbeSpec{FullSpec: raw}
}

func newView() *store.View {
	s := store.New()
	_, v := s.Begin(context.Background())
	return v
}

func TestRun_PredicateFalseDropsProbe(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec:      probeSpec("app:mod.fn:entry"),
		Predicate: &ast.Literal{LitKind: ast.LiteralBool, Bool: false},
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Identifier{Name: "args"}}},
		},
	}
	res := Run(probe, &frame.Context{}, newView(), &lim, nil)
	assert.Equal(t, DroppedPredicate, res.Reason)
	assert.False(t, res.Emitted())
}

func TestRun_PredicateErrorDropsWithErrorReason(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec:      probeSpec("app:mod.fn:entry"),
		Predicate: &ast.FunctionCall{Name: "not_a_real_builtin"},
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Identifier{Name: "args"}}},
		},
	}
	res := Run(probe, &frame.Context{}, newView(), &lim, nil)
	assert.Equal(t, DroppedError, res.Reason)
	assert.False(t, res.Emitted())
}

func TestRun_PredicateTimeoutDropsWithErrorReason(t *testing.T) {
	lim := limits.Default()
	lim.MaxWorkUnits = 1
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Predicate: &ast.BinaryOp{
			Op:    "+",
			Left:  &ast.Literal{LitKind: ast.LiteralInt, Int: 1},
			Right: &ast.Literal{LitKind: ast.LiteralInt, Int: 1},
		},
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Identifier{Name: "args"}}},
		},
	}
	res := Run(probe, &frame.Context{}, newView(), &lim, nil)
	assert.Equal(t, DroppedError, res.Reason)
	assert.False(t, res.Emitted())
}

func TestRun_PredicateTrueCapturesReservedName(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec:      probeSpec("app:mod.fn:entry"),
		Predicate: &ast.Literal{LitKind: ast.LiteralBool, Bool: true},
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Identifier{Name: "retval"}}},
		},
	}
	fr := &frame.Context{HasRetval: true, Retval: int64(42)}
	res := Run(probe, fr, newView(), &lim, nil)
	require.True(t, res.Emitted())
	assert.Equal(t, int64(42), res.Record.Values["retval"])
}

func TestRun_PositionalNonReservedGetsSyntheticKey(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Literal{LitKind: ast.LiteralInt, Int: 7}}},
		},
	}
	res := Run(probe, &frame.Context{}, newView(), &lim, nil)
	require.True(t, res.Emitted())
	assert.Equal(t, int64(7), res.Record.Values["arg0"])
}

func TestRun_NamedCaptureUsesGivenName(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.CaptureAction{Named: []ast.NamedCaptureArg{
				{Name: "status", Value: &ast.Literal{LitKind: ast.LiteralInt, Int: 200}},
			}},
		},
	}
	res := Run(probe, &frame.Context{}, newView(), &lim, nil)
	require.True(t, res.Emitted())
	assert.Equal(t, int64(200), res.Record.Values["status"])
}

func TestRun_AssignmentWritesToStoreAndSurvivesLaterProbes(t *testing.T) {
	lim := limits.Default()
	v := newView()
	assign := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.AssignmentAction{
				Var:   ast.RequestVar{Prefix: "req", Name: "start"},
				Value: &ast.Literal{LitKind: ast.LiteralInt, Int: 100},
			},
		},
	}
	res := Run(assign, &frame.Context{}, v, &lim, nil)
	assert.Equal(t, DroppedEmpty, res.Reason)

	got, ok := v.Get("start")
	require.True(t, ok)
	assert.Equal(t, int64(100), got)
}

func TestRun_AssignmentErrorIsSkippedSilently(t *testing.T) {
	lim := limits.Default()
	v := newView()
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.AssignmentAction{
				Var:   ast.RequestVar{Prefix: "req", Name: "x"},
				Value: &ast.FunctionCall{Name: "not_a_real_builtin"},
			},
		},
	}
	res := Run(probe, &frame.Context{}, v, &lim, nil)
	assert.Equal(t, DroppedEmpty, res.Reason)
	assert.False(t, v.Has("x"))
}

func TestRun_EmptyCaptureDrops(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{Spec: probeSpec("app:mod.fn:entry")}
	res := Run(probe, &frame.Context{}, newView(), &lim, nil)
	assert.Equal(t, DroppedEmpty, res.Reason)
}

func TestRun_SampleZeroAlwaysDrops(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.SampleAction{SpecKind: ast.SamplePercentage, Percent: 0, Threshold: 0},
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Identifier{Name: "args"}}},
		},
	}
	for i := 0; i < 20; i++ {
		res := Run(probe, &frame.Context{}, newView(), &lim, nil)
		assert.Equal(t, DroppedSample, res.Reason)
	}
}

func TestRun_SampleHundredPercentAlwaysFires(t *testing.T) {
	lim := limits.Default()
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.SampleAction{SpecKind: ast.SamplePercentage, Percent: 100, Threshold: 1.0},
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Literal{LitKind: ast.LiteralBool, Bool: true}}},
		},
	}
	for i := 0; i < 20; i++ {
		res := Run(probe, &frame.Context{}, newView(), &lim, nil)
		assert.True(t, res.Emitted())
	}
}

func TestRun_RateLimitDropsWhenRegistryExhausted(t *testing.T) {
	lim := limits.Default()
	reg := ratelimit.NewRegistry(1)
	probe := &ast.Probe{
		Spec: probeSpec("app:mod.fn:entry"),
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Literal{LitKind: ast.LiteralBool, Bool: true}}},
		},
	}
	first := Run(probe, &frame.Context{}, newView(), &lim, reg)
	assert.True(t, first.Emitted())

	second := Run(probe, &frame.Context{}, newView(), &lim, reg)
	assert.Equal(t, DroppedRate, second.Reason)
}

func TestProgram_RunDoesNotShortCircuitOnOneProbeError(t *testing.T) {
	lim := limits.Default()
	bad := &ast.Probe{
		Spec: probeSpec("app:mod.bad:entry"),
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.FunctionCall{Name: "nope"}}},
		},
	}
	good := &ast.Probe{
		Spec: probeSpec("app:mod.good:entry"),
		Actions: []ast.Action{
			&ast.CaptureAction{Positional: []ast.Expr{&ast.Literal{LitKind: ast.LiteralInt, Int: 1}}},
		},
	}
	prog := &Program{Probes: []*ast.Probe{bad, good}}
	results := prog.Run(&frame.Context{}, newView(), &lim, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "app:mod.bad:entry", results[0].ProbeSpec)
	assert.Equal(t, DroppedEmpty, results[0].Result.Reason)
	assert.True(t, results[1].Result.Emitted())
}
