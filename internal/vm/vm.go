// Package vm implements the Probe VM driver: the single-entry-point
// state machine that turns a compiled Probe, a bound FrameContext, and
// a RequestStore into either a capture record or nothing (spec §4.4).
//
// Ground: internal/race/detector.Detector's single-entry-point,
// internally-branching shape (OnWrite/OnRead dispatch through a fixed
// sequence of checks before updating state) and
// internal/race/detector/sampler.go's atomic-counter idiom, here
// applied to a uniform-draw sample action rather than a modulo counter.
package vm

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/PostHog/hogtrace/internal/capture"
	"github.com/PostHog/hogtrace/internal/eval"
	"github.com/PostHog/hogtrace/internal/frame"
	"github.com/PostHog/hogtrace/internal/herrors"
	"github.com/PostHog/hogtrace/internal/hlog"
	"github.com/PostHog/hogtrace/internal/lang/ast"
	"github.com/PostHog/hogtrace/internal/limits"
	"github.com/PostHog/hogtrace/internal/ratelimit"
	"github.com/PostHog/hogtrace/internal/store"
)

// DropReason names a terminal state of the state machine in spec §4.4
// other than EMITTED.
type DropReason int

const (
	// NotDropped means a record was emitted.
	NotDropped DropReason = iota
	DroppedRate
	DroppedPredicate
	DroppedSample
	DroppedEmpty
	DroppedError
)

// Result is the outcome of one probe invocation.
type Result struct {
	Record *capture.Record
	Reason DropReason
}

// Emitted reports whether Result carries a record.
func (r Result) Emitted() bool { return r.Reason == NotDropped && r.Record != nil }

// Run executes a single probe against one bound frame/store (spec
// §4.4). rl may be nil to disable rate limiting entirely.
func Run(probe *ast.Probe, fr *frame.Context, st *store.View, lim *limits.Limits, rl *ratelimit.Registry) Result {
	probeSpec := probe.Spec.FullSpec

	// Step 1: rate limit.
	if rl != nil && !rl.Allow(probeSpec) {
		hlog.DroppedRate(probeSpec)
		return Result{Reason: DroppedRate}
	}

	// Step 2: predicate.
	if probe.Predicate != nil {
		v, err := safeEval(probe.Predicate, fr, st, lim, probeSpec)
		if err != nil {
			if errors.Is(err, herrors.ErrTimeout) {
				hlog.DroppedTimeout(probeSpec)
			} else {
				hlog.DroppedPredicateError(probeSpec, err)
			}
			return Result{Reason: DroppedError}
		}
		if !truthy(v) {
			hlog.DroppedPredicateFalse(probeSpec)
			return Result{Reason: DroppedPredicate}
		}
	}

	// Step 3-4: run actions.
	rec := capture.NewRecord()
	fired := true

actionLoop:
	for i, action := range probe.Actions {
		switch a := action.(type) {
		case *ast.SampleAction:
			if rand.Float64() >= a.Threshold {
				fired = false
				hlog.DroppedSample(probeSpec)
				break actionLoop
			}

		case *ast.AssignmentAction:
			v, err := safeEval(a.Value, fr, st, lim, probeSpec)
			if err != nil {
				hlog.AssignmentSkipped(probeSpec, a.Var.Name, err)
				continue
			}
			st.Set(a.Var.Name, v)

		case *ast.CaptureAction:
			runCapture(a, i, fr, st, lim, rec, probeSpec)

		default:
			hlog.DroppedInternal(probeSpec, errUnknownAction(action))
			return Result{Reason: DroppedError}
		}
	}

	// Step 5.
	if !fired {
		return Result{Reason: DroppedSample}
	}

	// Capture-size budget (spec §4.5 "total size").
	if lim.MaxCaptureSizeBytes > 0 {
		if size := rec.EstimatedSize(); size > lim.MaxCaptureSizeBytes {
			hlog.DroppedCaptureSize(probeSpec, size, lim.MaxCaptureSizeBytes)
			return Result{Reason: DroppedError}
		}
	}

	// Step 6.
	if rec.Empty() {
		hlog.DroppedEmpty(probeSpec)
		return Result{Reason: DroppedEmpty}
	}
	return Result{Record: rec, Reason: NotDropped}
}

func runCapture(a *ast.CaptureAction, actionIndex int, fr *frame.Context, st *store.View, lim *limits.Limits, rec *capture.Record, probeSpec string) {
	for i, posArg := range a.Positional {
		v, err := safeEval(posArg, fr, st, lim, probeSpec)
		key := captureKey(posArg, i)
		if err != nil {
			hlog.CaptureFieldSkipped(probeSpec, key, err)
			continue
		}
		rec.Set(key, v, lim)
	}
	for _, named := range a.Named {
		v, err := safeEval(named.Value, fr, st, lim, probeSpec)
		if err != nil {
			hlog.CaptureFieldSkipped(probeSpec, named.Name, err)
			continue
		}
		rec.Set(named.Name, v, lim)
	}
	_ = actionIndex
}

// safeEval runs eval.Eval behind a recover(), satisfying the Safety
// property that probe execution never raises into the host even if a
// builtin or a host-supplied reflection path panics unexpectedly.
func safeEval(expr ast.Expr, fr *frame.Context, st *store.View, lim *limits.Limits, probeSpec string) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			hlog.DroppedInternal(probeSpec, fmt.Errorf("%w: recovered panic: %v", herrors.ErrEval, r))
			v, err = nil, fmt.Errorf("%w: recovered panic: %v", herrors.ErrEval, r)
		}
	}()
	return eval.Eval(expr, fr, st, lim)
}

// captureKey picks the record key for one positional capture argument
// (spec §4.4 step 4): the reserved-identifier name when the argument is
// exactly one of those identifiers, else the synthetic "arg<i>" key.
func captureKey(expr ast.Expr, index int) string {
	if id, ok := expr.(*ast.Identifier); ok && isReservedFrameName(id.Name) {
		return id.Name
	}
	return syntheticArgKey(index)
}

var reservedFrameNames = map[string]bool{
	"args": true, "kwargs": true, "locals": true, "globals": true,
	"retval": true, "exception": true, "self": true,
}

func isReservedFrameName(name string) bool { return reservedFrameNames[name] }

func syntheticArgKey(i int) string {
	return "arg" + strconv.Itoa(i)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func errUnknownAction(a ast.Action) error {
	return &unknownActionError{kind: a.Kind()}
}

type unknownActionError struct{ kind ast.ActionKind }

func (e *unknownActionError) Error() string {
	return "vm: unhandled action kind"
}

// Program runs every probe in prog against the same frame/store in
// declaration order and never short-circuits on one probe's failure
// (spec §4.4 "A Program-level driver... MUST NOT short-circuit on
// errors").
type Program struct {
	Probes []*ast.Probe
}

// ProbeResult pairs a probe's spec with its Run outcome, for a
// Program-level driver's sequence of results.
type ProbeResult struct {
	ProbeSpec string
	Result    Result
}

// Run executes every probe in p against fr/st in order.
func (p *Program) Run(fr *frame.Context, st *store.View, lim *limits.Limits, rl *ratelimit.Registry) []ProbeResult {
	out := make([]ProbeResult, 0, len(p.Probes))
	for _, probe := range p.Probes {
		out = append(out, ProbeResult{ProbeSpec: probe.Spec.FullSpec, Result: Run(probe, fr, st, lim, rl)})
	}
	return out
}
