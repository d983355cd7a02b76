// Package hogtrace is the public facade over HogTrace's probe language,
// intermediate representation, and VM: compile scripts with Compile,
// attach a Sink, and call Program.Fire once per traced call site.
//
// Ground: internal/race/api.go's thin top-level wrapper around a
// package-private detector (NewDetector/OnWrite/OnRead exposed as
// package functions over a process-wide default instance), generalized
// here into an explicit, host-constructed Program instead of an
// implicit global so a process can run more than one independent set
// of probes (e.g. one per tenant).
package hogtrace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/PostHog/hogtrace/internal/capture"
	"github.com/PostHog/hogtrace/internal/frame"
	"github.com/PostHog/hogtrace/internal/hlog"
	"github.com/PostHog/hogtrace/internal/ir"
	"github.com/PostHog/hogtrace/internal/lang/ast"
	"github.com/PostHog/hogtrace/internal/lang/parser"
	"github.com/PostHog/hogtrace/internal/limits"
	"github.com/PostHog/hogtrace/internal/ratelimit"
	"github.com/PostHog/hogtrace/internal/store"
	"github.com/PostHog/hogtrace/internal/vm"
)

// SetLogger installs the *zap.Logger the VM uses to report dropped and
// absorbed probe events (spec §4.4 state transitions). Passing nil
// restores the default no-op logger.
func SetLogger(l *zap.Logger) { hlog.SetLogger(l) }

// FrameContext is the host-supplied snapshot of one traced call,
// re-exported from internal/frame so callers never need to import an
// internal package.
type FrameContext = frame.Context

// Record is a fired probe's captured fields, re-exported from
// internal/capture.
type Record = capture.Record

// Limits configures evaluator and VM resource bounds, re-exported from
// internal/limits.
type Limits = limits.Limits

// DefaultLimits returns the production-safe limit set.
func DefaultLimits() Limits { return limits.Default() }

// StrictLimits returns a tighter limit set for high-traffic production
// environments.
func StrictLimits() Limits { return limits.Strict() }

// RelaxedLimits returns a permissive limit set for development.
func RelaxedLimits() Limits { return limits.Relaxed() }

// Compile parses source text and builds a ready-to-Fire Program. A
// non-nil error is the *herrors.SyntaxError itself when parsing found
// one problem; with several, it is a single error whose message lists
// each one (the individual errors are not wrapped). Compile never
// returns a partial Program alongside an error.
func Compile(source string, opts ...Option) (*Program, error) {
	astProg, errs := parser.Parse(source)
	if len(errs) > 0 {
		return nil, joinErrors(errs)
	}
	return newProgram(ir.FromAST(astProg), opts...), nil
}

// Deserialize loads a Program from the wire-format bytes produced by a
// prior Program.Serialize call.
func Deserialize(data []byte, opts ...Option) (*Program, error) {
	irProg, err := ir.Deserialize(data)
	if err != nil {
		return nil, err
	}
	return newProgram(irProg, opts...), nil
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d syntax errors: %v", len(errs), msgs)
}

// Program is a compiled, immutable set of probes bound to a Sink, a
// Limits budget, and an optional rate-limit Registry.
type Program struct {
	irProg *ir.Program
	probes []*ast.Probe

	sink  Sink
	lim   limits.Limits
	rates *ratelimit.Registry
	store *store.Store
}

// Option configures a Program at construction time.
type Option func(*Program)

// WithSink installs the Sink a Program emits fired records to. The
// default Sink is NopSink.
func WithSink(s Sink) Option { return func(p *Program) { p.sink = s } }

// WithLimits overrides the default resource-bound Limits.
func WithLimits(l Limits) Option { return func(p *Program) { p.lim = l } }

// WithRateLimit enables a per-probe-spec token bucket at perSec events
// per second. perSec <= 0 disables rate limiting (the default).
func WithRateLimit(perSec int) Option {
	return func(p *Program) { p.rates = ratelimit.NewRegistry(perSec) }
}

func newProgram(irProg *ir.Program, opts ...Option) *Program {
	out := &Program{
		irProg: irProg,
		probes: ir.ToAST(irProg).Probes,
		sink:   NopSink{},
		lim:    limits.Default(),
		store:  store.New(),
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Serialize renders the Program's IR as byte-stable, versioned JSON
// (spec §4.2a).
func (p *Program) Serialize() ([]byte, error) {
	return ir.Serialize(p.irProg)
}

// BeginRequest establishes a fresh logical-request scope bound into ctx
// (spec §4.6) and returns the context to thread through every Fire call
// belonging to this request, along with a cleanup func to defer.
func (p *Program) BeginRequest(ctx context.Context) (context.Context, func()) {
	reqCtx, v := p.store.Begin(ctx)
	return reqCtx, func() { p.store.End(v) }
}

// Fire runs every probe against fr, using the logical-request store
// bound to ctx by BeginRequest, and emits each fired record to the
// Program's Sink. A ctx without such a store is looked up in the
// goroutine-local fallback layer, which nothing in this package fills,
// so such a Fire has no request store: $req reads yield null and
// assignments are discarded. Fire runs every probe in declaration order and never
// short-circuits on one probe's error (spec §4.4).
func (p *Program) Fire(ctx context.Context, fr *frame.Context) {
	view := p.store.FromContext(ctx)
	prog := &vm.Program{Probes: p.probes}
	for _, res := range prog.Run(fr, view, &p.lim, p.rates) {
		if res.Result.Emitted() {
			p.sink.Emit(res.ProbeSpec, *res.Result.Record)
		}
	}
}
