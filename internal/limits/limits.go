// Package limits defines the resource budgets that bound a single probe
// invocation. The shape follows detector.DetectorOptions's plain,
// validated options struct; the field set itself is ported from
// original_source/hogtrace/limits.py.
package limits

import "fmt"

// Limits configures evaluator and VM resource bounds for one probe
// invocation. Values are immutable once a VM is constructed from them.
type Limits struct {
	// MaxRecursionDepth bounds expression-tree descent depth (spec §4.3).
	MaxRecursionDepth int

	// MaxWorkUnits bounds the number of AST-node visits performed while
	// evaluating a predicate or an action's expressions, used as the
	// work-quantum timeout mechanism described in spec §9 instead of a
	// wall-clock timer.
	MaxWorkUnits int

	// MaxCaptureSizeBytes bounds the estimated serialized size of a
	// single probe's capture accumulator (spec §4.5).
	MaxCaptureSizeBytes int

	// MaxCaptureDepth bounds nested-structure traversal depth when
	// truncating a captured value (spec §4.5).
	MaxCaptureDepth int

	// MaxCaptureItems bounds how many elements of a sequence/mapping are
	// retained during truncation (spec §4.5).
	MaxCaptureItems int

	// MaxCaptureStringLen bounds the length of a single captured string
	// before it is truncated with an ellipsis sentinel.
	MaxCaptureStringLen int

	// MaxProbeFiresPerSecond holds a per-probe-spec firing rate (spec
	// §4.4 step 1); Validate rejects negative values. Neither the VM nor
	// the hogtrace facade reads it: a Program is rate limited only when
	// built with hogtrace.WithRateLimit.
	MaxProbeFiresPerSecond int

	// AllowPrivateAttrs permits reading attributes whose name starts
	// with a single underscore (spec §4.3, §4.7).
	AllowPrivateAttrs bool

	// AllowDunderAttrs permits reading dunder-shaped attribute names
	// (spec §4.3, §4.7).
	AllowDunderAttrs bool
}

// Default returns the production-safe limit set (ground:
// original_source/hogtrace/limits.py's DEFAULT_LIMITS).
func Default() Limits {
	return Limits{
		MaxRecursionDepth:      100,
		MaxWorkUnits:           20000,
		MaxCaptureSizeBytes:    10_000,
		MaxCaptureDepth:        10,
		MaxCaptureItems:        100,
		MaxCaptureStringLen:    1000,
		MaxProbeFiresPerSecond: 1000,
		AllowPrivateAttrs:      false,
		AllowDunderAttrs:       false,
	}
}

// Strict returns a tighter limit set suitable for high-traffic
// production environments (ground: STRICT_LIMITS).
func Strict() Limits {
	l := Default()
	l.MaxRecursionDepth = 50
	l.MaxWorkUnits = 5000
	l.MaxCaptureSizeBytes = 5_000
	l.MaxCaptureDepth = 5
	l.MaxCaptureItems = 50
	l.MaxProbeFiresPerSecond = 500
	return l
}

// Relaxed returns a permissive limit set suitable for development and
// testing (ground: RELAXED_LIMITS).
func Relaxed() Limits {
	l := Default()
	l.MaxRecursionDepth = 200
	l.MaxWorkUnits = 200000
	l.MaxCaptureSizeBytes = 50_000
	l.MaxCaptureDepth = 20
	l.MaxCaptureItems = 500
	l.MaxProbeFiresPerSecond = 0
	return l
}

// Validate checks that the limit set is internally consistent, mirroring
// HogTraceLimits.__post_init__'s sanity checks.
func (l Limits) Validate() error {
	switch {
	case l.MaxRecursionDepth < 1:
		return fmt.Errorf("limits: MaxRecursionDepth must be at least 1")
	case l.MaxCaptureSizeBytes < 100:
		return fmt.Errorf("limits: MaxCaptureSizeBytes must be at least 100")
	case l.MaxCaptureDepth < 1:
		return fmt.Errorf("limits: MaxCaptureDepth must be at least 1")
	case l.MaxCaptureItems < 1:
		return fmt.Errorf("limits: MaxCaptureItems must be at least 1")
	case l.MaxProbeFiresPerSecond < 0:
		return fmt.Errorf("limits: MaxProbeFiresPerSecond must not be negative")
	}
	return nil
}

// Option mutates a Limits value; Apply applies a list of them to
// Default().
type Option func(*Limits)

// WithRecursionDepth overrides MaxRecursionDepth.
func WithRecursionDepth(n int) Option { return func(l *Limits) { l.MaxRecursionDepth = n } }

// WithCaptureDepth overrides MaxCaptureDepth.
func WithCaptureDepth(n int) Option { return func(l *Limits) { l.MaxCaptureDepth = n } }

// WithCaptureItems overrides MaxCaptureItems.
func WithCaptureItems(n int) Option { return func(l *Limits) { l.MaxCaptureItems = n } }

// WithCaptureSizeBytes overrides MaxCaptureSizeBytes.
func WithCaptureSizeBytes(n int) Option { return func(l *Limits) { l.MaxCaptureSizeBytes = n } }

// WithAllowPrivateAttrs overrides AllowPrivateAttrs.
func WithAllowPrivateAttrs(v bool) Option { return func(l *Limits) { l.AllowPrivateAttrs = v } }

// WithAllowDunderAttrs overrides AllowDunderAttrs.
func WithAllowDunderAttrs(v bool) Option { return func(l *Limits) { l.AllowDunderAttrs = v } }

// WithRateLimit overrides MaxProbeFiresPerSecond.
func WithRateLimit(n int) Option { return func(l *Limits) { l.MaxProbeFiresPerSecond = n } }

// Apply returns Default() with the given options applied.
func Apply(opts ...Option) Limits {
	l := Default()
	for _, opt := range opts {
		opt(&l)
	}
	return l
}
