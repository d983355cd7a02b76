// Package herrors defines HogTrace's error taxonomy.
//
// Two shapes exist: a positioned *SyntaxError* produced only by the parser,
// and a small set of sentinel runtime kinds that the VM absorbs into a
// DROPPED_* outcome rather than letting escape to the host. Runtime kinds
// are comparable with errors.Is; wrap them with fmt.Errorf("...: %w", ...)
// to add context without losing the kind.
package herrors

import (
	"errors"
	"fmt"
)

// Kind is one of the runtime error kinds from spec §7. SyntaxError and
// VersionError are represented by their own concrete types instead, since
// both carry structured position/version data a sentinel can't hold.
type Kind error

var (
	// ErrUnknownFunction is returned when a call targets a name outside
	// the fixed builtin table.
	ErrUnknownFunction Kind = errors.New("unknown function")

	// ErrUnsafeAttribute is returned when an attribute access is blocked
	// by the private/dunder policy.
	ErrUnsafeAttribute Kind = errors.New("unsafe attribute access")

	// ErrRecursion is returned when expression evaluation exceeds the
	// configured recursion depth.
	ErrRecursion Kind = errors.New("recursion depth exceeded")

	// ErrTimeout is returned when predicate or action evaluation exceeds
	// its work-quantum budget.
	ErrTimeout Kind = errors.New("evaluation timed out")

	// ErrCaptureSize is returned when a capture accumulator's estimated
	// serialized size exceeds the configured budget.
	ErrCaptureSize Kind = errors.New("capture size exceeded")

	// ErrRateLimit is returned when a probe's token bucket is exhausted.
	ErrRateLimit Kind = errors.New("rate limit exceeded")

	// ErrEval is the catch-all for runtime evaluation failures: type
	// errors, operators applied to incompatible operands, builtins that
	// panicked, and similar.
	ErrEval Kind = errors.New("evaluation error")
)

// VersionError is returned by ir.Deserialize when the document's version
// tag does not match the version this build understands.
type VersionError struct {
	Got  string
	Want string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported IR version %q (expected %q)", e.Got, e.Want)
}

// Position is a 1-based line:column location in probe source text.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SyntaxError reports a single parse failure at a source position. The
// parser collects these into a slice rather than stopping at the first
// one, so a caller sees every problem in a script in one pass.
//
// Ground: cmd/racedetector/instrument/errors.go's InstrumentationError,
// generalized from a Go AST position to a hand-tracked lexer position.
type SyntaxError struct {
	Pos     Position
	Message string
	Symbol  string
}

func (e *SyntaxError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s (near %q)", e.Pos, e.Message, e.Symbol)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// NewSyntaxError builds a SyntaxError at the given position.
func NewSyntaxError(pos Position, symbol, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Pos:     pos,
		Symbol:  symbol,
		Message: fmt.Sprintf(format, args...),
	}
}
