// Package hlog provides HogTrace's structured logging shim.
//
// The teacher repo logs with bare fmt.Fprintf to stderr; no example repo
// in the pack does that for a library meant to run inside someone else's
// process. GoogleCloudPlatform-prometheus-engine depends directly on
// go.uber.org/zap, so the VM's drop/absorb logging is built on it instead.
package hlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger = zap.NewNop()
)

// SetLogger replaces the package-level logger. Passing nil restores the
// no-op logger (the default, so importing hogtrace as a library never
// prints anything until the host opts in).
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		log = zap.NewNop()
		return
	}
	log = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// DroppedRate logs a DROPPED_RATE transition (spec §4.4 state machine).
func DroppedRate(probeSpec string) {
	current().Warn("probe dropped: rate limited", zap.String("probe_spec", probeSpec), zap.String("reason", "rate_limit"))
}

// DroppedPredicateFalse logs a DROPPED_PREDICATE transition where the
// predicate evaluated cleanly to a falsey value.
func DroppedPredicateFalse(probeSpec string) {
	current().Debug("probe dropped: predicate false", zap.String("probe_spec", probeSpec), zap.String("reason", "predicate_false"))
}

// DroppedPredicateError logs a DROPPED_ERROR transition caused by an
// evaluation error while evaluating the predicate (a timeout logs via
// DroppedTimeout instead).
func DroppedPredicateError(probeSpec string, err error) {
	current().Debug("probe dropped: predicate error", zap.String("probe_spec", probeSpec), zap.String("reason", "predicate_error"), zap.Error(err))
}

// DroppedSample logs a DROPPED_SAMPLE transition.
func DroppedSample(probeSpec string) {
	current().Debug("probe dropped: sample miss", zap.String("probe_spec", probeSpec), zap.String("reason", "sample"))
}

// DroppedEmpty logs a DROPPED_EMPTY transition (all actions ran, nothing
// was captured).
func DroppedEmpty(probeSpec string) {
	current().Debug("probe dropped: empty capture", zap.String("probe_spec", probeSpec), zap.String("reason", "empty"))
}

// DroppedTimeout logs a DROPPED_ERROR transition caused by a work-quantum
// timeout while evaluating the predicate.
func DroppedTimeout(probeSpec string) {
	current().Warn("probe dropped: timeout", zap.String("probe_spec", probeSpec), zap.String("reason", "timeout"))
}

// DroppedCaptureSize logs a DROPPED_ERROR transition caused by an
// over-budget capture accumulator.
func DroppedCaptureSize(probeSpec string, sizeBytes, limitBytes int) {
	current().Warn("probe dropped: capture size exceeded",
		zap.String("probe_spec", probeSpec),
		zap.String("reason", "capture_size"),
		zap.Int("size_bytes", sizeBytes),
		zap.Int("limit_bytes", limitBytes),
	)
}

// DroppedInternal logs a DROPPED_ERROR transition caused by a bug inside
// the evaluator or a panicking builtin (ERROR level, since this indicates
// a defect rather than expected probe behavior).
func DroppedInternal(probeSpec string, err error) {
	current().Error("probe dropped: internal error", zap.String("probe_spec", probeSpec), zap.String("reason", "internal"), zap.Error(err))
}

// CaptureFieldSkipped logs a single field of a capture being silently
// dropped (evaluation error on one positional/named argument).
func CaptureFieldSkipped(probeSpec, field string, err error) {
	current().Debug("capture field skipped", zap.String("probe_spec", probeSpec), zap.String("field", field), zap.Error(err))
}

// AssignmentSkipped logs a request-store assignment that failed to
// evaluate and was silently dropped.
func AssignmentSkipped(probeSpec, name string, err error) {
	current().Debug("assignment skipped", zap.String("probe_spec", probeSpec), zap.String("var", name), zap.Error(err))
}
