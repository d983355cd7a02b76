// Package store implements the RequestStore: mutable, request-scoped
// state reachable from a probe (spec §3 "RequestStore", §4.6).
//
// Ground: original_source/hogtrace/request_store.py's two-layer design
// (a context-propagated layer plus a thread-local fallback layer) and
// internal/race/goroutine/context.go's shape of per-goroutine-keyed
// state (here keyed by goroutine id via internal/goroutineid instead of
// a vector clock). Scoped acquisition mirrors
// cmd/racedetector/build.go's workspace/defer-cleanup idiom: Begin
// returns a token whose End is deferred by the caller, guaranteeing
// cleanup runs even if the probed call panics.
package store

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/PostHog/hogtrace/internal/goroutineid"
)

type ctxKeyType struct{}

var ctxKey = ctxKeyType{}

// Store is the top-level handle a host constructs once and shares
// across goroutines. It has no exported mutable fields; all state lives
// behind the context layer or the goroutine-local fallback layer.
type Store struct {
	fallback sync.Map // goroutine id (int64) -> *View
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// View is one logical request's map (spec §3 "RequestStore"). A View is
// never shared between concurrent logical requests (spec §4.6
// "isolated between concurrent logical requests").
type View struct {
	id   string
	mu   sync.Mutex
	data map[string]any
}

// ID is the ULID minted for this logical request, used for log
// correlation.
func (v *View) ID() string { return v.id }

// Get implements RequestStore.get: a miss returns (nil, false); the
// evaluator maps that to null (spec §3 invariant 4).
func (v *View) Get(name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.data[name]
	return val, ok
}

// Set implements RequestStore.set. Values are stored by reference, not
// deep-copied (spec §4.6).
func (v *View) Set(name string, value any) {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.data == nil {
		v.data = make(map[string]any)
	}
	v.data[name] = value
}

// Has implements RequestStore.has.
func (v *View) Has(name string) bool {
	_, ok := v.Get(name)
	return ok
}

// Clear implements RequestStore.clear.
func (v *View) Clear() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data = nil
}

// Snapshot implements RequestStore.snapshot: a shallow copy of the
// current map, safe for a caller to range over without holding the
// store's lock.
func (v *View) Snapshot() map[string]any {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]any, len(v.data))
	for k, val := range v.data {
		out[k] = val
	}
	return out
}

// Begin establishes a fresh, empty View for a new logical request and
// binds it into ctx (the "context layer", spec §4.6 item 1). The
// returned context must be threaded through to every probe invocation
// that is part of this logical request; call End when the request
// completes.
func (s *Store) Begin(ctx context.Context) (context.Context, *View) {
	v := &View{id: ulid.Make().String()}
	return context.WithValue(ctx, ctxKey, v), v
}

// End releases a View acquired from Begin. Safe to call multiple times.
func (s *Store) End(v *View) {
	if v == nil {
		return
	}
	v.Clear()
}

// FromContext resolves the ambient View bound by Begin, falling back to
// the calling goroutine's thread-local View when ctx carries none (spec
// §4.6 item 2). Returns nil if neither layer has an active request.
func (s *Store) FromContext(ctx context.Context) *View {
	if v, ok := ctx.Value(ctxKey).(*View); ok {
		return v
	}
	return s.fallbackView(false)
}

// BeginFallback establishes a View in the goroutine-local fallback
// layer for callers that do not manage a context-propagated logical
// request. Pair with EndFallback.
func (s *Store) BeginFallback() *View {
	return s.fallbackView(true)
}

// EndFallback releases the calling goroutine's fallback View.
func (s *Store) EndFallback() {
	key := goroutineKey()
	if v, ok := s.fallback.LoadAndDelete(key); ok {
		v.(*View).Clear()
	}
}

func goroutineKey() int64 {
	return goroutineid.Current()
}

func (s *Store) fallbackView(create bool) *View {
	key := goroutineKey()
	if v, ok := s.fallback.Load(key); ok {
		return v.(*View)
	}
	if !create {
		return nil
	}
	v := &View{id: ulid.Make().String()}
	actual, _ := s.fallback.LoadOrStore(key, v)
	return actual.(*View)
}

// WithRequest runs fn with a freshly bound logical request and
// guarantees the View is cleared on every exit path, including a panic
// inside fn (spec §4.6 item 3, "clears it on every exit path"). Nested
// calls create nested, independent Views since each call binds its own
// context value.
func (s *Store) WithRequest(ctx context.Context, fn func(ctx context.Context, v *View)) {
	reqCtx, v := s.Begin(ctx)
	defer s.End(v)
	fn(reqCtx, v)
}
