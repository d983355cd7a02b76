package hogtrace_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PostHog/hogtrace"
)

func TestCompileAndFire_PredicateGatesCapture(t *testing.T) {
	src := `app:payments.charge:entry /arg0 > 100/ {
  capture(args);
}`
	sink := hogtrace.NewChannelSink(4)
	bound, err := hogtrace.Compile(src, hogtrace.WithSink(sink))
	require.NoError(t, err)

	ctx, done := bound.BeginRequest(context.Background())
	defer done()

	bound.Fire(ctx, &hogtrace.FrameContext{Args: []any{int64(5)}})
	select {
	case <-sink.C():
		t.Fatal("expected no emission when predicate is false")
	default:
	}

	bound.Fire(ctx, &hogtrace.FrameContext{Args: []any{int64(500)}})
	select {
	case e := <-sink.C():
		assert.Equal(t, "app:payments.charge:entry", e.ProbeSpec)
	default:
		t.Fatal("expected an emission")
	}
}

func TestCompileAndFire_EarlierAssignmentIsVisibleToLaterProbeInSameFire(t *testing.T) {
	// A Program-level driver runs every probe in declaration order
	// against one bound frame/store; an assignment from an earlier
	// probe is visible to a later probe's predicate within that same
	// driver pass.
	src := `app:mod.fn:entry {
  $req.seen = true;
}
app:mod.fn:entry /$req.seen/ {
  capture(retval);
}`
	sink := hogtrace.NewChannelSink(4)
	bound, err := hogtrace.Compile(src, hogtrace.WithSink(sink))
	require.NoError(t, err)

	ctx, done := bound.BeginRequest(context.Background())
	defer done()

	bound.Fire(ctx, &hogtrace.FrameContext{HasRetval: true, Retval: int64(9)})
	select {
	case e := <-sink.C():
		assert.Equal(t, int64(9), e.Record.Values["retval"])
	default:
		t.Fatal("expected second probe to capture after $req.seen was set by the first")
	}
}

func TestSerializeDeserialize_RoundTripIsByteStable(t *testing.T) {
	src := `app:mod.fn:entry /arg0 > 1/ {
  sample 50%;
  capture(arg0, label="x");
}`
	prog, err := hogtrace.Compile(src)
	require.NoError(t, err)

	first, err := prog.Serialize()
	require.NoError(t, err)

	reloaded, err := hogtrace.Deserialize(first)
	require.NoError(t, err)

	second, err := reloaded.Serialize()
	require.NoError(t, err)

	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Fatalf("round trip not byte-stable (-first +second):\n%s", diff)
	}
}
