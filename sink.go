package hogtrace

import "github.com/PostHog/hogtrace/internal/capture"

// Sink receives every record a Program emits. Emit is called
// synchronously from Program.Fire; a Sink that needs to do anything
// slow (network I/O, disk writes) should buffer internally and return
// quickly, the way a io.Writer wrapped around a bufio.Writer would.
type Sink interface {
	Emit(probeSpec string, record capture.Record)
}

// NopSink discards every record. It is the default Sink for a Program
// that never calls WithSink.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(string, capture.Record) {}

// ChannelSink forwards each emitted record onto a channel, for tests
// and for hosts that want to batch records on a separate goroutine. A
// full channel blocks Fire's caller; size the channel for the expected
// burst or drain it promptly.
type ChannelSink struct {
	ch chan Emission
}

// Emission is one record delivered to a ChannelSink.
type Emission struct {
	ProbeSpec string
	Record    capture.Record
}

// NewChannelSink returns a ChannelSink backed by a channel of the given
// buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Emission, buffer)}
}

// Emit implements Sink.
func (s *ChannelSink) Emit(probeSpec string, record capture.Record) {
	s.ch <- Emission{ProbeSpec: probeSpec, Record: record}
}

// C returns the channel Emissions are delivered on.
func (s *ChannelSink) C() <-chan Emission { return s.ch }

// Close releases the underlying channel. Calling Emit after Close
// panics, matching close-then-send on any Go channel.
func (s *ChannelSink) Close() { close(s.ch) }
