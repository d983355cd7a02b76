// Package goroutineid extracts the current goroutine's numeric ID as a
// map key for the request store's thread-local fallback layer (spec
// §4.6 "fallback thread-local layer").
//
// Ground: internal/race/api/goid_generic.go + goid_fallback.go. This
// module takes only the portable runtime.Stack-parsing path; the
// teacher's assembly-optimized fast path (goid_fast.go, amd64/arm64,
// Go 1.23-1.25 only) depends on a verified unsafe struct layout of the
// Go runtime's internal g type, which is far too fragile a dependency
// to carry into a library meant to run inside arbitrary host
// processes/Go versions. The ~1500ns-per-call cost is paid on every
// fallback-layer access (BeginFallback, EndFallback, and each
// store.FromContext lookup whose context carries no request View); the
// context layer never calls Current.
package goroutineid

import "runtime"

// Current returns the calling goroutine's ID, parsed out of
// runtime.Stack's header line ("goroutine 123 [running]:..."). Returns
// 0 if the stack trace does not have the expected shape, which should
// not happen on any Go runtime version.
func Current() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
