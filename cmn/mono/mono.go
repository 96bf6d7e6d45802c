// Package mono provides a monotonic clock helper used for idle-time
// bookkeeping (how long a sink pipe sat idle before a keepalive)
// without taking a dependency on wall-clock time, which can jump
// backwards under NTP adjustment.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since the package was loaded,
// derived from the monotonic reading time.Now() carries internally.
// It is only ever compared against itself, never serialized.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since is a convenience wrapper for elapsed-time checks against a
// NanoTime() snapshot.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
