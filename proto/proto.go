// Package proto defines the Data Server's negotiation protocol (spec
// §4.2): the tag bytes placed in the first frame's metadata, and the
// timeouts that bound the handshake.
package proto

import "time"

// Negotiation tags: the first byte of the first frame's metadata,
// values fixed by spec §4.2 / the original dataserv.py constants.
const (
	TagInfo   byte = 0xDE
	TagSource byte = 0xBE
	TagSink   byte = 0xEF
)

// Data-type tags a sink declares (in its first frame's payload,
// alongside the TagSink role byte in that same frame's metadata — see
// negotiate.go) and the server uses on outbound sink frames.
//
// The source repo defines DEFAULT and PICKLE with the identical byte
// 0xCD, making the two indistinguishable on the wire (spec §9, open
// question). This implementation takes the recommended fork: distinct
// bytes for PICKLE and DEFAULT. DataDefault is only ever sent by a sink
// during negotiation to mean "let the server decide"; the server's own
// outbound frames use only DataPickle or DataDelta, never DataDefault.
const (
	DataPickle  byte = 0xCC
	DataDefault byte = 0xCD
	DataDelta   byte = 0xAB
)

// ValidSinkDataType reports whether b is one of the three values a sink
// may legally declare during negotiation.
func ValidSinkDataType(b byte) bool {
	return b == DataPickle || b == DataDefault || b == DataDelta
}

const (
	// KeepaliveTimeout is the maximum interval between frames any
	// sender must respect.
	KeepaliveTimeout = 3 * time.Second
	// OpsTimeout bounds a single send operation.
	OpsTimeout = 10 * time.Second
	// Timeout is how long a receiver waits before considering the peer
	// dead.
	Timeout = KeepaliveTimeout + OpsTimeout + time.Second
	// NegotiationTimeout bounds each send/recv of the handshake.
	NegotiationTimeout = Timeout
	// FastTimeout paces client reconnect attempts.
	FastTimeout = time.Second
	// QueueSize is the bounded squash queue capacity (Q).
	QueueSize = 5
	// DiffDeadline is the time budget handed to the diff worker for a
	// single sink's delta computation.
	DiffDeadline = (OpsTimeout * 3) / 4
	// SendDeadline bounds a sink pipe's per-frame send.
	SendDeadline = OpsTimeout / 4
)
