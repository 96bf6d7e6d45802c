// Package frame implements the Data Server's wire framing (spec §4.1):
//
//	| msg_len : 8 bytes little-endian | metadata : 8 bytes | payload : msg_len bytes |
//
// Every send/recv is bound by a caller-supplied deadline. The codec is
// intentionally hand-rolled over net.Conn and encoding/binary, mirroring
// the teacher's own PDU header codec (transport/pdu.go) rather than
// reaching for a generic framing library — this is a fixed 16-byte
// header with one length field, not a case a framing package earns its
// keep for.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
)

const (
	// HeaderLen is the size, in bytes, of the fixed frame header.
	HeaderLen = 16
	lenFieldLen = 8
	metaFieldLen = 8
)

// Meta is the 8-byte metadata field. Only the first byte carries
// meaning in the protocol defined by spec §4.2/§6; the remaining seven
// are zero padding.
type Meta [metaFieldLen]byte

// Tag returns the first (and only meaningful) byte of the metadata.
func (m Meta) Tag() byte { return m[0] }

// TagMeta builds a Meta with the given tag byte and zero padding.
func TagMeta(tag byte) Meta {
	var m Meta
	m[0] = tag
	return m
}

// Keepalive is an empty frame: msg_len = 0, metadata all zero.
var Keepalive = Meta{}

// Conn wraps a net.Conn with the frame codec. Concurrent sends on the
// same Conn are not permitted (spec §4.1) — callers serialize their own
// writes, typically by owning the Conn from a single goroutine.
type Conn struct {
	net.Conn
}

func New(c net.Conn) *Conn { return &Conn{Conn: c} }

// RecvFrame reads exactly one frame, failing with *cos.ErrPeerClosed,
// *cos.ErrTimeout, or *cos.ErrMalformed. A partial read of either the
// header or the payload is fatal (spec §4.1: "a partial read is
// fatal").
func (c *Conn) RecvFrame(deadline time.Time) ([]byte, Meta, error) {
	var hdr [HeaderLen]byte
	if err := c.SetReadDeadline(deadline); err != nil {
		return nil, Meta{}, err
	}
	if err := readFull(c.Conn, hdr[:]); err != nil {
		return nil, Meta{}, err
	}

	msgLen := binary.LittleEndian.Uint64(hdr[:lenFieldLen])
	var meta Meta
	copy(meta[:], hdr[lenFieldLen:HeaderLen])

	if msgLen == 0 {
		return nil, meta, nil
	}
	// A dataset name or a pickled object can legitimately be large, but
	// an unbounded allocation driven directly off an attacker-controlled
	// length is not; this is a deliberately generous ceiling, not a
	// protocol limit.
	const maxFrame = 1 << 30 // 1 GiB
	if msgLen > maxFrame {
		return nil, Meta{}, &cos.ErrMalformed{Detail: "frame length exceeds maximum"}
	}

	payload := make([]byte, msgLen)
	if err := readFull(c.Conn, payload); err != nil {
		return nil, Meta{}, err
	}
	return payload, meta, nil
}

// SendFrame writes one frame. From the caller's viewpoint the write is
// atomic: either the full header+payload goes out before deadline, or
// an error is returned and the connection should be torn down (partial
// writes leave the peer's framing desynchronized).
func (c *Conn) SendFrame(payload []byte, meta Meta, deadline time.Time) error {
	if err := c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	var hdr [HeaderLen]byte
	binary.LittleEndian.PutUint64(hdr[:lenFieldLen], uint64(len(payload)))
	copy(hdr[lenFieldLen:HeaderLen], meta[:])

	if _, err := c.Conn.Write(hdr[:]); err != nil {
		return classifyWriteErr(err)
	}
	if len(payload) > 0 {
		if _, err := c.Conn.Write(payload); err != nil {
			return classifyWriteErr(err)
		}
	}
	return nil
}

// SendKeepalive sends an empty frame tagged with the given metadata
// (conventionally the pickle tag — spec §4.6).
func (c *Conn) SendKeepalive(meta Meta, deadline time.Time) error {
	return c.SendFrame(nil, meta, deadline)
}

// Close closes the write half first so the peer observes an orderly
// EOF, then closes the underlying connection. It is idempotent: a
// second Close on an already-closed net.Conn returns nil here.
func (c *Conn) Close() error {
	if tc, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	}
	err := c.Conn.Close()
	if err != nil && isAlreadyClosed(err) {
		return nil
	}
	return err
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &cos.ErrPeerClosed{}
	case isTimeout(err):
		return &cos.ErrTimeout{Op: "recv"}
	default:
		return &cos.ErrMalformed{Detail: err.Error()}
	}
}

func classifyWriteErr(err error) error {
	switch {
	case isTimeout(err):
		return &cos.ErrTimeout{Op: "send"}
	case errors.Is(err, io.EOF):
		return &cos.ErrPeerClosed{}
	default:
		return err
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isAlreadyClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
