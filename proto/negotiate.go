package proto

import (
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/frame"
)

// SendRole writes the first handshake frame: metadata byte 0 is the
// role tag. For TagSink, sinkDataType is carried in the frame's
// payload (the one byte of freedom left once metadata byte 0 is spent
// on the role tag — see SPEC_FULL.md "Sink data-type byte placement").
// Info and Source sends carry no payload.
func SendRole(c *frame.Conn, tag byte, sinkDataType byte, deadline time.Time) error {
	var payload []byte
	if tag == TagSink {
		payload = []byte{sinkDataType}
	}
	return c.SendFrame(payload, frame.TagMeta(tag), deadline)
}

// RecvRole reads the first handshake frame and returns the role tag
// and, for a sink, its declared data-type preference.
func RecvRole(c *frame.Conn, deadline time.Time) (tag byte, sinkDataType byte, err error) {
	payload, meta, err := c.RecvFrame(deadline)
	if err != nil {
		return 0, 0, err
	}
	tag = meta.Tag()
	switch tag {
	case TagInfo, TagSource:
		return tag, 0, nil
	case TagSink:
		if len(payload) != 1 || !ValidSinkDataType(payload[0]) {
			return 0, 0, &cos.ErrMalformed{Detail: "sink declared an invalid data-type byte"}
		}
		return tag, payload[0], nil
	default:
		return 0, 0, &cos.ErrMalformed{Detail: "unrecognized negotiation tag"}
	}
}

// SendName writes the second handshake frame: the UTF-8 dataset name.
func SendName(c *frame.Conn, name string, deadline time.Time) error {
	return c.SendFrame([]byte(name), frame.Meta{}, deadline)
}

// RecvName reads the second handshake frame and returns the dataset
// name it carries.
func RecvName(c *frame.Conn, deadline time.Time) (string, error) {
	payload, _, err := c.RecvFrame(deadline)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
