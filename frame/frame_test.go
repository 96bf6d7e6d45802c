package frame_test

import (
	"net"
	"testing"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/frame"
)

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fc := frame.New(client)
	fs := frame.New(server)

	done := make(chan error, 1)
	go func() {
		done <- fs.SendFrame([]byte("hello"), frame.TagMeta(0xAB), time.Now().Add(time.Second))
	}()

	payload, meta, err := fc.RecvFrame(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want %q", payload, "hello")
	}
	if meta.Tag() != 0xAB {
		t.Fatalf("tag = %#x, want %#x", meta.Tag(), 0xAB)
	}
}

func TestRecvFrameTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fc := frame.New(client)
	_, _, err := fc.RecvFrame(time.Now().Add(10 * time.Millisecond))
	if !cos.IsTimeout(err) {
		t.Fatalf("err = %v, want a timeout error", err)
	}
}

func TestRecvFrameOversizedRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		// write a header claiming a payload far larger than the cap,
		// without ever writing that much data.
		hdr := make([]byte, frame.HeaderLen)
		hdr[7] = 0x40 // high byte of an 8-byte little-endian length
		server.Write(hdr)
	}()

	fc := frame.New(client)
	_, _, err := fc.RecvFrame(time.Now().Add(time.Second))
	if _, ok := err.(*cos.ErrMalformed); !ok {
		t.Fatalf("err = %v, want *cos.ErrMalformed", err)
	}
}
