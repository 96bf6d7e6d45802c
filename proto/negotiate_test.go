package proto_test

import (
	"net"
	"testing"
	"time"

	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/proto"
)

func TestRoleRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		tag      byte
		dataType byte
	}{
		{"info", proto.TagInfo, 0},
		{"source", proto.TagSource, 0},
		{"sink pickle", proto.TagSink, proto.DataPickle},
		{"sink delta", proto.TagSink, proto.DataDelta},
		{"sink default", proto.TagSink, proto.DataDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			fc, fs := frame.New(client), frame.New(server)
			go proto.SendRole(fc, tc.tag, tc.dataType, time.Now().Add(time.Second))

			tag, dataType, err := proto.RecvRole(fs, time.Now().Add(time.Second))
			if err != nil {
				t.Fatalf("RecvRole: %v", err)
			}
			if tag != tc.tag {
				t.Fatalf("tag = %#x, want %#x", tag, tc.tag)
			}
			if tc.tag == proto.TagSink && dataType != tc.dataType {
				t.Fatalf("dataType = %#x, want %#x", dataType, tc.dataType)
			}
		})
	}
}

func TestRecvRoleRejectsInvalidSinkDataType(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fc, fs := frame.New(client), frame.New(server)
	go fc.SendFrame([]byte{0x00}, frame.TagMeta(proto.TagSink), time.Now().Add(time.Second))

	_, _, err := proto.RecvRole(fs, time.Now().Add(time.Second))
	if err == nil {
		t.Fatal("expected an error for an invalid sink data-type byte")
	}
}

func TestNameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fc, fs := frame.New(client), frame.New(server)
	go proto.SendName(fc, "my_dataset", time.Now().Add(time.Second))

	name, err := proto.RecvName(fs, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("RecvName: %v", err)
	}
	if name != "my_dataset" {
		t.Fatalf("name = %q, want %q", name, "my_dataset")
	}
}
