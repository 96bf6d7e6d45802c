package server_test

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/nspyre-org/nspyre-sub001/client"
	"github.com/nspyre-org/nspyre-sub001/config"
	"github.com/nspyre-org/nspyre-sub001/dataset"
	"github.com/nspyre-org/nspyre-sub001/diffcodec"
	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/metrics"
	"github.com/nspyre-org/nspyre-sub001/proto"
	"github.com/nspyre-org/nspyre-sub001/server"
)

// startServer boots a real Data Server on an ephemeral loopback port
// and returns its address plus a teardown func, driving the same
// server.New/Run/Stop lifecycle cmd/datasrv uses.
func startServer(t *testing.T) (host string, port int, stop func()) {
	t.Helper()
	// Bind once ourselves to discover a free port, then hand that exact
	// port to the server after releasing it; acceptable raciness for a
	// test harness, not for production code.
	probe, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	port = probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	cfg := &config.Config{Port: port, BindHost: "127.0.0.1", Verbosity: "error"}
	reg := dataset.NewRegistry()
	pool := diffcodec.NewPool(4)
	m := metrics.New(reg)
	srv := server.New(cfg, reg, pool, m)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := net.Dial("tcp4", fmt.Sprintf("127.0.0.1:%d", port)); err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return "127.0.0.1", port, func() {
		srv.Stop()
		<-errCh
	}
}

// TestSourceToSinkEndToEnd drives a source and a sink through a live
// server and checks that an update pushed by the source arrives at the
// sink (spec §8 end-to-end scenario 1).
func TestSourceToSinkEndToEnd(t *testing.T) {
	host, port, stop := startServer(t)
	defer stop()

	src := client.NewDataSource("exp1", host, port)
	defer src.Close()
	sink := client.NewDataSink("exp1", host, port, proto.DataPickle)
	defer sink.Close()

	if err := src.Add("x", 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := src.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	data, err := sink.Pop(3 * time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if v, ok := data["x"]; !ok || v != float64(1) {
		t.Fatalf("data[%q] = %v, want 1", "x", v)
	}
}

// TestDuplicateSourceRejected checks spec I1: a second source attaching
// to the same dataset while one is already connected is rejected
// (its connection is closed by the server), while the first source
// keeps running undisturbed.
func TestDuplicateSourceRejected(t *testing.T) {
	host, port, stop := startServer(t)
	defer stop()

	src1 := client.NewDataSource("exp2", host, port)
	defer src1.Close()
	if err := src1.LastErr(); err != nil {
		t.Fatalf("src1 failed to start: %v", err)
	}

	conn, err := net.Dial("tcp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	fc := frame.New(conn)
	if err := proto.SendRole(fc, proto.TagSource, 0, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SendRole: %v", err)
	}
	if err := proto.SendName(fc, "exp2", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SendName: %v", err)
	}
	// The server closes the connection instead of replying; any
	// subsequent read should observe the close rather than block.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the duplicate source connection to be closed")
	}

	if err := src1.Add("a", 1); err != nil {
		t.Fatalf("src1 Add after rejection: %v", err)
	}
	if err := src1.Update(); err != nil {
		t.Fatalf("src1 Update after rejection: %v", err)
	}
}

// TestMultipleSinksFanOut checks that a single source's update reaches
// every connected sink on the same dataset (spec §8 scenario: fan-out).
func TestMultipleSinksFanOut(t *testing.T) {
	host, port, stop := startServer(t)
	defer stop()

	src := client.NewDataSource("exp3", host, port)
	defer src.Close()
	sinkA := client.NewDataSink("exp3", host, port, proto.DataPickle)
	defer sinkA.Close()
	sinkB := client.NewDataSink("exp3", host, port, proto.DataPickle)
	defer sinkB.Close()

	if err := src.Add("y", "hello"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := src.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	for _, s := range []*client.DataSink{sinkA, sinkB} {
		data, err := s.Pop(3 * time.Second)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if data["y"] != "hello" {
			t.Fatalf("data[%q] = %v, want %q", "y", data["y"], "hello")
		}
	}
}
