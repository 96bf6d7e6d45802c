// Command datasrv runs the Data Server (spec §6): a standalone TCP
// process with no persisted state, configured entirely from its
// command line.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
	"github.com/nspyre-org/nspyre-sub001/config"
	"github.com/nspyre-org/nspyre-sub001/dataset"
	"github.com/nspyre-org/nspyre-sub001/diffcodec"
	"github.com/nspyre-org/nspyre-sub001/metrics"
	"github.com/nspyre-org/nspyre-sub001/server"
)

// maxConcurrentDiffs bounds the process-wide number of in-flight binary
// diffs (spec §4.7/§5); one per remote sink is already serialized by
// the Sink Pipe itself, this is the belt-and-suspenders cap.
const maxConcurrentDiffs = 64

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.ApplyLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer nlog.Close()

	reg := dataset.NewRegistry()
	pool := diffcodec.NewPool(maxConcurrentDiffs)
	m := metrics.New(reg)
	srv := server.New(cfg, reg, pool, m)

	stopped := installSignalHandler(srv)

	nlog.Infof("starting data server (port=%d bind=%s)", cfg.Port, cfg.BindHost)
	if err := srv.Run(); err != nil {
		nlog.Errorf("server exited with error: %v", err)
		os.Exit(1)
	}
	<-stopped
}

// installSignalHandler arranges for SIGINT/SIGTERM to trigger a clean
// shutdown (listener close, in-flight connections drained) rather than
// an abrupt process exit. The returned channel is closed once Stop has
// returned.
func installSignalHandler(srv *server.Server) <-chan struct{} {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sig := <-c
		nlog.Infof("received signal %v, shutting down", sig)
		if err := srv.Stop(); err != nil {
			nlog.Errorf("error during shutdown: %v", err)
		}
	}()
	return stopped
}
