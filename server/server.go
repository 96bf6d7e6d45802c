// Package server implements the Data Server's TCP listener: one
// goroutine per accepted connection, dispatching on the negotiated
// role into a Source Pipe (§4.5), a Sink Pipe (§4.6), or a one-shot
// Info reply (§4.2).
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teris-io/shortid"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
	"github.com/nspyre-org/nspyre-sub001/config"
	"github.com/nspyre-org/nspyre-sub001/dataset"
	"github.com/nspyre-org/nspyre-sub001/diffcodec"
	"github.com/nspyre-org/nspyre-sub001/metrics"
)

// connIDAlphabet mirrors the teacher's own uuidABC convention in
// cmn/cos/uuid.go: a 64-character alphabet so shortid's base-64 digits
// never collide with separators used elsewhere in log lines.
const connIDAlphabet = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var connIDGen = shortid.MustNew(1 /*worker*/, connIDAlphabet, 0)

// Server owns the listener, the dataset registry, and the diff worker
// pool shared by every connected sink.
type Server struct {
	cfg     *config.Config
	reg     *dataset.Registry
	diff    *diffcodec.Pool
	metrics *metrics.Metrics

	ln        net.Listener
	metricsLn net.Listener
	metricsHTTP *http.Server

	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

// New wires a Server out of its dependencies. The caller constructs
// the registry/pool/metrics so tests can inspect them independently.
func New(cfg *config.Config, reg *dataset.Registry, diff *diffcodec.Pool, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		reg:     reg,
		diff:    diff,
		metrics: m,
		closing: make(chan struct{}),
	}
}

// Run binds the listener and blocks accepting connections until Stop
// is called. It returns nil on a clean shutdown, or the first
// unrecoverable accept error otherwise.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.Port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return cos.Wrap(err, fmt.Sprintf("server: listen %s", addr))
	}
	s.ln = ln
	nlog.Infof("data server listening on %s", ln.Addr())

	if s.cfg.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			ln.Close()
			return err
		}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				nlog.Infof("accept loop stopped")
				return nil
			default:
				return cos.Wrap(err, "server: accept")
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-s.closing:
					conn.Close() // unblocks the pipe's pending recv/send
				case <-done:
				}
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) startMetricsServer() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.MetricsPort)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return cos.Wrap(err, fmt.Sprintf("server: metrics listen %s", addr))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	s.metricsLn = ln
	s.metricsHTTP = &http.Server{Handler: mux}
	nlog.Infof("metrics listening on %s", ln.Addr())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsHTTP.Serve(ln); err != nil && err != http.ErrServerClosed {
			nlog.Warningf("metrics server: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener(s), signals every in-flight connection
// goroutine to wind down, and waits for them to exit.
func (s *Server) Stop() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		if s.ln != nil {
			s.ln.Close()
		}
		if s.metricsHTTP != nil {
			s.metricsHTTP.Close()
		}
	})
	s.wg.Wait()
	nlog.Infof("data server closed")
	return nil
}

func newConnID() string { return connIDGen.MustGenerate() }
