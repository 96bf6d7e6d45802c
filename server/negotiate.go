package server

import (
	"net"
	"strings"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
	"github.com/nspyre-org/nspyre-sub001/dataset"
	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/proto"
)

// handleConn runs the negotiation handshake (§4.2) for a freshly
// accepted connection, then dispatches into whichever pipe the
// negotiated role calls for. It owns the connection end to end: every
// return path closes it.
func (s *Server) handleConn(conn net.Conn) {
	id := newConnID()
	remote := conn.RemoteAddr()
	nlog.Infof("[%s] connection from %s", id, remote)

	fc := frame.New(conn)
	tag, sinkDataType, err := proto.RecvRole(fc, time.Now().Add(proto.NegotiationTimeout))
	if err != nil {
		nlog.Warningf("[%s] negotiation failed: %v", id, err)
		fc.Close()
		return
	}

	switch tag {
	case proto.TagInfo:
		s.handleInfo(fc, id)
	case proto.TagSource:
		s.handleSource(fc, id)
	case proto.TagSink:
		s.handleSink(fc, id, sinkDataType)
	default:
		nlog.Warningf("[%s] %v", id, &cos.ErrUnknownMetadata{Tag: tag})
		fc.Close()
	}
}

// handleInfo answers a one-shot query for the set of live dataset
// names and closes (§4.2 Info role has no further frames).
func (s *Server) handleInfo(fc *frame.Conn, id string) {
	defer fc.Close()
	names := s.reg.ListNames()
	payload := []byte(strings.Join(names, ","))
	deadline := time.Now().Add(proto.NegotiationTimeout)
	if err := fc.SendFrame(payload, frame.Meta{}, deadline); err != nil {
		nlog.Warningf("[%s] info reply failed: %v", id, err)
		return
	}
	nlog.Infof("[%s] info reply: %d dataset(s)", id, len(names))
}

func (s *Server) handleSource(fc *frame.Conn, id string) {
	name, err := proto.RecvName(fc, time.Now().Add(proto.NegotiationTimeout))
	if err != nil {
		nlog.Warningf("[%s] source name handshake failed: %v", id, err)
		fc.Close()
		return
	}
	ds := s.reg.GetOrCreate(name)
	if err := ds.AcquireSource(); err != nil {
		nlog.Warningf("[%s] %v", id, err)
		fc.Close()
		return
	}
	defer ds.ReleaseSource()
	defer fc.Close()

	s.metrics.SourcesActive.WithLabelValues(name).Set(1)
	defer s.metrics.SourcesActive.WithLabelValues(name).Set(0)

	nlog.Infof("[%s] source attached to dataset %q", id, name)
	s.runSourcePipe(fc, ds, id)
	nlog.Infof("[%s] source detached from dataset %q", id, name)
}

func (s *Server) handleSink(fc *frame.Conn, id string, sinkDataType byte) {
	name, err := proto.RecvName(fc, time.Now().Add(proto.NegotiationTimeout))
	if err != nil {
		nlog.Warningf("[%s] sink name handshake failed: %v", id, err)
		fc.Close()
		return
	}
	ds := s.reg.GetOrCreate(name)

	key := sinkKeyOf(fc)
	sink := ds.AddSink(key, sinkDataType)
	defer ds.RemoveSink(key)
	defer fc.Close()

	s.metrics.SinksActive.WithLabelValues(name).Inc()
	defer s.metrics.SinksActive.WithLabelValues(name).Dec()

	nlog.Infof("[%s] sink attached to dataset %q from %s (mode=%#x)", id, name, key, sinkDataType)
	s.runSinkPipe(fc, sink, id)
	nlog.Infof("[%s] sink detached from dataset %q", id, name)
}

// sinkKeyOf derives a dataset.SinkKey from the connection's remote
// address. Falls back to the string form for non-TCP connections
// (e.g. in tests using net.Pipe), which gives every such connection
// its own key.
func sinkKeyOf(fc *frame.Conn) dataset.SinkKey {
	if tcp, ok := fc.RemoteAddr().(*net.TCPAddr); ok {
		return dataset.SinkKey{Host: tcp.IP.String(), Port: tcp.Port}
	}
	return dataset.SinkKey{Host: fc.RemoteAddr().String()}
}
