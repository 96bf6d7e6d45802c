package server

import (
	"context"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/mono"
	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
	"github.com/nspyre-org/nspyre-sub001/dataset"
	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/proto"
)

// runSourcePipe implements §4.5: read frames from the source until it
// disconnects or times out, fanning each non-keepalive payload out to
// every current sink. Returns once the connection is no longer usable.
func (s *Server) runSourcePipe(fc *frame.Conn, ds *dataset.Dataset, id string) {
	for {
		deadline := time.Now().Add(proto.Timeout)
		payload, _, err := fc.RecvFrame(deadline)
		if err != nil {
			nlog.Infof("[%s] source pipe ending: %v", id, err)
			return
		}
		if len(payload) == 0 {
			// Keepalive: the spec's source-side liveness signal carries
			// no data and is never fanned out (§4.1 B1).
			continue
		}
		s.metrics.FramesReceived.Inc()
		ds.FanOut(payload)
	}
}

// runSinkPipe implements §4.6: pull the sink's squash queue, choosing
// between a DELTA frame (when a diff is worth attempting and pays off)
// and a full PICKLE frame, falling back to a keepalive when
// the queue is empty. Returns once the connection is no longer usable.
func (s *Server) runSinkPipe(fc *frame.Conn, sink *dataset.Sink, id string) {
	lastSend := mono.NanoTime()
	for {
		payload, err := sink.Queue.Get(proto.KeepaliveTimeout)
		if err != nil {
			if err := fc.SendKeepalive(frame.TagMeta(proto.DataPickle), time.Now().Add(proto.SendDeadline)); err != nil {
				nlog.Infof("[%s] sink pipe ending: %v", id, err)
				return
			}
			nlog.Debugf("[%s] sink idle %v, sent keepalive", id, mono.Since(lastSend))
			continue
		}

		toSend, tag := s.prepareSinkFrame(sink, payload, id)
		if err := fc.SendFrame(toSend, frame.TagMeta(tag), time.Now().Add(proto.SendDeadline)); err != nil {
			nlog.Infof("[%s] sink pipe ending: %v", id, err)
			return
		}
		sink.MarkSent(payload)
		s.metrics.FramesSent.Inc()
		lastSend = mono.NanoTime()
	}
}

// prepareSinkFrame decides whether to submit payload for diffing
// against the sink's current baseline, per §4.6's mode rules, and
// falls back to sending the full payload whenever a diff isn't
// attempted, fails, times out, or doesn't pay off.
func (s *Server) prepareSinkFrame(sink *dataset.Sink, payload []byte, id string) ([]byte, byte) {
	wantsDiff := sink.Mode == proto.DataDelta ||
		(sink.Mode == proto.DataDefault && sink.Key.Host != "127.0.0.1" && sink.Key.Host != "::1")
	if !wantsDiff || !sink.CanSendDelta() {
		return payload, proto.DataPickle
	}

	ctx, cancel := context.WithTimeout(context.Background(), proto.DiffDeadline)
	defer cancel()
	delta, err := s.diff.Diff(ctx, sink.LastSent, payload)
	if err != nil {
		nlog.Warningf("[%s] diff fell back to full payload: %v", id, err)
		s.metrics.DiffFallback.Inc()
		return payload, proto.DataPickle
	}
	if len(delta) >= len(payload) {
		s.metrics.DiffFallback.Inc()
		return payload, proto.DataPickle
	}
	return delta, proto.DataDelta
}
