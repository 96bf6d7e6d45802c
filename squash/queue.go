// Package squash implements the bounded squash queue from spec §4.3: a
// single-producer/single-consumer queue of capacity Q that, on
// overflow, drops everything pending and keeps only the newest item.
//
// Payloads represent whole-state snapshots, so a slow consumer is
// better served by the most recent snapshot than by a FIFO of stale
// ones (spec §4.3 rationale).
package squash

import (
	"sync/atomic"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/cmn/debug"
	"github.com/nspyre-org/nspyre-sub001/proto"
)

// Queue is safe for exactly one producer goroutine calling TryPut and
// exactly one consumer goroutine calling Get, concurrently with each
// other — the shape the Source Pipe / Sink Pipe and the DataSource /
// DataSink client workers use it in.
type Queue struct {
	ch chan []byte
	// squashed counts how many pending items TryPut has dropped on
	// overflow, exposed for the metrics package (spec §8 P3).
	squashed atomic.Int64
}

func New() *Queue {
	return &Queue{ch: make(chan []byte, proto.QueueSize)}
}

// TryPut enqueues item, or — if the queue is already at capacity —
// drops every pending item and enqueues only item, guaranteeing
// latest-wins semantics under backpressure.
func (q *Queue) TryPut(item []byte) {
	select {
	case q.ch <- item:
		return
	default:
	}
	for {
		select {
		case <-q.ch:
			q.squashed.Add(1)
			continue
		default:
		}
		break
	}
	debug.Assert(len(q.ch) == 0, "TryPut drain loop left items behind")
	q.ch <- item
}

// Get blocks up to timeout for an item. Returns *cos.ErrTimeout if
// nothing arrives in time.
func (q *Queue) Get(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.ch:
		return item, nil
	case <-timer.C:
		return nil, &cos.ErrTimeout{Op: "squash queue get"}
	}
}

// Len reports the number of items currently buffered (best-effort,
// racy by construction since the consumer may be draining
// concurrently — used only for diagnostics/metrics).
func (q *Queue) Len() int { return len(q.ch) }

// Squashed reports the cumulative number of items dropped by TryPut
// overflow handling.
func (q *Queue) Squashed() int64 { return q.squashed.Load() }
