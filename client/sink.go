package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
	"github.com/nspyre-org/nspyre-sub001/diffcodec"
	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/proto"
	"github.com/nspyre-org/nspyre-sub001/squash"
)

// DataSink pulls updates to a dataset from the Data Server,
// reconstructing DELTA frames against its own local baseline (spec
// §4.7 "implemented identically on the DataSink client"). Like
// DataSource, a background worker owns the connection and reconnect
// loop; Pop/Get only touch in-process state and a squash queue.
type DataSink struct {
	name     string
	addr     string
	dataType byte

	mu      sync.Mutex
	data    map[string]any
	lastErr error
	closed  bool

	queue *squash.Queue

	ready     chan struct{}
	readyOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// NewDataSink creates a sink for dataset name on the server at
// addr:port, declaring dataType (proto.DataDefault/Pickle/Delta) as
// its preferred data-type mode, and starts the background worker. It
// blocks until the worker's first connect+negotiate attempt resolves,
// one way or the other (spec §4.8 start contract: "start() blocks
// until either negotiation succeeded or an exception occurred").
// Whether that first attempt succeeded is visible via LastErr.
func NewDataSink(name, addr string, port int, dataType byte) *DataSink {
	d := &DataSink{
		name:     name,
		addr:     fmt.Sprintf("%s:%d", addr, port),
		dataType: dataType,
		data:     make(map[string]any),
		queue:    squash.New(),
		ready:    make(chan struct{}),
		closing:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	<-d.ready
	return d
}

// Pop blocks up to timeout for the next update from the server,
// deserializes it, replaces the sink's local data set, and returns it.
func (d *DataSink) Pop(timeout time.Duration) (map[string]any, error) {
	payload, err := d.queue.Get(timeout)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("client: unmarshal data set %q: %w", d.name, err)
	}
	d.mu.Lock()
	d.data = data
	d.mu.Unlock()
	return data, nil
}

// Get returns the named object from the most recent Pop, mirroring the
// original's attribute-style access (spec.py __getattr__).
func (d *DataSink) Get(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.data[name]
	return v, ok
}

// LastErr returns the error from the worker's most recent failed
// connect, negotiation or receive, or nil once a negotiation has
// succeeded and no receive has failed since.
// This is the "exception slot" spec §4.8 requires a caller be able to
// inspect after a ConnectFailure, since the worker itself always keeps
// retrying rather than stopping (see DESIGN.md's client ledger entry
// on auto_reconnect).
func (d *DataSink) LastErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *DataSink) setLastErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	d.signalReady()
}

func (d *DataSink) signalReady() {
	d.readyOnce.Do(func() { close(d.ready) })
}

// Close stops the background worker and waits for it to exit. Spec
// §4.8: "double-stop is an error" — a second Close returns a non-nil
// error instead of silently succeeding.
func (d *DataSink) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("client: data sink %q already closed", d.name)
	}
	d.closed = true
	d.mu.Unlock()

	close(d.closing)
	d.wg.Wait()
	return nil
}

func (d *DataSink) run() {
	defer d.wg.Done()
	for {
		if d.isClosing() {
			d.signalReady()
			return
		}
		conn, err := net.DialTimeout("tcp", d.addr, proto.NegotiationTimeout)
		if err != nil {
			nlog.Warningf("sink failed connecting to data server [%s]", d.addr)
			d.setLastErr(err)
			if !d.sleep(proto.FastTimeout) {
				return
			}
			continue
		}
		fc := frame.New(conn)
		nlog.Infof("sink connected to data server [%s]", d.addr)

		if err := d.negotiate(fc); err != nil {
			nlog.Warningf("sink failed negotiation with data server [%s]: %v - attempting reconnect", d.addr, err)
			fc.Close()
			d.setLastErr(err)
			if !d.sleep(proto.FastTimeout) {
				return
			}
			continue
		}
		d.setLastErr(nil)

		d.pullLoop(fc)
		fc.Close()
	}
}

func (d *DataSink) negotiate(fc *frame.Conn) error {
	deadline := time.Now().Add(proto.NegotiationTimeout)
	if err := proto.SendRole(fc, proto.TagSink, d.dataType, deadline); err != nil {
		return err
	}
	return proto.SendName(fc, d.name, time.Now().Add(proto.NegotiationTimeout))
}

// pullLoop receives frames until the connection fails, reconstructing
// DELTA frames against lastPickle — a baseline local to this
// connection attempt, reset to nil on every reconnect, mirroring the
// server's own per-task baseline lifetime (spec §9 open question 3).
func (d *DataSink) pullLoop(fc *frame.Conn) {
	var lastPickle []byte
	for {
		if d.isClosing() {
			return
		}
		payload, meta, err := fc.RecvFrame(time.Now().Add(proto.Timeout))
		if err != nil {
			nlog.Warningf("sink data server [%s] disconnected or hasn't sent a keepalive - dropping connection", d.addr)
			d.setLastErr(err)
			return
		}
		if len(payload) == 0 {
			continue // keepalive
		}

		var newPickle []byte
		switch meta.Tag() {
		case proto.DataPickle:
			newPickle = payload
		case proto.DataDelta:
			if lastPickle == nil {
				err := fmt.Errorf("sink received delta from data server [%s] before any pickle", d.addr)
				nlog.Errorf("%v - dropping connection", err)
				d.setLastErr(err)
				return
			}
			newPickle, err = diffcodec.Patch(lastPickle, payload)
			if err != nil {
				nlog.Errorf("sink failed to reconstruct delta from data server [%s]: %v - dropping connection", d.addr, err)
				d.setLastErr(err)
				return
			}
		default:
			err := &cos.ErrUnknownMetadata{Tag: meta.Tag()}
			nlog.Errorf("sink received unknown data type %v from data server [%s] - dropping connection", err, d.addr)
			d.setLastErr(err)
			return
		}

		lastPickle = newPickle
		d.queue.TryPut(newPickle)
	}
}

func (d *DataSink) isClosing() bool {
	select {
	case <-d.closing:
		return true
	default:
		return false
	}
}

func (d *DataSink) sleep(dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.closing:
		return false
	}
}
