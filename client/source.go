package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/proto"
	"github.com/nspyre-org/nspyre-sub001/squash"
)

// DataSource pushes a named object set to a dataset on the Data
// Server, reconnecting automatically if the connection drops (spec
// §4.8). The background worker owns the connection; Add/Update only
// ever touch in-process state and a squash queue.
type DataSource struct {
	name string
	addr string

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

// NewDataSource creates a source for dataset name on the server at
// addr:port and starts its background connection worker immediately,
// matching the original's "thread starts in __init__" behavior. It
// blocks until the worker's first connect+negotiate attempt resolves,
// one way or the other (spec §4.8 start contract: "start() blocks
// until either negotiation succeeded or an exception occurred").
// Whether that first attempt succeeded is visible via LastErr.
func NewDataSource(name, addr string, port int) *DataSource {
	d := &DataSource{
		name:    name,
		addr:    fmt.Sprintf("%s:%d", addr, port),
		data:    make(map[string]any),
		queue:   squash.New(),
		ready:   make(chan struct{}),
		closing: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	<-d.ready
	return d
}

// Add registers a new named object in the data set. Returns an error
// if the name is already taken (spec: objects are added once, then
// mutated in place by the caller before each Update).
func (d *DataSource) Add(name string, obj any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.data[name]; exists {
		return fmt.Errorf("client: object %q already exists in data set %q", name, d.name)
	}
	d.data[name] = obj
	return nil
}

// Update serializes the current data set and enqueues it for the
// background worker to push to the server. If the queue is already
// full, every still-queued older snapshot is dropped first (spec §4.3).
func (d *DataSource) Update() error {
	d.mu.Lock()
	payload, err := json.Marshal(d.data)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("client: marshal data set %q: %w", d.name, err)
	}
	d.queue.TryPut(payload)
	return nil
}

// LastErr returns the error from the worker's most recent failed
// connect, negotiation or send, or nil once a negotiation has
// succeeded and no send has failed since.
// This is the "exception slot" spec §4.8 requires a caller be able to
// inspect after a ConnectFailure, since the worker itself always keeps
// retrying rather than stopping (see DESIGN.md's client ledger entry
// on auto_reconnect).
func (d *DataSource) LastErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *DataSource) setLastErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	d.signalReady()
}

func (d *DataSource) signalReady() {
	d.readyOnce.Do(func() { close(d.ready) })
}

// Close stops the background worker and waits for it to exit. Spec
// §4.8: "double-stop is an error" — a second Close returns a non-nil
// error instead of silently succeeding.
func (d *DataSource) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("client: data source %q already closed", d.name)
	}
	d.closed = true
	d.mu.Unlock()

	close(d.closing)
	d.wg.Wait()
	return nil
}

func (d *DataSource) run() {
	defer d.wg.Done()
	for {
		if d.isClosing() {
			d.signalReady()
			return
		}
		conn, err := net.DialTimeout("tcp", d.addr, proto.NegotiationTimeout)
		if err != nil {
			nlog.Warningf("source failed connecting to data server [%s]", d.addr)
			d.setLastErr(err)
			if !d.sleep(proto.FastTimeout) {
				return
			}
			continue
		}
		fc := frame.New(conn)
		nlog.Infof("source connected to data server [%s]", d.addr)

		if err := d.negotiate(fc); err != nil {
			nlog.Warningf("source failed negotiation with data server [%s]: %v - attempting reconnect", d.addr, err)
			fc.Close()
			d.setLastErr(err)
			if !d.sleep(proto.FastTimeout) {
				return
			}
			continue
		}
		d.setLastErr(nil)

		d.pushLoop(fc)
		fc.Close()
	}
}

func (d *DataSource) negotiate(fc *frame.Conn) error {
	deadline := time.Now().Add(proto.NegotiationTimeout)
	if err := proto.SendRole(fc, proto.TagSource, 0, deadline); err != nil {
		return err
	}
	return proto.SendName(fc, d.name, time.Now().Add(proto.NegotiationTimeout))
}

// pushLoop sends queued updates (or keepalives, when nothing new has
// arrived within KeepaliveTimeout) until the connection fails or Close
// is called.
func (d *DataSource) pushLoop(fc *frame.Conn) {
	for {
		if d.isClosing() {
			return
		}
		payload, err := d.queue.Get(proto.KeepaliveTimeout)
		if err != nil {
			payload = nil
		}
		if err := fc.SendFrame(payload, frame.Meta{}, time.Now().Add(proto.OpsTimeout)); err != nil {
			nlog.Warningf("source failed sending to data server [%s] - attempting reconnect", d.addr)
			d.setLastErr(err)
			return
		}
	}
}

func (d *DataSource) isClosing() bool {
	select {
	case <-d.closing:
		return true
	default:
		return false
	}
}

func (d *DataSource) sleep(dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.closing:
		return false
	}
}
