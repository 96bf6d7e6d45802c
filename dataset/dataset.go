package dataset

import (
	"strconv"
	"sync"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
	"github.com/nspyre-org/nspyre-sub001/cmn/debug"
	"github.com/nspyre-org/nspyre-sub001/squash"
)

// SinkKey identifies a sink slot by the sink's remote address (spec §3:
// "a set of sink slots keyed by the sink's remote address").
type SinkKey struct {
	Host string
	Port int
}

func (k SinkKey) String() string {
	if k.Port == 0 {
		return k.Host
	}
	return k.Host + ":" + strconv.Itoa(k.Port)
}

// SinkState is the per-sink state machine from spec §4.9.
type SinkState int32

const (
	SinkNew SinkState = iota
	SinkActiveNoBaseline
	SinkActiveWithBaseline
	SinkClosed
)

// Sink holds everything the owning Sink Pipe goroutine needs. Only that
// goroutine ever mutates LastSent/State/Mode — the Dataset only adds
// and removes the *Sink value from its map, it never reaches into it
// (spec §3 Ownership).
type Sink struct {
	Key   SinkKey
	Queue *squash.Queue
	Mode  byte // proto.DataDefault | proto.DataPickle | proto.DataDelta, as negotiated

	// LastSent is the per-sink baseline (spec §3 I4, I6). Reset to nil
	// whenever the sink task (re)starts — including on reconnect from
	// the same remote address — because it lives here, on the Sink
	// value created fresh by AddSink, never in the Dataset itself.
	LastSent []byte
	State    SinkState
}

// CanSendDelta reports whether the sink's state machine permits
// transmitting a DELTA frame (spec §4.9 invariant: "only the
// ACTIVE_WITH_BASELINE state may transmit DELTA frames").
func (s *Sink) CanSendDelta() bool { return s.State == SinkActiveWithBaseline }

// MarkSent transitions the state machine after a successful send and
// records the new baseline.
func (s *Sink) MarkSent(payload []byte) {
	debug.Assert(s.State != SinkClosed, "MarkSent on a closed sink")
	s.LastSent = payload
	s.State = SinkActiveWithBaseline
}

// Dataset holds at most one source slot and any number of sink slots
// (spec §3).
type Dataset struct {
	Name string

	mu         sync.RWMutex
	hasSource  bool
	sinks      map[SinkKey]*Sink
}

func newDataset(name string) *Dataset {
	return &Dataset{Name: name, sinks: make(map[SinkKey]*Sink)}
}

// AcquireSource implements the source slot state machine's
// NEW--(slot free)-->ACTIVE transition. Returns *cos.ErrDuplicateSource
// if the slot is already occupied (spec I1, §4.9 NEW--(slot
// busy)-->REJECTED).
func (d *Dataset) AcquireSource() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasSource {
		return &cos.ErrDuplicateSource{Dataset: d.Name}
	}
	d.hasSource = true
	return nil
}

// ReleaseSource frees the source slot so another source may take over
// (spec: "Source slot: ... destroyed on disconnect, timeout, or error.
// Clears the slot so another source may take over.").
func (d *Dataset) ReleaseSource() {
	d.mu.Lock()
	d.hasSource = false
	d.mu.Unlock()
}

// AddSink creates a fresh sink slot (state NEW -> ACTIVE_NO_BASELINE)
// and registers it in the Dataset (spec I2, I3).
func (d *Dataset) AddSink(key SinkKey, mode byte) *Sink {
	s := &Sink{Key: key, Queue: squash.New(), Mode: mode, State: SinkActiveNoBaseline}
	d.mu.Lock()
	_, exists := d.sinks[key]
	d.sinks[key] = s
	d.mu.Unlock()
	debug.Assert(!exists, "AddSink overwrote a still-registered sink slot", key)
	return s
}

// RemoveSink is the terminal ANY-->CLOSED transition: O(1) removal from
// the Dataset (spec: "Removal is O(1) from the Dataset").
func (d *Dataset) RemoveSink(key SinkKey) {
	d.mu.Lock()
	delete(d.sinks, key)
	d.mu.Unlock()
}

// FanOut delivers payload to every current sink's queue, squashing on
// overflow per sink (spec §4.5 Source Pipe). Taking a read lock here
// means sink add/remove (rare) never blocks on, nor is blocked by, the
// hot fan-out path for longer than a map iteration.
func (d *Dataset) FanOut(payload []byte) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sinks {
		s.Queue.TryPut(payload)
	}
}

// SinkCount and HasSource are diagnostic/metrics accessors.
func (d *Dataset) SinkCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks)
}

func (d *Dataset) HasSource() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hasSource
}
