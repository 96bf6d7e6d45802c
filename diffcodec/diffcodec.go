// Package diffcodec implements the Diff Worker from spec §4.7: an
// off-reactor binary delta computation with a hard time budget and a
// fallback on timeout or crash.
//
// No repository in the example pack ships a VCDIFF/xdelta3 binding, so
// this package is built on github.com/gabstv/go-bsdiff, a real,
// actively-published third-party binary-diff library not present in
// the pack (see DESIGN.md "out-of-pack deps"). bsdiff/bspatch play the
// same role VCDIFF's encode/decode play in the original: delta(old,
// new) such that patch(old, delta) == new.
package diffcodec

import (
	"context"
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"golang.org/x/sync/errgroup"

	"github.com/nspyre-org/nspyre-sub001/cmn/cos"
)

// Pool runs delta computations off the caller's goroutine, bounding
// total concurrent diffs so a burst of remote sinks can't starve the
// machine. Each sink pipe only ever has one outstanding Diff call at a
// time (it blocks waiting for the result before dequeuing its next
// payload), which satisfies spec §5's "at most one concurrent
// computation per sink" on its own; Pool additionally caps the
// process-wide total.
type Pool struct {
	g *errgroup.Group
}

// NewPool creates a pool that runs at most maxConcurrent diffs at once.
func NewPool(maxConcurrent int) *Pool {
	g := &errgroup.Group{}
	g.SetLimit(maxConcurrent)
	return &Pool{g: g}
}

type diffResult struct {
	delta []byte
	err   error
}

// Diff computes delta(old, new). If ctx is done before the computation
// finishes, or the worker panics, Diff returns a *cos.ErrDiffFailure;
// callers (the Sink Pipe) must treat that as "fall back to sending new
// in full", never as a reason to drop the sink connection.
func (p *Pool) Diff(ctx context.Context, old, new []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &cos.ErrDiffFailure{Cause: err}
	}
	resCh := make(chan diffResult, 1)
	p.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				resCh <- diffResult{err: fmt.Errorf("diff worker panic: %v", r)}
			}
		}()
		delta, err := bsdiff.Bytes(old, new)
		resCh <- diffResult{delta: delta, err: err}
		return nil // the pool slot frees regardless; errors travel via resCh
	})

	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, &cos.ErrDiffFailure{Cause: r.err}
		}
		return r.delta, nil
	case <-ctx.Done():
		return nil, &cos.ErrDiffFailure{Cause: ctx.Err()}
	}
}

// Patch reconstructs new from old and delta: the inverse of Diff, run
// on the DataSink client (spec §4.7: "implemented identically on the
// DataSink client to reconstruct payloads").
func Patch(old, delta []byte) ([]byte, error) {
	out, err := bspatch.Bytes(old, delta)
	if err != nil {
		return nil, fmt.Errorf("diffcodec: patch failed: %w", err)
	}
	return out, nil
}
