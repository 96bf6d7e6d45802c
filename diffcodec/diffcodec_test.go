package diffcodec_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/nspyre-org/nspyre-sub001/diffcodec"
)

func TestDiffPatchRoundTrip(t *testing.T) {
	old := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 100)
	newData := append(append([]byte{}, old...), []byte("and then keeps running")...)

	pool := diffcodec.NewPool(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	delta, err := pool.Diff(ctx, old, newData)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	patched, err := diffcodec.Patch(old, delta)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if !bytes.Equal(patched, newData) {
		t.Fatal("patched output does not match original new data")
	}
}

func TestDiffRespectsContextDeadline(t *testing.T) {
	pool := diffcodec.NewPool(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := pool.Diff(ctx, []byte("a"), []byte("b"))
	if err == nil {
		t.Fatal("expected a deadline-exceeded error")
	}
}
