// Package hhchantest is a reusable conformance-assertion battery for
// hhchan channels, in the spirit of libbeat's
// publisher/queue/queuetest: a single set of FIFO/ordering/integrity
// assertions, driven by a factory so the same assertions run unchanged
// against memory-only, spillover, and small-segment configurations.
package hhchantest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/funkygao/hhchan"
)

// Factory builds a fresh channel for one subtest. Implementations
// typically close over a *testing.T-scoped temp directory and a set of
// hhchan.Option values under test.
type Factory func(t *testing.T) (*hhchan.Sender[[]byte], *hhchan.Receiver[[]byte])

// payload returns a deterministic, distinguishable body for sequence
// number i, tagged with its own xxhash so RunFIFO and RunMultiProducer can detect
// truncation or bit flips introduced anywhere along the tiering path.
func payload(i int) []byte {
	body := []byte(fmt.Sprintf("item-%08d", i))
	sum := xxhash.Sum64(body)
	return fmt.Appendf(body, "|%016x", sum)
}

func verify(body []byte) (ok bool) {
	if len(body) < 17 || body[len(body)-17] != '|' {
		return false
	}
	data, tag := body[:len(body)-17], string(body[len(body)-16:])
	return fmt.Sprintf("%016x", xxhash.Sum64(data)) == tag
}

// RunFIFO sends n distinct items through a single producer and asserts
// the consumer observes them in the exact order sent, regardless of
// whether the channel under test keeps them in memory, spills to disk,
// or a mix of both.
func RunFIFO(t *testing.T, n int, factory Factory) {
	t.Helper()
	tx, rx, err := factoryOrSkip(t, factory)
	if err != nil {
		return
	}
	defer rx.Close()

	for i := 0; i < n; i++ {
		if err := tx.Send(payload(i)); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if err := tx.Close(); err != nil {
		t.Fatalf("Sender.Close: %v", err)
	}

	for i := 0; i < n; i++ {
		got, err := rx.Recv()
		if err != nil {
			t.Fatalf("Recv() #%d: %v", i, err)
		}
		if !verify(got) {
			t.Fatalf("Recv() #%d: checksum mismatch, payload corrupted in transit", i)
		}
		want := payload(i)
		if string(got) != string(want) {
			t.Fatalf("Recv() #%d = %q, want %q (FIFO order violated)", i, got, want)
		}
	}
	if _, err := rx.Recv(); err != hhchan.ErrDisconnected {
		t.Fatalf("Recv() after drain = %v, want ErrDisconnected", err)
	}
}

// RunMultiProducer fans producers concurrent sends across the channel
// and asserts every item sent is received exactly once, uncorrupted —
// cross-producer ordering is explicitly not a guarantee (spec Non-goal),
// so this only checks the multiset of delivered payloads, not their
// relative order.
func RunMultiProducer(t *testing.T, producers, perProducer int, factory Factory) {
	t.Helper()
	tx, rx, err := factoryOrSkip(t, factory)
	if err != nil {
		return
	}
	defer rx.Close()

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		clone := tx.Clone()
		base := p * perProducer
		g.Go(func() error {
			defer clone.Close()
			for i := 0; i < perProducer; i++ {
				if err := clone.Send(payload(base + i)); err != nil {
					return fmt.Errorf("producer %d send %d: %w", p, i, err)
				}
			}
			return nil
		})
	}
	if err := tx.Close(); err != nil {
		t.Fatalf("original Sender.Close: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("producer fan-out: %v", err)
	}

	want := producers * perProducer
	seen := make(map[string]int, want)
	var mu sync.Mutex
	for {
		v, err := rx.Recv()
		if err == hhchan.ErrDisconnected {
			break
		}
		if err != nil {
			t.Fatalf("Recv(): %v", err)
		}
		if !verify(v) {
			t.Fatalf("Recv(): checksum mismatch, payload corrupted in transit")
		}
		mu.Lock()
		seen[string(v)]++
		mu.Unlock()
	}

	if len(seen) != want {
		t.Fatalf("delivered %d distinct items, want %d", len(seen), want)
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("item %q delivered %d times, want exactly once", k, n)
		}
	}
}

func factoryOrSkip(t *testing.T, factory Factory) (*hhchan.Sender[[]byte], *hhchan.Receiver[[]byte], error) {
	t.Helper()
	tx, rx := factory(t)
	if tx == nil || rx == nil {
		t.Skip("factory did not produce a channel")
		return nil, nil, fmt.Errorf("skipped")
	}
	return tx, rx, nil
}
