// Package hhchan implements a multi-producer, single-consumer in-process
// channel whose logical capacity is unbounded while its resident memory
// footprint stays fixed: once the in-memory fast path fills up, items
// spill to a disk-backed, segmented append-only log and stream back into
// memory for consumption in FIFO order.
//
// It is grounded on the hinted-handoff disk queue in
// funkygao/gafka's cmd/kateway/hh/disk (segmented log, cursor-style
// sequential read, seal-then-roll-over write path), generalized with a
// memory-first fast path and a two-tier FIFO router — see DESIGN.md.
package hhchan

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/funkygao/golib/sync2"
	log "github.com/funkygao/log4go"
	"github.com/google/uuid"

	"github.com/funkygao/hhchan/internal/disktier"
	"github.com/funkygao/hhchan/internal/memtier"
)

// chanState is the heap-resident record shared by every producer handle
// and the one consumer handle; it lives as long as any handle does. Its
// mutable fields are guarded by mu except where noted.
type chanState[V any] struct {
	id   uuid.UUID
	name string
	dir  string

	codec Codec[V]

	mu   sync.Mutex
	cond *sync.Cond

	mem  *memtier.Queue[V]
	disk *disktier.Tier

	producersAlive int   // guarded by mu
	consumerAlive  bool  // guarded by mu
	corrupt        error // guarded by mu; sticky once a decode fails

	destroyOnce sync.Once

	sent     sync2.AtomicInt64
	received sync2.AtomicInt64
}

// Sender is a cloneable handle producers use to enqueue payloads.
type Sender[V any] struct {
	state   *chanState[V]
	closed  bool
	closeMu sync.Mutex
}

// Receiver is the exclusive handle the single consumer uses to dequeue
// payloads.
type Receiver[V any] struct {
	state  *chanState[V]
	closed bool
}

// New creates a channel rooted at dataDir/name and returns its initial
// producer and consumer handles. dataDir/name must not already exist as a
// non-empty directory.
func New[V any](name, dataDir string, codec Codec[V], opts ...Option) (*Sender[V], *Receiver[V], error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MemCapacity < 1 {
		o.MemCapacity = 1
	}
	if o.SegmentMaxBytes < 1 {
		o.SegmentMaxBytes = DefaultOptions().SegmentMaxBytes
	}

	dir := filepath.Join(dataDir, name)
	if err := createExclusiveDir(dir); err != nil {
		return nil, nil, err
	}

	disk, err := disktier.New(dir, o.SegmentMaxBytes, o.TotalDiskBytes)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	st := &chanState[V]{
		id:             uuid.New(),
		name:           name,
		dir:            dir,
		codec:          codec,
		mem:            memtier.New[V](o.MemCapacity),
		disk:           disk,
		producersAlive: 1,
		consumerAlive:  true,
	}
	st.cond = sync.NewCond(&st.mu)

	log.Info("hhchan[%s/%s]: opened at %s (mem_capacity=%d segment_max_bytes=%d)",
		name, st.id, dir, o.MemCapacity, o.SegmentMaxBytes)

	return &Sender[V]{state: st}, &Receiver[V]{state: st}, nil
}

// createExclusiveDir creates dir, failing if it already exists and is
// non-empty (spec §3: "fails if it exists and is non-empty").
func createExclusiveDir(dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case err == nil:
		if len(entries) > 0 {
			return fmt.Errorf("hhchan: directory %s already exists and is not empty: %w", dir, ErrChannelCorrupt)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create channel directory: %v", ErrIO, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: stat channel directory: %v", ErrIO, err)
	}
}

// ID returns the channel's unique identity, useful for correlating log
// lines across producers and the consumer.
func (st *chanState[V]) ID() uuid.UUID { return st.id }

// ID returns the channel's unique identity.
func (s *Sender[V]) ID() uuid.UUID { return s.state.id }

// ID returns the channel's unique identity.
func (r *Receiver[V]) ID() uuid.UUID { return r.state.id }

// Send encodes v and enqueues it, preferring the memory tier while it has
// room and the disk tier is fully drained, and spilling to disk otherwise
// — spec §4.6.
func (s *Sender[V]) Send(v V) error {
	st := s.state
	body, err := st.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	st.mu.Lock()
	if !st.consumerAlive {
		st.mu.Unlock()
		return ErrDisconnected
	}
	if st.disk.Outstanding() == 0 && st.mem.HasRoom() {
		st.mem.TryPush(v)
		st.sent.Add(1)
		st.cond.Broadcast()
		st.mu.Unlock()
		return nil
	}
	st.mu.Unlock()

	// Disk writes never happen under the coordinator lock (spec §5): the
	// disk tier serializes producers on its own write lock instead.
	if err := st.disk.Write(body); err != nil {
		if errors.Is(err, disktier.ErrDiskFull) {
			return ErrDiskFull
		}
		if errors.Is(err, disktier.ErrChannelCorrupt) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	st.mu.Lock()
	st.sent.Add(1)
	st.cond.Broadcast()
	st.mu.Unlock()
	return nil
}

// Clone returns a new Sender over the same channel, incrementing the
// producer liveness count. Each clone must eventually be Closed.
func (s *Sender[V]) Clone() *Sender[V] {
	st := s.state
	st.mu.Lock()
	st.producersAlive++
	st.mu.Unlock()
	return &Sender[V]{state: st}
}

// Close drops this producer handle. Once every clone has been closed, the
// blocked consumer (if any) is woken with ErrDisconnected once both tiers
// drain.
func (s *Sender[V]) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	st := s.state
	st.mu.Lock()
	st.producersAlive--
	remaining := st.producersAlive
	st.cond.Broadcast()
	st.mu.Unlock()

	if remaining == 0 {
		log.Trace("hhchan[%s/%s]: last producer closed", st.name, st.id)
	}
	return st.maybeDestroy()
}

// recv implements both the blocking Recv and non-blocking TryRecv paths —
// spec §4.6. The memory tier always holds the oldest unread items: Send
// only pushes to mem while the disk tier has no outstanding frames, and
// spills to disk once mem is full or disk already holds frames, so mem
// must be drained before disk is ever consulted, or newer disk items
// would be delivered ahead of older ones still sitting in mem.
func (st *chanState[V]) recv(block bool) (V, error) {
	var zero V
	for {
		if err := st.corruptErr(); err != nil {
			return zero, err
		}

		st.mu.Lock()
		if v, ok := st.mem.TryPop(); ok {
			st.mu.Unlock()
			st.received.Add(1)
			return v, nil
		}
		st.mu.Unlock()

		if st.disk.Outstanding() > 0 {
			body, err := st.disk.Read()
			switch {
			case err == nil:
				v, decErr := st.codec.Decode(body)
				if decErr != nil {
					wrapped := fmt.Errorf("%w: %v", ErrDecode, decErr)
					st.mu.Lock()
					st.corrupt = wrapped
					st.mu.Unlock()
					return zero, wrapped
				}
				st.received.Add(1)
				return v, nil

			case errors.Is(err, disktier.ErrEmpty):
				// The writer is mid-append to the open tail; a broadcast
				// follows once that Send() completes, so wait for it
				// instead of busy-polling.
				if !block {
					return zero, ErrEmpty
				}
				st.mu.Lock()
				if st.disk.Outstanding() > 0 {
					st.cond.Wait()
					st.mu.Unlock()
					continue
				}
				st.mu.Unlock()
				continue

			default:
				return zero, fmt.Errorf("%w: %v", ErrIO, err)
			}
		}

		st.mu.Lock()
		if v, ok := st.mem.TryPop(); ok {
			st.mu.Unlock()
			st.received.Add(1)
			return v, nil
		}
		if st.producersAlive == 0 {
			st.mu.Unlock()
			return zero, ErrDisconnected
		}
		if !block {
			st.mu.Unlock()
			return zero, ErrEmpty
		}
		st.cond.Wait()
		st.mu.Unlock()
	}
}

func (st *chanState[V]) corruptErr() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.corrupt
}

// Recv blocks until a payload is available, the channel becomes
// Disconnected, or the channel is found corrupt.
func (r *Receiver[V]) Recv() (V, error) {
	return r.state.recv(true)
}

// TryRecv returns immediately with ErrEmpty if nothing is ready.
func (r *Receiver[V]) TryRecv() (V, error) {
	return r.state.recv(false)
}

// Iter returns a range-over-func iterator that yields payloads until the
// channel is Disconnected and fully drained — the "iteration view" of
// spec §4.7.
func (r *Receiver[V]) Iter() iter.Seq[V] {
	return func(yield func(V) bool) {
		for {
			v, err := r.Recv()
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Close drops the consumer handle. Subsequent Sends fail with
// ErrDisconnected.
func (r *Receiver[V]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	st := r.state
	st.mu.Lock()
	st.consumerAlive = false
	st.cond.Broadcast()
	st.mu.Unlock()

	log.Trace("hhchan[%s/%s]: consumer closed", st.name, st.id)
	return st.maybeDestroy()
}

// Stats reports the channel's live counters, for callers that want
// visibility without a metrics system wired in (spec explicitly keeps
// metrics wiring out of scope; this is plain accessor data, not an
// observability integration).
type Stats struct {
	Sent              int64
	Received          int64
	MemQueued         int
	DiskFramesPending int64
	DiskBytesPending  int64
}

// Stats returns a snapshot of the channel's counters.
func (st *chanState[V]) Stats() Stats {
	st.mu.Lock()
	memLen := st.mem.Len()
	st.mu.Unlock()
	return Stats{
		Sent:              st.sent.Get(),
		Received:          st.received.Get(),
		MemQueued:         memLen,
		DiskFramesPending: st.disk.Outstanding(),
		DiskBytesPending:  st.disk.DiskBytes(),
	}
}

// Stats returns a snapshot of the channel's counters, readable from
// either handle.
func (s *Sender[V]) Stats() Stats { return s.state.Stats() }

// Stats returns a snapshot of the channel's counters, readable from
// either handle.
func (r *Receiver[V]) Stats() Stats { return r.state.Stats() }

// maybeDestroy deletes the channel's directory once every handle has gone
// — spec §3's lifecycle rule.
func (st *chanState[V]) maybeDestroy() error {
	st.mu.Lock()
	dead := st.producersAlive == 0 && !st.consumerAlive
	st.mu.Unlock()
	if !dead {
		return nil
	}

	var destroyErr error
	st.destroyOnce.Do(func() {
		if err := st.disk.Close(); err != nil {
			log.Warn("hhchan[%s/%s]: closing disk tier: %v", st.name, st.id, err)
		}
		if err := os.RemoveAll(st.dir); err != nil {
			destroyErr = fmt.Errorf("%w: remove channel directory: %v", ErrIO, err)
			return
		}
		log.Info("hhchan[%s/%s]: destroyed", st.name, st.id)
	})
	return destroyErr
}
